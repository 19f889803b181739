package chat

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/oasis/internal/kv"
)

const historyKey = "chat_history"

// History is one tab's copy of the room log. Every append rewrites the
// whole persisted snapshot. It is not safe for concurrent use; the owning
// session serializes access.
type History struct {
	store kv.Store
	msgs  []Message
	ids   map[string]struct{}
}

// LoadHistory restores the persisted snapshot from store.
func LoadHistory(store kv.Store) *History {
	h := &History{store: store}
	h.reset(h.Load())
	return h
}

// Load decodes the persisted snapshot. Missing or malformed data yields an
// empty history.
func (h *History) Load() []Message {
	raw, err := h.store.Get(historyKey)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			log.Debug().Err(err).Msg("[chat] read history")
		}
		return nil
	}
	var msgs []Message
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		log.Debug().Err(err).Msg("[chat] discard malformed history")
		return nil
	}
	return msgs
}

func (h *History) reset(msgs []Message) {
	h.msgs = msgs
	h.ids = make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		h.ids[m.ID] = struct{}{}
	}
}

// Append adds m to the end and persists the full sequence. The in-memory
// copy is updated even if persisting fails.
func (h *History) Append(m Message) error {
	h.msgs = append(h.msgs, m)
	h.ids[m.ID] = struct{}{}
	b, err := json.Marshal(h.msgs)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := h.store.Set(historyKey, string(b)); err != nil {
		return fmt.Errorf("persist history: %w", err)
	}
	return nil
}

func (h *History) Contains(id string) bool {
	_, ok := h.ids[id]
	return ok
}

func (h *History) Len() int { return len(h.msgs) }

// Messages returns a copy of the log in insertion order.
func (h *History) Messages() []Message {
	return append([]Message(nil), h.msgs...)
}

// Clear empties the log and removes the persisted snapshot.
func (h *History) Clear() error {
	h.reset(nil)
	return h.store.Remove(historyKey)
}
