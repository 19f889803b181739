package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/oasis/internal/assistant"
)

type assistantRequest struct {
	Type string `json:"type"` // "ask"
	Text string `json:"text"`
}

type assistantFrame struct {
	Type    string           `json:"type"` // "state" | "turn" | "loading" | "error"
	Turns   []assistant.Turn `json:"turns,omitempty"`
	Turn    *assistant.Turn  `json:"turn,omitempty"`
	Loading *bool            `json:"loading,omitempty"`
	Error   string           `json:"error,omitempty"`
}

func loadingFrame(loading bool) assistantFrame {
	return assistantFrame{Type: "loading", Loading: &loading}
}

func turnFrame(turn assistant.Turn) assistantFrame {
	return assistantFrame{Type: "turn", Turn: &turn}
}

// handleAssistant opens a fresh panel per connection; nothing survives a
// reload.
func (s *Server) handleAssistant(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("[web] upgrade assistant")
		return
	}
	t := newTab(conn)
	if !s.track(t) {
		t.goAway()
		return
	}
	defer s.untrack(t)

	ctx, cancel := context.WithCancel(s.ctx)
	var asks sync.WaitGroup
	defer func() {
		cancel()
		asks.Wait()
	}()

	panel := assistant.NewPanel(s.opts.Responder, s.opts.Profile.Name)
	go t.writeLoop()
	t.push(assistantFrame{Type: "state", Turns: panel.Turns()})

	t.readLoop(func(payload []byte) {
		var req assistantRequest
		if err := json.Unmarshal(payload, &req); err != nil || req.Type != "ask" {
			t.push(assistantFrame{Type: "error", Error: "bad_frame"})
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			t.push(assistantFrame{Type: "error", Error: "empty_question"})
			return
		}
		t.push(turnFrame(assistant.Turn{Role: assistant.RoleUser, Text: req.Text}))
		t.push(loadingFrame(true))
		asks.Add(1)
		go func() {
			defer asks.Done()
			answer, err := panel.Send(ctx, req.Text)
			if err != nil {
				log.Debug().Err(err).Msg("[assistant] ask")
				return
			}
			t.push(turnFrame(answer))
			t.push(loadingFrame(panel.Loading()))
		}()
	})
}
