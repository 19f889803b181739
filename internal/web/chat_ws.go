package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/oasis/internal/chat"
)

// Frames the chat page sends.
type chatRequest struct {
	Type    string `json:"type"` // "nickname" | "send" | "reset"
	Text    string `json:"text,omitempty"`
	Confirm bool   `json:"confirm,omitempty"`
}

// Frames the server pushes to a chat tab.
type chatFrame struct {
	Type     string         `json:"type"` // "state" | "message" | "loading" | "online" | "identity" | "error"
	State    *chat.Snapshot `json:"state,omitempty"`
	Message  *chat.Message  `json:"message,omitempty"`
	Loading  *bool          `json:"loading,omitempty"`
	Online   int            `json:"online,omitempty"`
	Nickname string         `json:"nickname,omitempty"`
	Error    string         `json:"error,omitempty"`
}

func stateFrame(snap chat.Snapshot) chatFrame {
	return chatFrame{Type: "state", State: &snap}
}

func errorFrame(code string) chatFrame {
	return chatFrame{Type: "error", Error: code}
}

// eventFrame translates a session event; ok is false for events the page
// learns about some other way.
func eventFrame(ev chat.Event) (chatFrame, bool) {
	switch ev.Kind {
	case chat.EventMessage:
		m := ev.Message
		return chatFrame{Type: "message", Message: &m}, true
	case chat.EventLoading:
		loading := ev.Loading
		return chatFrame{Type: "loading", Loading: &loading}, true
	case chat.EventOnline:
		return chatFrame{Type: "online", Online: ev.Online}, true
	case chat.EventIdentity:
		return chatFrame{Type: "identity", Nickname: ev.Nickname}, true
	}
	return chatFrame{}, false
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, chat.ErrNicknameTooShort):
		return "nickname_too_short"
	case errors.Is(err, chat.ErrNotConfirmed):
		return "not_confirmed"
	case errors.Is(err, chat.ErrNoIdentity):
		return "no_identity"
	case errors.Is(err, chat.ErrEmptyMessage):
		return "empty_message"
	case errors.Is(err, chat.ErrClosed):
		return "closed"
	}
	return "internal"
}

// handleChat mounts one chat session for the lifetime of the connection.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	profileID, header := upgradeProfile(r)
	conn, err := s.upgrader.Upgrade(w, r, header)
	if err != nil {
		log.Debug().Err(err).Msg("[web] upgrade chat")
		return
	}
	t := newTab(conn)
	if !s.track(t) {
		t.goAway()
		return
	}
	defer s.untrack(t)

	var mounted atomic.Bool
	sess, err := chat.NewSession(chat.SessionConfig{
		Store:        s.profileStore(profileID),
		Hub:          s.opts.Hub,
		Channel:      s.channel(profileID),
		Responder:    s.opts.Responder,
		Trigger:      s.opts.Trigger,
		Now:          s.viewerNow(r),
		OnlineJitter: s.opts.OnlineJitter,
		Listener: func(ev chat.Event) {
			if !mounted.Load() {
				return
			}
			if f, ok := eventFrame(ev); ok {
				t.push(f)
			}
		},
	})
	if err != nil {
		log.Warn().Err(err).Str("profile", profileID).Msg("[chat] mount session")
		_ = writeFrame(conn, errorFrame("unavailable"))
		return
	}
	defer sess.Close()

	go t.writeLoop()
	if err := sess.Attach(func(snap chat.Snapshot) {
		t.push(stateFrame(snap))
		mounted.Store(true)
	}); err != nil {
		return
	}
	log.Debug().Str("profile", profileID).Msg("[chat] tab mounted")

	t.readLoop(func(payload []byte) {
		var req chatRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			t.push(errorFrame("bad_frame"))
			return
		}
		if err := s.applyChat(t, sess, req); err != nil {
			t.push(errorFrame(errorCode(err)))
		}
	})
}

func (s *Server) applyChat(t *tab, sess *chat.Session, req chatRequest) error {
	switch req.Type {
	case "nickname":
		_, err := sess.SetNickname(req.Text)
		return err
	case "send":
		_, err := sess.Send(req.Text)
		return err
	case "reset":
		if err := sess.Reset(req.Confirm); err != nil {
			return err
		}
		return sess.Attach(func(snap chat.Snapshot) { t.push(stateFrame(snap)) })
	}
	t.push(errorFrame("unknown_type"))
	return nil
}
