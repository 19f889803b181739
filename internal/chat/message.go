// Package chat implements the room chat shown on the station page: a
// nickname per browser profile, a persisted history per profile, and
// best-effort convergence between tabs over a broadcast channel.
package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser   Role = "user"
	RoleModel  Role = "model"
	RoleSystem Role = "system"
)

const (
	// DefaultChannel is the broadcast channel shared by all tabs.
	DefaultChannel = "oasis_global_chat"

	SystemUser = "System"
	HostUser   = "Hippoo_ [Host]"
	HostColor  = "text-blue-400"

	timestampLayout = "15:04"
)

// Message is the record shared by persistence, broadcast and rendering.
type Message struct {
	ID        string `json:"id"`
	User      string `json:"user"`
	Text      string `json:"text"`
	Role      Role   `json:"role"`
	Timestamp string `json:"timestamp"`
	Color     string `json:"color,omitempty"`
}

// newID returns kind-prefixed time-ordered ids ("msg-…", "ai-…", "sys-…").
func newID(kind string) string {
	return kind + "-" + uuid.Must(uuid.NewV7()).String()
}

func stamp(t time.Time) string {
	return t.Format(timestampLayout)
}

func welcomeText(nickname string) string {
	return "🌐 " + nickname + " connected to the Oasis Network."
}

// replyPrompt frames a room message for the host persona.
func replyPrompt(nickname, text string) string {
	return "(Context: Real-time chat with " + nickname + ") " + text
}

func isConnectNotice(m Message) bool {
	return m.Role == RoleSystem && strings.Contains(m.Text, "connected")
}
