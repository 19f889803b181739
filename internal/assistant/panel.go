// Package assistant is the one-shot "digital twin" panel: every question
// goes straight to the completion endpoint and nothing is kept between
// connections.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gosuda/oasis/internal/ai"
)

var ErrEmptyQuestion = errors.New("assistant: question is empty")

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

func Greeting(name string) string {
	return fmt.Sprintf("Hello! I'm %s's digital twin. Ask me anything about my journey or the experiences I build.", name)
}

type Panel struct {
	responder *ai.Responder

	mu      sync.Mutex
	turns   []Turn
	pending int
}

func NewPanel(responder *ai.Responder, ownerName string) *Panel {
	if responder == nil {
		responder = ai.NewResponder(nil, 0)
	}
	return &Panel{
		responder: responder,
		turns:     []Turn{{Role: RoleModel, Text: Greeting(ownerName)}},
	}
}

// Send records the question, waits for the answer and records that too.
// The returned turn is the model's answer, which is always present: failed
// completions answer with fallback text.
func (p *Panel) Send(ctx context.Context, text string) (Turn, error) {
	if strings.TrimSpace(text) == "" {
		return Turn{}, ErrEmptyQuestion
	}

	p.mu.Lock()
	p.turns = append(p.turns, Turn{Role: RoleUser, Text: text})
	p.pending++
	p.mu.Unlock()

	answer := Turn{Role: RoleModel, Text: p.responder.Reply(ctx, text)}

	p.mu.Lock()
	p.turns = append(p.turns, answer)
	p.pending--
	p.mu.Unlock()
	return answer, nil
}

func (p *Panel) Turns() []Turn {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Turn, len(p.turns))
	copy(out, p.turns)
	return out
}

func (p *Panel) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending > 0
}
