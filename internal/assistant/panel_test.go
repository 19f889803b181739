package assistant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/oasis/internal/ai"
)

func TestNewPanelSeedsGreeting(t *testing.T) {
	p := NewPanel(nil, "Hippoo")
	turns := p.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, RoleModel, turns[0].Role)
	assert.Equal(t, "Hello! I'm Hippoo's digital twin. Ask me anything about my journey or the experiences I build.", turns[0].Text)
	assert.False(t, p.Loading())
}

func TestSendAppendsQuestionAndAnswer(t *testing.T) {
	var asked string
	c := ai.CompleterFunc(func(_ context.Context, prompt string) (string, error) {
		asked = prompt
		return "I build calm interfaces.", nil
	})
	p := NewPanel(ai.NewResponder(c, time.Second), "Hippoo")

	answer, err := p.Send(context.Background(), "what do you do?")
	require.NoError(t, err)
	assert.Equal(t, "what do you do?", asked)
	assert.Equal(t, Turn{Role: RoleModel, Text: "I build calm interfaces."}, answer)

	turns := p.Turns()
	require.Len(t, turns, 3)
	assert.Equal(t, Turn{Role: RoleUser, Text: "what do you do?"}, turns[1])
	assert.Equal(t, answer, turns[2])
}

func TestSendIgnoresBlankInput(t *testing.T) {
	p := NewPanel(nil, "Hippoo")
	_, err := p.Send(context.Background(), "  \n")
	require.ErrorIs(t, err, ErrEmptyQuestion)
	assert.Len(t, p.Turns(), 1)
}

func TestSendFallsBackOnError(t *testing.T) {
	c := ai.CompleterFunc(func(context.Context, string) (string, error) {
		return "", errors.New("boom")
	})
	p := NewPanel(ai.NewResponder(c, time.Second), "Hippoo")

	answer, err := p.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, ai.ErrorFallback, answer.Text)
}

func TestLoadingWhileWaiting(t *testing.T) {
	release := make(chan struct{})
	c := ai.CompleterFunc(func(ctx context.Context, _ string) (string, error) {
		<-release
		return "done", nil
	})
	p := NewPanel(ai.NewResponder(c, time.Second), "Hippoo")

	sent := make(chan struct{})
	go func() {
		defer close(sent)
		_, _ = p.Send(context.Background(), "still there?")
	}()

	require.Eventually(t, p.Loading, time.Second, time.Millisecond)
	close(release)
	<-sent
	assert.False(t, p.Loading())
}
