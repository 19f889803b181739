package ai

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/oasis/internal/metrics"
)

const (
	// EmptyFallback replaces a completion that came back blank.
	EmptyFallback = "I'm sorry, I couldn't process that."
	// ErrorFallback replaces a failed completion.
	ErrorFallback = "The assistant is currently resting in the cloud. Please try again later."
)

// Responder is the completion boundary used by the chat widgets: it always
// yields displayable text and never returns an error.
type Responder struct {
	completer Completer
	timeout   time.Duration
}

// NewResponder wraps c. A zero timeout leaves the request bounded only by
// the caller's context and the transport.
func NewResponder(c Completer, timeout time.Duration) *Responder {
	if c == nil {
		c = Offline{}
	}
	return &Responder{completer: c, timeout: timeout}
}

// Reply returns the completion for prompt or one of the fallback texts.
func (r *Responder) Reply(ctx context.Context, prompt string) string {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	text, err := r.completer.Complete(ctx, prompt)
	if err != nil {
		log.Warn().Err(err).Msg("[ai] completion failed")
		metrics.AIReplies.WithLabelValues("error").Inc()
		return ErrorFallback
	}
	if text == "" {
		metrics.AIReplies.WithLabelValues("empty").Inc()
		return EmptyFallback
	}
	metrics.AIReplies.WithLabelValues("ok").Inc()
	return text
}
