package chat

import (
	"math/rand/v2"
	"strings"
)

// DefaultReplyProbability is the chance that a message without a greeting
// still gets a reply from the host.
const DefaultReplyProbability = 0.2

// Trigger decides whether a sent message solicits a host reply.
type Trigger func(text string) bool

// GreetingTrigger fires when text contains "hi" or "hello" (any case), or
// otherwise with the given probability. rnd defaults to math/rand/v2.
func GreetingTrigger(probability float64, rnd func() float64) Trigger {
	if rnd == nil {
		rnd = rand.Float64
	}
	return func(text string) bool {
		lower := strings.ToLower(text)
		if strings.Contains(lower, "hi") || strings.Contains(lower, "hello") {
			return true
		}
		return rnd() < probability
	}
}
