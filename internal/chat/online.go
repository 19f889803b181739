package chat

import "math/rand/v2"

const (
	OnlineMax = 30

	onlineSeedMin  = 5
	onlineSeedSpan = 3
	onlineFloor    = 1
)

// onlineCounter is a display-only "people here" figure. It tracks nothing.
type onlineCounter struct {
	n   int
	rnd *rand.Rand
}

func newOnlineCounter(rnd *rand.Rand) onlineCounter {
	return onlineCounter{n: onlineSeedMin + rnd.IntN(onlineSeedSpan), rnd: rnd}
}

func (c *onlineCounter) bump() int {
	c.n = min(c.n+1, OnlineMax)
	return c.n
}

// jitter drifts the count by -1, 0 or +1.
func (c *onlineCounter) jitter() int {
	c.n = max(onlineFloor, min(c.n+c.rnd.IntN(3)-1, OnlineMax))
	return c.n
}
