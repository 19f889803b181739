// Package clock renders the header clock.
package clock

import (
	"context"
	"time"
)

type Reading struct {
	Time string `json:"time"`
	Date string `json:"date"`
}

// Format is a pure function of t: "15:04" and "Mon, Jan 2".
func Format(t time.Time) Reading {
	return Reading{Time: t.Format("15:04"), Date: t.Format("Mon, Jan 2")}
}

// Run calls fn with the current reading immediately and then on every
// tick until ctx is done. The ticker is released when Run returns.
func Run(ctx context.Context, every time.Duration, now func() time.Time, fn func(Reading)) {
	if now == nil {
		now = time.Now
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	fn(Format(now()))
	for {
		select {
		case <-ticker.C:
			fn(Format(now()))
		case <-ctx.Done():
			return
		}
	}
}
