// Package views keeps the "live" daily view figure shown in the header.
package views

import (
	"errors"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/oasis/internal/kv"
	"github.com/gosuda/oasis/internal/metrics"
)

const (
	dateKey  = "view_date"
	countKey = "today_views"

	// A new day starts somewhere in [BaselineMin, BaselineMin+BaselineSpan).
	BaselineMin  = 120
	BaselineSpan = 50

	fallbackCount = 100
)

type Counter struct {
	store kv.Store
	rnd   *rand.Rand
}

func NewCounter(store kv.Store, rnd *rand.Rand) *Counter {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Counter{store: store, rnd: rnd}
}

// Mount counts one page load at now and returns the figure to show.
func (c *Counter) Mount(now time.Time) int {
	today := now.UTC().Format(time.DateOnly)

	storedDate, err := c.store.Get(dateKey)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		log.Debug().Err(err).Msg("[views] read date")
	}

	var views int
	if storedDate != today {
		views = BaselineMin + c.rnd.IntN(BaselineSpan)
		if err := c.store.Set(dateKey, today); err != nil {
			log.Warn().Err(err).Msg("[views] persist date")
		}
		metrics.ViewMounts.WithLabelValues("rebaseline").Inc()
	} else {
		views = c.stored() + 1
		metrics.ViewMounts.WithLabelValues("increment").Inc()
	}

	if err := c.store.Set(countKey, strconv.Itoa(views)); err != nil {
		log.Warn().Err(err).Msg("[views] persist count")
	}
	return views
}

func (c *Counter) stored() int {
	raw, err := c.store.Get(countKey)
	if err != nil {
		return fallbackCount
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallbackCount
	}
	return n
}
