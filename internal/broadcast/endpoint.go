// Package broadcast implements named publish/subscribe channels with the
// semantics of a browser BroadcastChannel: a publication reaches every other
// endpoint joined to the same name, never the publisher, at most once and
// without replay for endpoints that join later.
package broadcast

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrClosed is returned when publishing on a closed endpoint or joining a closed hub.
var ErrClosed = errors.New("broadcast: closed")

const queueSize = 256

// Hub hands out endpoints on named channels.
type Hub interface {
	Join(name string) (*Endpoint, error)
	Close() error
}

// Endpoint is one subscriber on a channel. Deliveries run on a dedicated
// goroutine in arrival order, so a handler never runs concurrently with itself.
type Endpoint struct {
	id   string
	name string

	queue chan []byte
	done  chan struct{}
	once  sync.Once

	mu      sync.RWMutex
	handler func([]byte)

	publish func(ctx context.Context, e *Endpoint, payload []byte) error
	leave   func(e *Endpoint)
}

func newEndpoint(name string, publish func(context.Context, *Endpoint, []byte) error, leave func(*Endpoint)) *Endpoint {
	e := &Endpoint{
		id:      uuid.NewString(),
		name:    name,
		queue:   make(chan []byte, queueSize),
		done:    make(chan struct{}),
		publish: publish,
		leave:   leave,
	}
	go e.loop()
	return e
}

// ID identifies the endpoint within its hub.
func (e *Endpoint) ID() string { return e.id }

// Name is the channel the endpoint joined.
func (e *Endpoint) Name() string { return e.name }

// Publish sends payload to every other endpoint on the channel.
func (e *Endpoint) Publish(ctx context.Context, payload []byte) error {
	select {
	case <-e.done:
		return ErrClosed
	default:
	}
	return e.publish(ctx, e, payload)
}

// OnReceive installs the receive handler, replacing any previous one.
// A nil handler deregisters; deliveries arriving meanwhile are dropped.
func (e *Endpoint) OnReceive(fn func([]byte)) {
	e.mu.Lock()
	e.handler = fn
	e.mu.Unlock()
}

// Close leaves the channel and stops deliveries. It is safe to call twice.
func (e *Endpoint) Close() error {
	e.once.Do(func() {
		close(e.done)
		if e.leave != nil {
			e.leave(e)
		}
	})
	return nil
}

func (e *Endpoint) deliver(payload []byte) {
	select {
	case <-e.done:
		return
	default:
	}
	select {
	case e.queue <- payload:
	default:
		// slow subscriber: drop the oldest pending delivery
		select {
		case <-e.queue:
			log.Debug().Str("channel", e.name).Msg("[broadcast] queue full, dropped oldest delivery")
		default:
		}
		select {
		case e.queue <- payload:
		default:
		}
	}
}

func (e *Endpoint) loop() {
	for {
		select {
		case p := <-e.queue:
			e.mu.RLock()
			fn := e.handler
			e.mu.RUnlock()
			if fn != nil {
				fn(p)
			}
		case <-e.done:
			return
		}
	}
}
