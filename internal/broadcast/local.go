package broadcast

import (
	"context"
	"sync"
)

// Local fans publications out inside one process.
type Local struct {
	mu       sync.RWMutex
	channels map[string]map[*Endpoint]struct{}
	closed   bool

	// onPublish observes locally originated publications after fan-out.
	onPublish func(name string, payload []byte)
}

func NewLocal() *Local {
	return &Local{channels: make(map[string]map[*Endpoint]struct{})}
}

func (l *Local) Join(name string) (*Endpoint, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	e := newEndpoint(name, l.publish, l.leave)
	set, ok := l.channels[name]
	if !ok {
		set = make(map[*Endpoint]struct{})
		l.channels[name] = set
	}
	set[e] = struct{}{}
	return e, nil
}

// Subscribers reports how many endpoints are joined to name.
func (l *Local) Subscribers(name string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.channels[name])
}

func (l *Local) publish(_ context.Context, from *Endpoint, payload []byte) error {
	l.fanout(from.name, from, payload)
	if l.onPublish != nil {
		l.onPublish(from.name, payload)
	}
	return nil
}

// fanout delivers payload to every endpoint on name except the sender.
func (l *Local) fanout(name string, except *Endpoint, payload []byte) {
	l.mu.RLock()
	targets := make([]*Endpoint, 0, len(l.channels[name]))
	for e := range l.channels[name] {
		if e != except {
			targets = append(targets, e)
		}
	}
	l.mu.RUnlock()
	if len(targets) == 0 {
		return
	}
	data := append([]byte(nil), payload...)
	for _, e := range targets {
		e.deliver(data)
	}
}

func (l *Local) leave(e *Endpoint) {
	l.mu.Lock()
	defer l.mu.Unlock()
	set := l.channels[e.name]
	delete(set, e)
	if len(set) == 0 {
		delete(l.channels, e.name)
	}
}

// Close closes every joined endpoint and refuses further joins.
func (l *Local) Close() error {
	l.mu.Lock()
	l.closed = true
	var all []*Endpoint
	for _, set := range l.channels {
		for e := range set {
			all = append(all, e)
		}
	}
	l.mu.Unlock()
	for _, e := range all {
		_ = e.Close()
	}
	return nil
}
