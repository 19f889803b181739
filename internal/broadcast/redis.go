package broadcast

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// envelope tags a publication with its sender so the sender can skip it.
type envelope struct {
	From string `json:"from"`
	Data []byte `json:"data"`
}

// Redis carries channels over Redis PUBLISH/SUBSCRIBE, so endpoints in
// different processes sharing one Redis see each other.
type Redis struct {
	client *redis.Client
	prefix string

	mu     sync.Mutex
	subs   map[*Endpoint]*redis.PubSub
	closed bool
}

// NewRedis uses client for all channels; channel names are prefixed with prefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix, subs: make(map[*Endpoint]*redis.PubSub)}
}

func (r *Redis) Join(name string) (*Endpoint, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	r.mu.Unlock()

	ctx := context.Background()
	ps := r.client.Subscribe(ctx, r.prefix+name)
	// wait for the subscription so publications right after Join are seen
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	e := newEndpoint(name, r.publish, r.leave)

	r.mu.Lock()
	r.subs[e] = ps
	r.mu.Unlock()

	go func() {
		for msg := range ps.Channel() {
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Debug().Err(err).Str("channel", name).Msg("[broadcast] bad redis envelope")
				continue
			}
			if env.From == e.id {
				continue
			}
			e.deliver(env.Data)
		}
	}()
	return e, nil
}

func (r *Redis) publish(ctx context.Context, from *Endpoint, payload []byte) error {
	b, err := json.Marshal(envelope{From: from.id, Data: payload})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.prefix+from.name, b).Err()
}

func (r *Redis) leave(e *Endpoint) {
	r.mu.Lock()
	ps := r.subs[e]
	delete(r.subs, e)
	r.mu.Unlock()
	if ps != nil {
		_ = ps.Close()
	}
}

// Close closes all endpoints. The Redis client stays open.
func (r *Redis) Close() error {
	r.mu.Lock()
	r.closed = true
	all := make([]*Endpoint, 0, len(r.subs))
	for e := range r.subs {
		all = append(all, e)
	}
	r.mu.Unlock()
	for _, e := range all {
		_ = e.Close()
	}
	return nil
}
