// Package kv provides the small synchronous key-value stores that back
// per-profile state: nickname, chat history and the view counter.
package kv

import "errors"

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("kv: key not found")

// Store is a synchronous string key-value store.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Remove(key string) error
	Close() error
}

// scoped prefixes every key so several profiles can share one backend.
type scoped struct {
	inner  Store
	prefix string
}

// Scope returns a view of s where every key lives under prefix.
// Closing the view does not close s.
func Scope(s Store, prefix string) Store {
	return &scoped{inner: s, prefix: prefix}
}

func (s *scoped) Get(key string) (string, error) { return s.inner.Get(s.prefix + key) }
func (s *scoped) Set(key, value string) error    { return s.inner.Set(s.prefix+key, value) }
func (s *scoped) Remove(key string) error        { return s.inner.Remove(s.prefix + key) }
func (s *scoped) Close() error                   { return nil }
