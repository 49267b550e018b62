// Package kv is scoped, expiring key-value storage shared by every instance of the service.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is absent or expired.
var ErrNotFound = errors.New("kv: key not found")

// Store is the TTL key-value contract.
type Store interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// PutIfAbsent stores value only when key is unset and reports whether it did.
	PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
	// Take returns and deletes key atomically; a second Take sees ErrNotFound.
	Take(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// Scoped prefixes every key with scope so unrelated callers never collide.
type Scoped struct {
	inner Store
	scope string
}

func NewScoped(inner Store, scope string) *Scoped {
	return &Scoped{inner: inner, scope: scope}
}

func (s *Scoped) key(k string) string { return s.scope + ":" + k }

func (s *Scoped) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.inner.Put(ctx, s.key(key), value, ttl)
}

func (s *Scoped) PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return s.inner.PutIfAbsent(ctx, s.key(key), value, ttl)
}

func (s *Scoped) Get(ctx context.Context, key string) ([]byte, error) {
	return s.inner.Get(ctx, s.key(key))
}

func (s *Scoped) Take(ctx context.Context, key string) ([]byte, error) {
	return s.inner.Take(ctx, s.key(key))
}

func (s *Scoped) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, s.key(key))
}

func (s *Scoped) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}
