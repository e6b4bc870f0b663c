// Package cache holds the small read-through caches the notifier uses for
// group rosters and display names.
package cache

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
	Size() int
}

// LoaderFunc fetches the value for a key on a cache miss.
type LoaderFunc[T any] func(ctx context.Context, key string) (T, error)

// Loading is a read-through cache. Concurrent misses for one key share a single load.
type Loading[T any] struct {
	cache  Cache[T]
	load   LoaderFunc[T]
	flight singleflight.Group
}

func NewLoading[T any](c Cache[T], load LoaderFunc[T]) *Loading[T] {
	return &Loading[T]{cache: c, load: load}
}

// Get returns the cached value or loads and stores it. Load errors are not cached.
func (l *Loading[T]) Get(ctx context.Context, key string) (T, error) {
	if v, ok := l.cache.Get(key); ok {
		return v, nil
	}
	v, err, _ := l.flight.Do(key, func() (interface{}, error) {
		v, err := l.load(ctx, key)
		if err != nil {
			return nil, err
		}
		l.cache.Set(key, v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Invalidate forgets key so the next Get reloads it.
func (l *Loading[T]) Invalidate(key string) {
	l.cache.Delete(key)
}

type Cleaner interface {
	CleanExpired() int
}

// Manager sweeps expired entries out of registered caches.
type Manager struct {
	caches []Cleaner
}

func NewManager(caches ...Cleaner) *Manager {
	return &Manager{caches: caches}
}

// Clean runs one sweep over every cache and returns the number of entries dropped.
func (m *Manager) Clean() int {
	total := 0
	for _, c := range m.caches {
		total += c.CleanExpired()
	}
	return total
}

// Run cleans every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Clean(); n > 0 {
				slog.DebugContext(ctx, "Cache cleanup", "removed", n)
			}
		}
	}
}
