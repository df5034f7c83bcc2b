// Package memory is an in-process storage.Backend.
package memory

import (
	"bytes"
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Options configures a Store.
type Options struct {
	// Capacity bounds the number of keys. Zero means unbounded; otherwise
	// the least recently used key is evicted once Capacity is reached.
	Capacity int
}

// Store keeps values in memory. Values are copied in and out so callers
// never share buffers with the store.
type Store struct {
	mu    sync.RWMutex
	items map[string][]byte
	cache *lru.Cache[string, []byte]
}

// New returns an empty store.
func New(opts Options) *Store {
	s := &Store{}
	if opts.Capacity > 0 {
		// lru.New only fails for non-positive sizes.
		s.cache, _ = lru.New[string, []byte](opts.Capacity)
		return s
	}
	s.items = make(map[string][]byte)
	return s
}

func (s *Store) Write(_ context.Context, key string, value []byte) error {
	v := bytes.Clone(value)
	if v == nil {
		v = []byte{}
	}
	if s.cache != nil {
		s.cache.Add(key, v)
		return nil
	}
	s.mu.Lock()
	s.items[key] = v
	s.mu.Unlock()
	return nil
}

func (s *Store) Read(_ context.Context, key string) ([]byte, bool, error) {
	var (
		v  []byte
		ok bool
	)
	if s.cache != nil {
		v, ok = s.cache.Get(key)
	} else {
		s.mu.RLock()
		v, ok = s.items[key]
		s.mu.RUnlock()
	}
	if !ok {
		return nil, false, nil
	}
	return append([]byte{}, v...), true, nil
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	if s.cache != nil {
		return s.cache.Len()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
