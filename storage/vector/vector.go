// Package vector is a storage.Backend whose values may be float32 vectors
// indexed for nearest-neighbour search.
package vector

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"xdao.co/memhub/ann"
	"xdao.co/memhub/storage"
)

// ErrNotVector is returned by a strict Store for payloads that do not decode
// to a vector of the index dimension.
var ErrNotVector = errors.New("vector: payload is not a vector of the index dimension")

type Options struct {
	// Strict rejects writes that are not exactly Dim little-endian float32s.
	// Otherwise such values are stored but not indexed.
	Strict bool
}

type Store struct {
	engine ann.Engine
	strict bool

	mu     sync.RWMutex
	values map[string][]byte
	idOf   map[string]int
	keyOf  []string // by engine id; "" once superseded
	stale  int
}

// New wraps engine. The engine must be empty.
func New(engine ann.Engine, opts Options) (*Store, error) {
	if engine == nil {
		return nil, errors.New("vector: nil engine")
	}
	if engine.Len() != 0 {
		return nil, errors.New("vector: engine must be empty")
	}
	return &Store{
		engine: engine,
		strict: opts.Strict,
		values: make(map[string][]byte),
		idOf:   make(map[string]int),
	}, nil
}

func (s *Store) Write(_ context.Context, key string, value []byte) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	vec, ok := Decode(value, s.engine.Dim())
	if !ok && s.strict {
		return fmt.Errorf("%w: %d bytes", ErrNotVector, len(value))
	}
	v := bytes.Clone(value)
	if v == nil {
		v = []byte{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, exists := s.idOf[key]; exists {
		s.keyOf[old] = ""
		s.stale++
		delete(s.idOf, key)
	}
	if ok {
		id, err := s.engine.Insert(vec)
		if err != nil {
			return err
		}
		for len(s.keyOf) <= id {
			s.keyOf = append(s.keyOf, "")
		}
		s.keyOf[id] = key
		s.idOf[key] = id
	}
	s.values[key] = v
	return nil
}

func (s *Store) Read(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	v, ok := s.values[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(v), true, nil
}

// Search returns up to k keys whose current values are nearest to query.
func (s *Store) Search(_ context.Context, query []float32, k int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if k <= 0 {
		return nil, ann.ErrInvalidK
	}
	ids, err := s.engine.Search(query, k+s.stale)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, k)
	for _, id := range ids {
		if id >= len(s.keyOf) || s.keyOf[id] == "" {
			continue
		}
		out = append(out, s.keyOf[id])
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// Encode serializes vec as little-endian float32s.
func Encode(vec []float32) []byte {
	b := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(f))
	}
	return b
}

// Decode parses b as dim little-endian float32s.
func Decode(b []byte, dim int) ([]float32, bool) {
	if dim <= 0 || len(b) != 4*dim {
		return nil, false
	}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return vec, true
}
