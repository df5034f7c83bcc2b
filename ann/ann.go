// Package ann provides approximate-nearest-neighbour engines for float32 vectors.
package ann

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
)

var (
	ErrDimension = errors.New("ann: dimension mismatch")
	ErrInvalidK  = errors.New("ann: k must be positive")
)

// Engine indexes vectors under dense integer ids assigned on insert.
type Engine interface {
	Dim() int
	Insert(vec []float32) (int, error)
	Search(query []float32, k int) ([]int, error)
	Len() int
}

// Scalar is a brute-force L2 engine. Search is O(n·dim).
type Scalar struct {
	dim int

	mu   sync.RWMutex
	data [][]float64
}

var _ Engine = (*Scalar)(nil)

func NewScalar(dim int) (*Scalar, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("ann: dimension must be positive, got %d", dim)
	}
	return &Scalar{dim: dim}, nil
}

func (s *Scalar) Dim() int { return s.dim }

func (s *Scalar) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *Scalar) Insert(vec []float32) (int, error) {
	if len(vec) != s.dim {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(vec), s.dim)
	}
	v := widen(vec)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append(s.data, v)
	return len(s.data) - 1, nil
}

// Search returns up to k ids ordered by ascending distance; ties keep
// insertion order.
func (s *Scalar) Search(query []float32, k int) ([]int, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if len(query) != s.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(query), s.dim)
	}
	q := widen(query)

	s.mu.RLock()
	type hit struct {
		id   int
		dist float64
	}
	hits := make([]hit, len(s.data))
	for i, v := range s.data {
		hits[i] = hit{id: i, dist: floats.Distance(v, q, 2)}
	}
	s.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })
	if k > len(hits) {
		k = len(hits)
	}
	out := make([]int, k)
	for i := range out {
		out[i] = hits[i].id
	}
	return out, nil
}

func widen(vec []float32) []float64 {
	out := make([]float64, len(vec))
	for i, f := range vec {
		out[i] = float64(f)
	}
	return out
}
