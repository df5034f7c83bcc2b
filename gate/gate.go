// Package gate bounds the number of concurrently in-flight operations.
package gate

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

var ErrInvalidCapacity = errors.New("gate: capacity must be positive")

// Gate admits at most Capacity units of work at a time.
//
// Waiters are admitted in arrival order. A permit is returned when the
// wrapped work returns, fails or panics.
type Gate struct {
	capacity int64
	sem      *semaphore.Weighted
	inFlight atomic.Int64
}

// New returns a gate with the given capacity.
func New(capacity int) (*Gate, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	return &Gate{
		capacity: int64(capacity),
		sem:      semaphore.NewWeighted(int64(capacity)),
	}, nil
}

// MustNew is like New but panics on an invalid capacity.
func MustNew(capacity int) *Gate {
	g, err := New(capacity)
	if err != nil {
		panic(err)
	}
	return g
}

// Do runs fn under a permit. If ctx ends before a permit is available, fn is
// not run and ctx.Err() is returned.
func (g *Gate) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	g.inFlight.Add(1)
	defer func() {
		g.inFlight.Add(-1)
		g.sem.Release(1)
	}()
	return fn(ctx)
}

// Run is Do for work producing a value.
func Run[T any](ctx context.Context, g *Gate, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := g.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

// Capacity returns the maximum number of concurrent permits.
func (g *Gate) Capacity() int { return int(g.capacity) }

// InFlight returns the number of permits currently held.
func (g *Gate) InFlight() int { return int(g.inFlight.Load()) }
