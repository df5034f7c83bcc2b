// Package hub routes key/value operations across an ordered set of backends.
//
// Every call fans out to all registered backends concurrently and waits for
// all of them. Results are then merged by scanning in registration order, so
// the outcome depends only on what each backend returned and where it sits in
// the registry, never on which backend finished first.
package hub

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc/panics"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"xdao.co/memhub/metrics"
	"xdao.co/memhub/storage"
)

const (
	opWrite = "write"
	opRead  = "read"
)

// Hub holds the registry and fans operations out across it.
//
// Registration is expected during setup only. Registering while calls are in
// flight is safe but the new backend is not seen by calls already running.
type Hub struct {
	mu       sync.RWMutex
	backends []storage.NamedBackend
	names    map[string]struct{}

	log     *zap.Logger
	metrics *metrics.HubMetrics
}

var _ storage.Backend = (*Hub)(nil)

// Option configures a Hub.
type Option func(*Hub)

func WithLogger(l *zap.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}

func WithMetrics(m *metrics.HubMetrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// New returns a Hub with an empty registry.
func New(opts ...Option) *Hub {
	h := &Hub{
		names: make(map[string]struct{}),
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register appends b to the registry. Names must be non-empty and unique.
func (h *Hub) Register(name string, b storage.Backend) error {
	if name == "" {
		return fmt.Errorf("hub: backend name is required")
	}
	if b == nil {
		return fmt.Errorf("hub: backend %q is nil", name)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, dup := h.names[name]; dup {
		return fmt.Errorf("hub: backend %q already registered", name)
	}
	h.names[name] = struct{}{}
	h.backends = append(h.backends, storage.NamedBackend{Name: name, Backend: b})
	h.log.Info("Registered backend", zap.String("backend", name), zap.Int("position", len(h.backends)-1))
	return nil
}

// MustRegister is like Register but panics on error.
func (h *Hub) MustRegister(name string, b storage.Backend) {
	if err := h.Register(name, b); err != nil {
		panic(err)
	}
}

// Backends returns the registry in order.
func (h *Hub) Backends() []storage.NamedBackend {
	return append([]storage.NamedBackend(nil), h.snapshot()...)
}

// Len returns the number of registered backends.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.backends)
}

func (h *Hub) snapshot() []storage.NamedBackend {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.backends[:len(h.backends):len(h.backends)]
}

// Write sends (key, value) to every backend, each with its own copy of value.
// It waits for all of them and returns the error of the lowest-index backend
// that failed, or nil. An empty registry succeeds.
func (h *Hub) Write(ctx context.Context, key string, value []byte) error {
	start := time.Now()
	backends := h.snapshot()
	errs := make([]error, len(backends))

	fanOut(backends, func(i int, nb storage.NamedBackend) {
		errs[i] = call(nb.Name, opWrite, func() error {
			return nb.Backend.Write(ctx, key, bytes.Clone(value))
		})
	})

	err := mergeWrite(errs)
	h.observe(opWrite, backends, errs, err, start)
	return err
}

// Read asks every backend for key and waits for all of them. Scanning in
// registry order, the first backend that either failed or holds key decides
// the result. When every backend misses, Read reports not found.
func (h *Hub) Read(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	backends := h.snapshot()
	results := make([]readResult, len(backends))

	fanOut(backends, func(i int, nb storage.NamedBackend) {
		var r readResult
		r.err = call(nb.Name, opRead, func() error {
			var err error
			r.value, r.found, err = nb.Backend.Read(ctx, key)
			return err
		})
		results[i] = r
	})

	value, found, err := mergeRead(results)
	errs := make([]error, len(results))
	for i, r := range results {
		errs[i] = r.err
	}
	h.observe(opRead, backends, errs, err, start)
	return value, found, err
}

// Close closes every backend that holds resources, last registered first.
func (h *Hub) Close() error {
	backends := h.snapshot()
	var err error
	for i := len(backends) - 1; i >= 0; i-- {
		if cerr := storage.Close(backends[i].Backend); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close %s: %w", backends[i].Name, cerr))
		}
	}
	return err
}

func (h *Hub) observe(op string, backends []storage.NamedBackend, errs []error, err error, start time.Time) {
	for i, e := range errs {
		if e == nil {
			continue
		}
		h.metrics.BackendError(backends[i].Name, op)
		h.log.Warn("Backend call failed",
			zap.String("backend", backends[i].Name),
			zap.String("op", op),
			zap.Error(e))
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	h.metrics.ObserveOp(op, result, time.Since(start))
}

type readResult struct {
	value []byte
	found bool
	err   error
}

// fanOut runs fn once per backend concurrently and returns when all are done.
func fanOut(backends []storage.NamedBackend, fn func(int, storage.NamedBackend)) {
	var wg sync.WaitGroup
	wg.Add(len(backends))
	for i, nb := range backends {
		i, nb := i, nb
		go func() {
			defer wg.Done()
			fn(i, nb)
		}()
	}
	wg.Wait()
}

// call runs fn, converting a panic into an error, and attributes any
// failure to the named backend.
func call(name, op string, fn func() error) error {
	var err error
	if r := panics.Try(func() { err = fn() }); r != nil {
		err = r.AsError()
	}
	return storage.BackendError(name, op, err)
}

func mergeWrite(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func mergeRead(results []readResult) ([]byte, bool, error) {
	for _, r := range results {
		if r.err != nil {
			return nil, false, r.err
		}
		if r.found {
			return r.value, true, nil
		}
	}
	return nil, false, nil
}
