package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"xdao.co/memhub/storage"
)

// Driver is a build-time plugin that can open a storage.Backend.
//
// Drivers typically register themselves in init():
//
//	registry.MustRegister(registry.Driver{ ... })
//
// The binary must import the driver package for registration to occur.
type Driver struct {
	Name        string
	Description string
	Usage       Usage

	// Open constructs the backend from its configuration parameters.
	// It returns an optional close function.
	Open func(ctx context.Context, params Params) (storage.Backend, func() error, error)
}

var (
	mu      sync.RWMutex
	drivers = map[string]Driver{}
)

// Register registers a driver.
func Register(d Driver) error {
	if d.Name == "" {
		return fmt.Errorf("registry: driver name is required")
	}
	if d.Open == nil {
		return fmt.Errorf("registry: driver %q missing Open", d.Name)
	}
	if d.Usage == 0 {
		return fmt.Errorf("registry: driver %q missing Usage", d.Name)
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := drivers[d.Name]; exists {
		return fmt.Errorf("registry: driver %q already registered", d.Name)
	}
	drivers[d.Name] = d
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(d Driver) {
	if err := Register(d); err != nil {
		panic(err)
	}
}

// List returns drivers matching usage, sorted by name.
func List(usage Usage) []Driver {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Driver, 0, len(drivers))
	for _, d := range drivers {
		if d.Usage.allows(usage) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns driver names matching usage, sorted.
func Names(usage Usage) []string {
	ds := List(usage)
	n := make([]string, 0, len(ds))
	for _, d := range ds {
		n = append(n, d.Name)
	}
	return n
}

// Lookup returns the named driver.
func Lookup(name string) (Driver, bool) {
	mu.RLock()
	defer mu.RUnlock()
	d, ok := drivers[name]
	return d, ok
}

// Open opens the named driver if it exists and matches usage.
func Open(ctx context.Context, name string, usage Usage, params Params) (storage.Backend, func() error, error) {
	d, ok := Lookup(name)
	if !ok {
		return nil, nil, fmt.Errorf("unknown driver %q", name)
	}
	if !d.Usage.allows(usage) {
		return nil, nil, fmt.Errorf("driver %q not supported in this binary", name)
	}
	b, closeFn, err := d.Open(ctx, params)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", name, err)
	}
	if closeFn == nil {
		closeFn = func() error { return storage.Close(b) }
	}
	return b, closeFn, nil
}
