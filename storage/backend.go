package storage

import (
	"context"
	"io"
)

// Backend is the capability every storage medium and plugin provides.
//
// Contract:
// - Write persists or replaces the value for key under the backend's own durability rules.
// - Read MUST report an absent key as found == false with a nil error.
// - Any other failure is returned as an error; callers never see partial values.
// - Both methods MUST be safe for concurrent use without external locking.
type Backend interface {
	Write(ctx context.Context, key string, value []byte) error
	Read(ctx context.Context, key string) (value []byte, found bool, err error)
}

// NamedBackend associates a Backend with a stable name.
//
// Names are used for error attribution, logging and metrics labels.
type NamedBackend struct {
	Name    string
	Backend Backend
}

// Close releases b if it holds resources.
func Close(b Backend) error {
	if c, ok := b.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
