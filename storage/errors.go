package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is used at transport edges (RPC status, CLI exit codes)
	// where an absent value must travel as an error. Backend.Read reports
	// misses with found == false instead.
	ErrNotFound   = errors.New("storage: not found")
	ErrInvalidKey = errors.New("storage: invalid key")
	ErrClosed     = errors.New("storage: backend closed")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// Kind classifies a storage failure.
type Kind string

const (
	// KindIO is a backend-local I/O problem (disk, network, database).
	KindIO Kind = "io"
	// KindBackend wraps an opaque per-backend cause.
	KindBackend Kind = "backend"
)

// Error carries a classified storage failure and its cause.
type Error struct {
	Kind    Kind
	Backend string
	Op      string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := "storage"
	if e.Backend != "" {
		msg += " " + e.Backend
	}
	if e.Op != "" {
		msg += " " + e.Op
	}
	msg += " (" + string(e.Kind) + ")"
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IOError wraps cause as a KindIO failure of op.
func IOError(op string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: KindIO, Op: op, Cause: cause}
}

// BackendError attributes cause to the named backend. Errors already
// attributed to a backend keep their original attribution.
func BackendError(name, op string, cause error) error {
	if cause == nil {
		return nil
	}
	var se *Error
	if errors.As(cause, &se) && se.Backend != "" {
		return cause
	}
	return &Error{Kind: KindBackend, Backend: name, Op: op, Cause: cause}
}

// IsKind reports whether any storage Error in err's chain is of kind k.
func IsKind(err error, k Kind) bool {
	for err != nil {
		var se *Error
		if !errors.As(err, &se) {
			return false
		}
		if se.Kind == k {
			return true
		}
		err = se.Cause
	}
	return false
}

// ValidateKey rejects keys no backend can store.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	return nil
}
