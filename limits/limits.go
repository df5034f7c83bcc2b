// Package limits applies OS resource limits to the current process.
package limits

import "errors"

// ErrUnsupported is returned when a limit is requested on a platform
// without setrlimit.
var ErrUnsupported = errors.New("limits: not supported on this platform")

// Limits caps process resources. Zero fields leave the limit unchanged.
type Limits struct {
	CPUSeconds        uint64 `mapstructure:"cpu_seconds"`
	AddressSpaceBytes uint64 `mapstructure:"address_space_bytes"`
	OpenFiles         uint64 `mapstructure:"open_files"`
}

// IsZero reports whether no limit is requested.
func (l Limits) IsZero() bool { return l == Limits{} }
