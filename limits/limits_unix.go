//go:build linux || darwin

package limits

import (
	"fmt"

	"golang.org/x/sys/unix"
)

var setrlimit = unix.Setrlimit

// Apply sets soft and hard limits for every non-zero field. Limits only
// ever tighten for unprivileged processes; they cannot be raised again.
func Apply(l Limits) error {
	for _, r := range []struct {
		name     string
		resource int
		value    uint64
	}{
		{"cpu", unix.RLIMIT_CPU, l.CPUSeconds},
		{"address space", unix.RLIMIT_AS, l.AddressSpaceBytes},
		{"open files", unix.RLIMIT_NOFILE, l.OpenFiles},
	} {
		if r.value == 0 {
			continue
		}
		if err := setrlimit(r.resource, &unix.Rlimit{Cur: r.value, Max: r.value}); err != nil {
			return fmt.Errorf("limits: set %s to %d: %w", r.name, r.value, err)
		}
	}
	return nil
}
