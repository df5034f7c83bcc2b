//go:build !(linux || darwin)

package limits

// Apply fails with ErrUnsupported if any limit is requested.
func Apply(l Limits) error {
	if l.IsZero() {
		return nil
	}
	return ErrUnsupported
}
