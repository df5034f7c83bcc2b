//go:build (linux || darwin || freebsd) && cgo

package loader

import "plugin"

var nativeSupported = true

// openNative maps a shared object. Go cannot unload it again.
var openNative = func(path string) (lookupFunc, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, err
	}
	return func(name string) (any, error) { return p.Lookup(name) }, nil
}
