//go:build !((linux || darwin || freebsd) && cgo)

package loader

import "errors"

var nativeSupported = false

var openNative = func(string) (lookupFunc, error) {
	return nil, errors.New("native plugins require cgo on linux, darwin or freebsd")
}
