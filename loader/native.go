package loader

import (
	"fmt"
	"reflect"

	"github.com/sourcegraph/conc/panics"

	"xdao.co/memhub/storage"
)

// ConstructorSymbol is the symbol a native plugin exports:
//
//	func CreateBackend() storage.Backend
const ConstructorSymbol = "CreateBackend"

type lookupFunc func(name string) (any, error)

func loadNative(path string) (storage.Backend, error) {
	lookup, err := openNative(path)
	if err != nil {
		return nil, loadError(path, ReasonInstantiationFailed, err)
	}
	return adoptNative(lookup)
}

// adoptNative resolves and invokes the constructor exactly once.
func adoptNative(lookup lookupFunc) (storage.Backend, error) {
	sym, err := lookup(ConstructorSymbol)
	if err != nil {
		return nil, loadError("", ReasonMissingConstructorSymbol, err)
	}
	var ctor func() storage.Backend
	switch fn := sym.(type) {
	case func() storage.Backend:
		ctor = fn
	case *func() storage.Backend:
		if fn != nil {
			ctor = *fn
		}
	}
	if ctor == nil {
		return nil, loadError("", ReasonMissingConstructorSymbol, fmt.Errorf("%s has type %T", ConstructorSymbol, sym))
	}

	var b storage.Backend
	if r := panics.Try(func() { b = ctor() }); r != nil {
		return nil, loadError("", ReasonInstantiationFailed, r.AsError())
	}
	if isNil(b) {
		return nil, loadError("", ReasonConstructorReturnedNull, nil)
	}
	return b, nil
}

// isNil reports a nil interface or one holding a nil pointer, map, slice,
// func or channel.
func isNil(b storage.Backend) bool {
	if b == nil {
		return true
	}
	switch v := reflect.ValueOf(b); v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}
