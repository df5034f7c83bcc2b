package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"xdao.co/memhub/storage"
)

// Exports of a WASM backend module.
const (
	wasmConstructor = "create_backend"
	wasmAlloc       = "backend_alloc"
	wasmWrite       = "backend_write"
	wasmRead        = "backend_read"
	wasmFree        = "backend_free"
)

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

// ErrABI reports a module that does not export the backend ABI.
var ErrABI = errors.New("loader: module does not implement the backend ABI")

var adoptWasmFn = adoptWasm

// adoptWasm compiles code in a fresh runtime with no host modules and runs
// its constructor once.
func adoptWasm(ctx context.Context, code []byte) (storage.Backend, error) {
	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig())
	b, err := instantiate(ctx, rt, code)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	return b, nil
}

func instantiate(ctx context.Context, rt wazero.Runtime, code []byte) (*wasmBackend, error) {
	compiled, err := rt.CompileModule(ctx, code)
	if err != nil {
		return nil, loadError("", ReasonInstantiationFailed, err)
	}
	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, loadError("", ReasonInstantiationFailed, err)
	}

	ctor := mod.ExportedFunction(wasmConstructor)
	if ctor == nil || !signature(ctor, nil, []api.ValueType{i32}) {
		return nil, loadError("", ReasonMissingConstructorSymbol, fmt.Errorf("want export %s: () -> i32", wasmConstructor))
	}
	w := &wasmBackend{
		rt:    rt,
		mod:   mod,
		alloc: mod.ExportedFunction(wasmAlloc),
		write: mod.ExportedFunction(wasmWrite),
		read:  mod.ExportedFunction(wasmRead),
		free:  mod.ExportedFunction(wasmFree),
	}
	switch {
	case mod.Memory() == nil:
		return nil, loadError("", ReasonInstantiationFailed, fmt.Errorf("%w: no memory", ErrABI))
	case w.alloc == nil || !signature(w.alloc, []api.ValueType{i32}, []api.ValueType{i32}):
		return nil, loadError("", ReasonInstantiationFailed, fmt.Errorf("%w: %s", ErrABI, wasmAlloc))
	case w.write == nil || !signature(w.write, []api.ValueType{i32, i32, i32, i32, i32}, []api.ValueType{i32}):
		return nil, loadError("", ReasonInstantiationFailed, fmt.Errorf("%w: %s", ErrABI, wasmWrite))
	case w.read == nil || !signature(w.read, []api.ValueType{i32, i32, i32}, []api.ValueType{i64}):
		return nil, loadError("", ReasonInstantiationFailed, fmt.Errorf("%w: %s", ErrABI, wasmRead))
	case w.free == nil || !signature(w.free, []api.ValueType{i32, i32}, nil):
		return nil, loadError("", ReasonInstantiationFailed, fmt.Errorf("%w: %s", ErrABI, wasmFree))
	}

	res, err := ctor.Call(ctx)
	if err != nil {
		return nil, loadError("", ReasonInstantiationFailed, err)
	}
	w.handle = api.DecodeU32(res[0])
	if w.handle == 0 {
		return nil, loadError("", ReasonConstructorReturnedNull, nil)
	}
	return w, nil
}

func signature(fn api.Function, params, results []api.ValueType) bool {
	d := fn.Definition()
	return slices.Equal(d.ParamTypes(), params) && slices.Equal(d.ResultTypes(), results)
}

// wasmBackend adapts a module instance to storage.Backend. Module calls are
// serialized; a WASM instance is single-threaded.
//
// Buffers passed into backend_write and backend_read are allocated with
// backend_alloc and handed back with backend_free once the call returns, in
// reverse allocation order. The buffer returned by backend_read belongs to
// the host and is freed after it has been copied out.
type wasmBackend struct {
	mu     sync.Mutex
	rt     wazero.Runtime
	mod    api.Module
	handle uint32
	closed bool

	alloc, write, read, free api.Function
}

func (w *wasmBackend) Write(ctx context.Context, key string, value []byte) (err error) {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return storage.ErrClosed
	}
	kp, err := w.put(ctx, []byte(key))
	if err != nil {
		return err
	}
	defer w.releaseOnReturn(ctx, kp, len(key), &err)
	vp, err := w.put(ctx, value)
	if err != nil {
		return err
	}
	defer w.releaseOnReturn(ctx, vp, len(value), &err)
	res, err := w.write.Call(ctx, uint64(w.handle), uint64(kp), uint64(len(key)), uint64(vp), uint64(len(value)))
	if err != nil {
		return &storage.Error{Kind: storage.KindBackend, Op: "write", Cause: err}
	}
	if rc := api.DecodeI32(res[0]); rc != 0 {
		return &storage.Error{Kind: storage.KindBackend, Op: "write", Cause: fmt.Errorf("plugin status %d", rc)}
	}
	return nil
}

func (w *wasmBackend) Read(ctx context.Context, key string) (value []byte, found bool, err error) {
	if err := storage.ValidateKey(key); err != nil {
		return nil, false, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, false, storage.ErrClosed
	}
	kp, err := w.put(ctx, []byte(key))
	if err != nil {
		return nil, false, err
	}
	defer func() {
		if rerr := w.release(ctx, kp, len(key)); rerr != nil && err == nil {
			value, found, err = nil, false, rerr
		}
	}()
	res, err := w.read.Call(ctx, uint64(w.handle), uint64(kp), uint64(len(key)))
	if err != nil {
		return nil, false, &storage.Error{Kind: storage.KindBackend, Op: "read", Cause: err}
	}
	r := int64(res[0])
	switch {
	case r == -1:
		return nil, false, nil
	case r < -1:
		return nil, false, &storage.Error{Kind: storage.KindBackend, Op: "read", Cause: fmt.Errorf("plugin status %d", r)}
	}
	ptr, n := uint32(uint64(r)>>32), uint32(r)
	view, ok := w.mod.Memory().Read(ptr, n)
	if !ok {
		return nil, false, &storage.Error{Kind: storage.KindBackend, Op: "read", Cause: fmt.Errorf("result [%d,+%d) out of bounds", ptr, n)}
	}
	out := bytes.Clone(view)
	if out == nil {
		out = []byte{}
	}
	if err := w.release(ctx, ptr, int(n)); err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// put copies b into module memory and returns its offset.
func (w *wasmBackend) put(ctx context.Context, b []byte) (uint32, error) {
	if len(b) == 0 {
		return 0, nil
	}
	res, err := w.alloc.Call(ctx, uint64(len(b)))
	if err != nil {
		return 0, &storage.Error{Kind: storage.KindBackend, Op: "alloc", Cause: err}
	}
	ptr := api.DecodeU32(res[0])
	if !w.mod.Memory().Write(ptr, b) {
		return 0, &storage.Error{Kind: storage.KindBackend, Op: "alloc", Cause: fmt.Errorf("allocation [%d,+%d) out of bounds", ptr, len(b))}
	}
	return ptr, nil
}

// release hands a buffer back to the module. Empty buffers are never
// allocated and are not freed.
func (w *wasmBackend) release(ctx context.Context, ptr uint32, n int) error {
	if n == 0 {
		return nil
	}
	if _, err := w.free.Call(ctx, uint64(ptr), uint64(n)); err != nil {
		return &storage.Error{Kind: storage.KindBackend, Op: "free", Cause: err}
	}
	return nil
}

func (w *wasmBackend) releaseOnReturn(ctx context.Context, ptr uint32, n int, errp *error) {
	if err := w.release(ctx, ptr, n); err != nil && *errp == nil {
		*errp = err
	}
}

// Close releases the module instance and its memory.
func (w *wasmBackend) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.rt.Close(context.Background())
}
