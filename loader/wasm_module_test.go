package loader

import "bytes"

// Hand-assembled test modules. The echo module keeps a copy of the last
// written value regardless of key:
//
//	(memory (export "memory") 1)
//	(global $heap (mut i32) (i32.const 32768))
//	(func (export "create_backend") (result i32) ctor)
//	(func (export "backend_alloc") (param i32) (result i32) bump allocate)
//	(func (export "backend_write") (param i32 i32 i32 i32 i32) (result i32)
//	  vl > echoMaxValue ? 1 : copy value to 1024, store vl at 4, 1 at 8; return 0)
//	(func (export "backend_read") (param i32 i32 i32) (result i64) (local i32)
//	  mem[8] == 0 ? -1 : copy mem[1024:+mem[4]] to a fresh allocation p; p<<32 | mem[4])
//	(func (export "backend_free") (param i32 i32)
//	  ptr+len == heap ? heap = ptr)
//
// The heap only shrinks when the most recent allocation is freed, so any
// buffer the host fails to free leaks for the life of the instance.
type wasmModule struct {
	ctorBody   []byte
	ctorExport string
	importEnv  bool
	omitFree   bool
}

// echoMaxValue is the largest value the echo module stores.
const echoMaxValue = 31744

var (
	ctorReturns16 = []byte{0x41, 0x10, 0x0b}
	ctorReturns0  = []byte{0x41, 0x00, 0x0b}
	ctorTraps     = []byte{0x00, 0x0b}
)

func echoModule() wasmModule {
	return wasmModule{ctorBody: ctorReturns16, ctorExport: wasmConstructor}
}

func (m wasmModule) bytes() []byte {
	var out bytes.Buffer
	out.Write([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00})

	section(&out, 1, vec(
		[]byte{0x60, 0x00, 0x01, 0x7f},
		[]byte{0x60, 0x01, 0x7f, 0x01, 0x7f},
		[]byte{0x60, 0x05, 0x7f, 0x7f, 0x7f, 0x7f, 0x7f, 0x01, 0x7f},
		[]byte{0x60, 0x03, 0x7f, 0x7f, 0x7f, 0x01, 0x7e},
		[]byte{0x60, 0x02, 0x7f, 0x7f, 0x00},
	))
	base := byte(0)
	if m.importEnv {
		section(&out, 2, vec(cat(name("env"), name("f"), []byte{0x00, 0x00})))
		base = 1
	}
	section(&out, 3, vec([]byte{0x00}, []byte{0x01}, []byte{0x02}, []byte{0x03}, []byte{0x04}))
	section(&out, 5, vec([]byte{0x00, 0x01}))
	section(&out, 6, vec([]byte{0x7f, 0x01, 0x41, 0x80, 0x80, 0x02, 0x0b}))
	freeExport := wasmFree
	if m.omitFree {
		freeExport = "backend_release"
	}
	section(&out, 7, vec(
		cat(name("memory"), []byte{0x02, 0x00}),
		cat(name(m.ctorExport), []byte{0x00, base}),
		cat(name(wasmAlloc), []byte{0x00, base + 1}),
		cat(name(wasmWrite), []byte{0x00, base + 2}),
		cat(name(wasmRead), []byte{0x00, base + 3}),
		cat(name(freeExport), []byte{0x00, base + 4}),
	))
	section(&out, 10, vec(
		body(m.ctorBody),
		body([]byte{0x23, 0x00, 0x23, 0x00, 0x20, 0x00, 0x6a, 0x24, 0x00, 0x0b}),
		body([]byte{
			0x20, 0x04, 0x41, 0x80, 0xf8, 0x01, 0x4b, // vl > echoMaxValue
			0x04, 0x40, 0x41, 0x01, 0x0f, 0x0b,
			0x41, 0x80, 0x08, 0x20, 0x03, 0x20, 0x04, 0xfc, 0x0a, 0x00, 0x00, // memory.copy
			0x41, 0x04, 0x20, 0x04, 0x36, 0x02, 0x00,
			0x41, 0x08, 0x41, 0x01, 0x36, 0x02, 0x00,
			0x41, 0x00, 0x0b,
		}),
		bodyWithLocals([]byte{0x01, 0x01, 0x7f}, []byte{
			0x41, 0x08, 0x28, 0x02, 0x00, 0x45,
			0x04, 0x7e,
			0x42, 0x7f,
			0x05,
			0x41, 0x04, 0x28, 0x02, 0x00, 0x10, base + 1, 0x22, 0x03,
			0x41, 0x80, 0x08, 0x41, 0x04, 0x28, 0x02, 0x00, 0xfc, 0x0a, 0x00, 0x00,
			0x20, 0x03, 0xad, 0x42, 0x20, 0x86,
			0x41, 0x04, 0x28, 0x02, 0x00, 0xad, 0x84,
			0x0b,
			0x0b,
		}),
		body([]byte{
			0x20, 0x00, 0x20, 0x01, 0x6a, 0x23, 0x00, 0x46,
			0x04, 0x40, 0x20, 0x00, 0x24, 0x00, 0x0b,
			0x0b,
		}),
	))
	return out.Bytes()
}

func section(out *bytes.Buffer, id byte, payload []byte) {
	out.WriteByte(id)
	out.Write(uleb(uint32(len(payload))))
	out.Write(payload)
}

func vec(items ...[]byte) []byte {
	out := uleb(uint32(len(items)))
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

func body(code []byte) []byte {
	return bodyWithLocals([]byte{0x00}, code)
}

func bodyWithLocals(locals, code []byte) []byte {
	b := cat(locals, code)
	return append(uleb(uint32(len(b))), b...)
}

func name(s string) []byte { return append(uleb(uint32(len(s))), s...) }

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func uleb(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}
