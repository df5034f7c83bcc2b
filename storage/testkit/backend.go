package testkit

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"

	"xdao.co/memhub/storage"
)

// NewBackend constructs a fresh, empty Backend for a test.
// The returned Backend MUST be isolated from other tests.
type NewBackend func(t *testing.T) storage.Backend

// RunBackendConformance exercises the storage.Backend contract.
func RunBackendConformance(t *testing.T, newBackend NewBackend) {
	t.Helper()
	ctx := context.Background()

	t.Run("WriteReadRoundTrip", func(t *testing.T) {
		b := newBackend(t)
		want := []byte("hello, memhub storage")

		if err := b.Write(ctx, "greeting", want); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		got, found, err := b.Read(ctx, "greeting")
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if !found {
			t.Fatalf("Read: key not found after Write")
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Read bytes mismatch: got %q want %q", got, want)
		}
	})

	t.Run("EmptyPayload", func(t *testing.T) {
		b := newBackend(t)
		if err := b.Write(ctx, "empty", []byte{}); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		got, found, err := b.Read(ctx, "empty")
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if !found {
			t.Fatalf("Read: empty value reported as not found")
		}
		if len(got) != 0 {
			t.Fatalf("Read: got %d bytes, want 0", len(got))
		}
	})

	t.Run("ArbitraryBytes", func(t *testing.T) {
		b := newBackend(t)
		want := make([]byte, 512)
		for i := range want {
			want[i] = byte(i)
		}
		want = append(want, 0, 0, 0xff, 0)

		if err := b.Write(ctx, "binary", want); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		got, found, err := b.Read(ctx, "binary")
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if !found || !bytes.Equal(got, want) {
			t.Fatalf("Read mismatch: found=%v len=%d want len=%d", found, len(got), len(want))
		}
	})

	t.Run("MissingKey", func(t *testing.T) {
		b := newBackend(t)
		got, found, err := b.Read(ctx, "missing")
		if err != nil {
			t.Fatalf("Read missing: got err=%v want nil", err)
		}
		if found || got != nil {
			t.Fatalf("Read missing: found=%v value=%q", found, got)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		b := newBackend(t)
		if err := b.Write(ctx, "k", []byte("first")); err != nil {
			t.Fatalf("Write(1) failed: %v", err)
		}
		if err := b.Write(ctx, "k", []byte("second")); err != nil {
			t.Fatalf("Write(2) failed: %v", err)
		}
		got, found, err := b.Read(ctx, "k")
		if err != nil || !found {
			t.Fatalf("Read failed: found=%v err=%v", found, err)
		}
		if string(got) != "second" {
			t.Fatalf("Read after overwrite: got %q want %q", got, "second")
		}
	})

	t.Run("CallerBufferNotRetained", func(t *testing.T) {
		b := newBackend(t)
		buf := []byte("original")
		if err := b.Write(ctx, "alias", buf); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		copy(buf, "mutated!")
		got, _, err := b.Read(ctx, "alias")
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if string(got) != "original" {
			t.Fatalf("backend retained caller buffer: got %q", got)
		}
	})

	t.Run("ConcurrentAccess", func(t *testing.T) {
		b := newBackend(t)
		var wg sync.WaitGroup
		errs := make(chan error, 16)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				key := fmt.Sprintf("c-%d", i)
				val := []byte(key)
				if err := b.Write(ctx, key, val); err != nil {
					errs <- err
					return
				}
				got, found, err := b.Read(ctx, key)
				if err != nil {
					errs <- err
					return
				}
				if !found || !bytes.Equal(got, val) {
					errs <- fmt.Errorf("key %s: found=%v got=%q", key, found, got)
				}
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("concurrent access: %v", err)
		}
	})
}
