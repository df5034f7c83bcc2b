package bolt

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"xdao.co/memhub/storage"
	"xdao.co/memhub/storage/testkit"
)

func newStore(t *testing.T, opts Options) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "memhub.db"), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testKey() []byte {
	return bytes.Repeat([]byte{0x42}, KeySize)
}

func TestStoreConformance(t *testing.T) {
	testkit.RunBackendConformance(t, func(t *testing.T) storage.Backend {
		return newStore(t, Options{})
	})
}

func TestEncryptedStoreConformance(t *testing.T) {
	testkit.RunBackendConformance(t, func(t *testing.T) storage.Backend {
		return newStore(t, Options{EncryptionKey: testKey()})
	})
}

func TestEncryptedValuesAreOpaqueOnDisk(t *testing.T) {
	s := newStore(t, Options{EncryptionKey: testKey()})
	plaintext := []byte("top secret payload")
	require.NoError(t, s.Write(context.Background(), "k", plaintext))

	var raw []byte
	require.NoError(t, s.db.View(func(tx *bolt.Tx) error {
		raw = append([]byte{}, tx.Bucket(defaultBucket).Get([]byte("k"))...)
		return nil
	}))
	require.False(t, bytes.Contains(raw, plaintext))
	require.Len(t, raw, 24+len(plaintext)+16)
}

func TestTamperedCiphertextRejected(t *testing.T) {
	s := newStore(t, Options{EncryptionKey: testKey()})
	require.NoError(t, s.Write(context.Background(), "k", []byte("value")))

	require.NoError(t, s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(defaultBucket)
		v := append([]byte{}, b.Get([]byte("k"))...)
		v[len(v)-1] ^= 0x01
		return b.Put([]byte("k"), v)
	}))

	_, _, err := s.Read(context.Background(), "k")
	require.True(t, errors.Is(err, ErrDecrypt))
	require.True(t, storage.IsKind(err, storage.KindIO))
}

func TestCiphertextBoundToKey(t *testing.T) {
	s := newStore(t, Options{EncryptionKey: testKey()})
	require.NoError(t, s.Write(context.Background(), "a", []byte("value")))

	require.NoError(t, s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(defaultBucket)
		return b.Put([]byte("b"), append([]byte{}, b.Get([]byte("a"))...))
	}))
	_, _, err := s.Read(context.Background(), "b")
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestRejectsBadKeyLength(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "x.db"), Options{EncryptionKey: []byte("short")})
	require.Error(t, err)
}

func TestReopenKeepsValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memhub.db")
	s, err := Open(path, Options{Bucket: "custom"})
	require.NoError(t, err)
	require.NoError(t, s.Write(context.Background(), "k", []byte("v")))
	require.NoError(t, s.Close())

	s, err = Open(path, Options{Bucket: "custom"})
	require.NoError(t, err)
	defer s.Close()
	v, found, err := s.Read(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("v"), v)
}

func TestCollector(t *testing.T) {
	s := newStore(t, Options{})
	require.NoError(t, s.Write(context.Background(), "k", []byte("v")))

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(s))
	require.Equal(t, 2, testutil.CollectAndCount(reg))
}
