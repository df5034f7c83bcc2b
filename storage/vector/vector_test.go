package vector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"xdao.co/memhub/ann"
	"xdao.co/memhub/storage"
	"xdao.co/memhub/storage/registry"
	"xdao.co/memhub/storage/testkit"
)

func newStore(t *testing.T, dim int, strict bool) *Store {
	t.Helper()
	e, err := ann.NewScalar(dim)
	require.NoError(t, err)
	s, err := New(e, Options{Strict: strict})
	require.NoError(t, err)
	return s
}

func TestVectorConformance(t *testing.T) {
	testkit.RunBackendConformance(t, func(t *testing.T) storage.Backend {
		return newStore(t, 2, false)
	})
}

func TestSearchFindsNearestKeys(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, 2, true)
	require.NoError(t, s.Write(ctx, "origin", Encode([]float32{0, 0})))
	require.NoError(t, s.Write(ctx, "far", Encode([]float32{100, 100})))
	require.NoError(t, s.Write(ctx, "near", Encode([]float32{1, 0})))

	keys, err := s.Search(ctx, []float32{0.8, 0}, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"near", "origin"}, keys)
}

func TestOverwriteReplacesIndexedVector(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, 1, true)
	require.NoError(t, s.Write(ctx, "a", Encode([]float32{0})))
	require.NoError(t, s.Write(ctx, "b", Encode([]float32{5})))
	require.NoError(t, s.Write(ctx, "a", Encode([]float32{10})))

	keys, err := s.Search(ctx, []float32{0}, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, keys)

	keys, err = s.Search(ctx, []float32{0}, 5)
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a"}, keys)
}

func TestStrictRejectsNonVector(t *testing.T) {
	s := newStore(t, 3, true)
	err := s.Write(context.Background(), "k", []byte("abc"))
	require.True(t, errors.Is(err, ErrNotVector))

	_, found, err := s.Read(context.Background(), "k")
	require.NoError(t, err)
	require.False(t, found)
}

func TestLenientStoresButDoesNotIndex(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, 1, false)
	require.NoError(t, s.Write(ctx, "blob", []byte("not a vector")))
	require.NoError(t, s.Write(ctx, "v", Encode([]float32{1})))

	keys, err := s.Search(ctx, []float32{1}, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"v"}, keys)
}

func TestEncodeDecode(t *testing.T) {
	in := []float32{1.5, -2, 0}
	out, ok := Decode(Encode(in), 3)
	require.True(t, ok)
	require.Equal(t, in, out)

	_, ok = Decode(Encode(in), 2)
	require.False(t, ok)
}

func TestRegistryDriver(t *testing.T) {
	b, closeFn, err := registry.Open(context.Background(), "vector", registry.UsageDaemon, registry.Params{"dim": "4"})
	require.NoError(t, err)
	defer closeFn()
	require.NoError(t, b.Write(context.Background(), "k", Encode([]float32{1, 2, 3, 4})))

	_, _, err = registry.Open(context.Background(), "vector", registry.UsageDaemon, registry.Params{"dim": "4", "engine": "hnsw"})
	require.Error(t, err)
}
