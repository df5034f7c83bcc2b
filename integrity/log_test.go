package integrity

import (
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func leaf(s string) [LeafSize]byte { return sha256.Sum256([]byte(s)) }

func pair(a, b [LeafSize]byte) [LeafSize]byte {
	return sha256.Sum256(append(a[:], b[:]...))
}

func TestRoot(t *testing.T) {
	a, b, c := leaf("a"), leaf("b"), leaf("c")

	require.Equal(t, [LeafSize]byte{}, Root(nil))
	require.Equal(t, a, Root([][LeafSize]byte{a}))
	require.Equal(t, pair(a, b), Root([][LeafSize]byte{a, b}))

	odd := sha256.Sum256(c[:])
	require.Equal(t, pair(pair(a, b), odd), Root([][LeafSize]byte{a, b, c}))
}

func TestLogPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "merkle.log")
	l, err := Open(path)
	require.NoError(t, err)

	id, err := l.AppendContent([]byte("one"))
	require.NoError(t, err)
	require.NoError(t, l.Append(leaf("two")))
	require.Equal(t, 2, l.Len())
	require.True(t, l.Contains(id))
	root := l.Root()
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	require.Equal(t, 2, reopened.Len())
	require.Equal(t, root, reopened.Root())
	require.Equal(t, Root([][LeafSize]byte{leaf("one"), leaf("two")}), root)
}

func TestOpenRejectsTruncatedLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "merkle.log")
	require.NoError(t, os.WriteFile(path, make([]byte, LeafSize+3), 0o644))
	_, err := Open(path)
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestAppendAfterClose(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "merkle.log"))
	require.NoError(t, err)
	require.NoError(t, l.Close())
	require.ErrorIs(t, l.Append(leaf("x")), os.ErrClosed)
}
