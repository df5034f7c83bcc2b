package ann

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScalarNearest(t *testing.T) {
	e, err := NewScalar(2)
	require.NoError(t, err)

	for _, v := range [][]float32{{0, 0}, {10, 10}, {1, 1}, {5, 5}} {
		_, err := e.Insert(v)
		require.NoError(t, err)
	}
	require.Equal(t, 4, e.Len())

	ids, err := e.Search([]float32{0.9, 0.9}, 2)
	require.NoError(t, err)
	require.Equal(t, []int{2, 0}, ids)

	ids, err = e.Search([]float32{9, 9}, 10)
	require.NoError(t, err)
	require.Equal(t, []int{1, 3, 2, 0}, ids)
}

func TestScalarTiesKeepInsertionOrder(t *testing.T) {
	e, err := NewScalar(1)
	require.NoError(t, err)
	for _, v := range []float32{1, -1, 1} {
		_, err := e.Insert([]float32{v})
		require.NoError(t, err)
	}
	ids, err := e.Search([]float32{0}, 3)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2}, ids)
}

func TestScalarDimensionChecks(t *testing.T) {
	_, err := NewScalar(0)
	require.Error(t, err)

	e, err := NewScalar(3)
	require.NoError(t, err)

	_, err = e.Insert([]float32{1, 2})
	require.True(t, errors.Is(err, ErrDimension))

	_, err = e.Search([]float32{1}, 1)
	require.True(t, errors.Is(err, ErrDimension))

	_, err = e.Search([]float32{1, 2, 3}, 0)
	require.ErrorIs(t, err, ErrInvalidK)
}

func TestScalarEmpty(t *testing.T) {
	e, err := NewScalar(2)
	require.NoError(t, err)
	ids, err := e.Search([]float32{1, 1}, 5)
	require.NoError(t, err)
	require.Empty(t, ids)
}
