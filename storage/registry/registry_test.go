package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"xdao.co/memhub/storage"
)

type nopBackend struct{ closed bool }

func (n *nopBackend) Write(context.Context, string, []byte) error { return nil }
func (n *nopBackend) Read(context.Context, string) ([]byte, bool, error) {
	return nil, false, nil
}
func (n *nopBackend) Close() error {
	n.closed = true
	return nil
}

func TestRegisterValidation(t *testing.T) {
	open := func(context.Context, Params) (storage.Backend, func() error, error) { return &nopBackend{}, nil, nil }
	require.Error(t, Register(Driver{Usage: UsageCLI, Open: open}))
	require.Error(t, Register(Driver{Name: "x-no-open", Usage: UsageCLI}))
	require.Error(t, Register(Driver{Name: "x-no-usage", Open: open}))

	require.NoError(t, Register(Driver{Name: "test-reg-dup", Usage: UsageCLI, Open: open}))
	require.Error(t, Register(Driver{Name: "test-reg-dup", Usage: UsageCLI, Open: open}))
}

func TestOpenRespectsUsage(t *testing.T) {
	b := &nopBackend{}
	MustRegister(Driver{
		Name:  "test-daemon-only",
		Usage: UsageDaemon,
		Open: func(_ context.Context, p Params) (storage.Backend, func() error, error) {
			if _, err := p.Required("path"); err != nil {
				return nil, nil, err
			}
			return b, nil, nil
		},
	})

	_, _, err := Open(context.Background(), "test-daemon-only", UsageCLI, nil)
	require.Error(t, err)

	_, _, err = Open(context.Background(), "test-daemon-only", UsageDaemon, Params{})
	require.ErrorContains(t, err, `"path"`)

	got, closeFn, err := Open(context.Background(), "test-daemon-only", UsageDaemon, Params{"path": "/tmp"})
	require.NoError(t, err)
	require.Same(t, b, got)
	require.NoError(t, closeFn())
	require.True(t, b.closed)

	require.Contains(t, Names(UsageDaemon), "test-daemon-only")
	require.NotContains(t, Names(UsageCLI), "test-daemon-only")

	_, _, err = Open(context.Background(), "does-not-exist", UsageAll, nil)
	require.Error(t, err)
}

func TestOpenWrapsDriverError(t *testing.T) {
	boom := errors.New("boom")
	MustRegister(Driver{
		Name:  "test-failing",
		Usage: UsageAll,
		Open: func(context.Context, Params) (storage.Backend, func() error, error) {
			return nil, nil, boom
		},
	})
	_, _, err := Open(context.Background(), "test-failing", UsageCLI, nil)
	require.ErrorIs(t, err, boom)
}

func TestParams(t *testing.T) {
	p := Params{"n": "3", "b": "true", "d": "2s", "bad": "x"}
	require.Equal(t, "def", p.Get("missing", "def"))

	n, err := p.Int("n", 0)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	_, err = p.Int("bad", 0)
	require.Error(t, err)

	b, err := p.Bool("b", false)
	require.NoError(t, err)
	require.True(t, b)

	d, err := p.Duration("d", 0)
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, d)

	d, err = p.Duration("missing", time.Minute)
	require.NoError(t, err)
	require.Equal(t, time.Minute, d)
}
