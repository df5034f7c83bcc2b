package config

import (
	"context"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"xdao.co/memhub/keys"
	"xdao.co/memhub/loader"
	"xdao.co/memhub/storage"
	_ "xdao.co/memhub/storage/localfs"
	"xdao.co/memhub/storage/memory"
	"xdao.co/memhub/storage/registry"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "memhub.yaml", `
log:
  level: debug
  format: json
listen: ":8080"
admission:
  capacity: 4
limits:
  open_files: 512
policy:
  deny: ["plugin.load"]
  allow: ["hub.*"]
backends:
  - name: cache
    driver: memory
    params:
      capacity: 16
  - name: disk
    driver: localfs
    params:
      root: /tmp/memhub
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, zapcore.DebugLevel, cfg.Log.Level)
	require.Equal(t, "json", cfg.Log.Format)
	require.Equal(t, ":8080", cfg.Listen)
	require.Equal(t, ":9090", cfg.Metrics.Listen)
	require.Equal(t, 4, cfg.Admission.Capacity)
	require.Equal(t, uint64(512), cfg.Limits.OpenFiles)
	require.Equal(t, []string{"plugin.load"}, cfg.Policy.Deny)
	require.Equal(t, []string{"hub.*"}, cfg.Policy.Allowed)
	require.True(t, cfg.Policy.Allow("hub.write", nil))
	require.False(t, cfg.Policy.Allow("plugin.load", nil))
	require.Len(t, cfg.Backends, 2)
	require.Equal(t, "cache", cfg.Backends[0].Name)
	require.Equal(t, "16", cfg.Backends[0].Params["capacity"])
	require.Equal(t, "localfs", cfg.Backends[1].Driver)
}

func TestLoadDefaultsAndEnv(t *testing.T) {
	t.Setenv("MEMHUB_ADMISSION_CAPACITY", "3")
	t.Setenv("MEMHUB_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Admission.Capacity)
	require.Equal(t, zapcore.WarnLevel, cfg.Log.Level)
	require.Equal(t, ":7070", cfg.Listen)
	require.Empty(t, cfg.Backends)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		c := Default()
		c.Backends = []BackendConfig{{Name: "a", Driver: "memory"}}
		return c
	}
	require.NoError(t, base().Validate())

	cases := map[string]func(*Config){
		"capacity":       func(c *Config) { c.Admission.Capacity = 0 },
		"empty name":     func(c *Config) { c.Backends[0].Name = "" },
		"duplicate":      func(c *Config) { c.Backends = append(c.Backends, BackendConfig{Name: "a", Driver: "memory"}) },
		"unknown driver": func(c *Config) { c.Backends[0].Driver = "floppy" },
		"plugin path":    func(c *Config) { c.Backends[0].Driver = PluginDriver },
		"verify key":     func(c *Config) { c.Verify.Enabled = true },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := base()
			mutate(&c)
			require.Error(t, c.Validate())
		})
	}
}

func TestPublicKeyForms(t *testing.T) {
	s, err := keys.NewSigner(keys.SchemeEd25519, make([]byte, keys.SeedSize))
	require.NoError(t, err)
	want := s.Public()

	for _, form := range []string{want.String(), "0x" + hex.EncodeToString(want.Bytes)} {
		c := Default()
		c.Verify = VerifyConfig{Enabled: true, PublicKey: form}
		got, err := c.PublicKey()
		require.NoError(t, err, form)
		require.Equal(t, want, got)
	}
}

var closed []string

func init() {
	registry.MustRegister(registry.Driver{
		Name:  "config-test-tracked",
		Usage: registry.UsageAll,
		Open: func(_ context.Context, p registry.Params) (storage.Backend, func() error, error) {
			name := p.Get("id", "")
			return memory.New(memory.Options{}), func() error {
				closed = append(closed, name)
				return nil
			}, nil
		},
	})
	registry.MustRegister(registry.Driver{
		Name:  "config-test-broken",
		Usage: registry.UsageAll,
		Open: func(context.Context, registry.Params) (storage.Backend, func() error, error) {
			return nil, nil, errors.New("broken")
		},
	})
}

func TestOpenRegistersInOrder(t *testing.T) {
	ctx := context.Background()
	cfg := Default()
	cfg.Backends = []BackendConfig{
		{Name: "cache", Driver: "memory"},
		{Name: "disk", Driver: "localfs", Params: map[string]string{"root": t.TempDir()}},
	}
	h, closeFn, err := Open(ctx, cfg, nil, registry.UsageDaemon)
	require.NoError(t, err)
	defer closeFn()

	var names []string
	for _, nb := range h.Backends() {
		names = append(names, nb.Name)
	}
	require.Equal(t, []string{"cache", "disk"}, names)

	require.NoError(t, h.Write(ctx, "k", []byte("v")))
	got, found, err := h.Backends()[1].Backend.Read(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("v"), got)
}

func TestOpenFailureClosesOpenedInReverse(t *testing.T) {
	closed = nil
	cfg := Default()
	cfg.Backends = []BackendConfig{
		{Name: "one", Driver: "config-test-tracked", Params: map[string]string{"id": "one"}},
		{Name: "two", Driver: "config-test-tracked", Params: map[string]string{"id": "two"}},
		{Name: "three", Driver: "config-test-broken"},
	}
	_, _, err := Open(context.Background(), cfg, nil, registry.UsageDaemon)
	require.ErrorContains(t, err, "broken")
	require.Equal(t, []string{"two", "one"}, closed)
}

func TestOpenPluginFailsClosed(t *testing.T) {
	closed = nil
	cfg := Default()
	cfg.Backends = []BackendConfig{
		{Name: "one", Driver: "config-test-tracked", Params: map[string]string{"id": "one"}},
		{Name: "ext", Driver: PluginDriver, Params: map[string]string{"path": filepath.Join(t.TempDir(), "ext.wasm")}},
	}
	s, err := keys.NewSigner(keys.SchemeEd25519, make([]byte, keys.SeedSize))
	require.NoError(t, err)
	cfg.Verify = VerifyConfig{Enabled: true, PublicKey: s.Public().String()}

	_, _, err = Open(context.Background(), cfg, nil, registry.UsageDaemon)
	require.ErrorIs(t, err, loader.ErrMissingSignature)
	require.Equal(t, []string{"one"}, closed)
}
