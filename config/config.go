// Package config loads memhub configuration and assembles a hub from it.
//
// Example (YAML):
//
//	log: {level: info, format: json}
//	listen: ":7070"
//	metrics: {listen: ":9090"}
//	admission: {capacity: 64}
//	verify: {enabled: true, scheme: ed25519, public_key: "ed25519:..."}
//	policy: {deny: ["plugin.load"]}
//	backends:
//	  - {name: cache, driver: memory, params: {capacity: "1024"}}
//	  - {name: disk, driver: localfs, params: {root: /var/lib/memhub, integrity: "true"}}
//	  - {name: ext, driver: plugin, params: {path: /opt/memhub/ext.wasm}}
//
// Every scalar key can be overridden from the environment with the MEMHUB_
// prefix, e.g. MEMHUB_ADMISSION_CAPACITY=8 or MEMHUB_LOG_LEVEL=debug.
package config

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"xdao.co/memhub/keys"
	"xdao.co/memhub/limits"
	"xdao.co/memhub/logger"
	"xdao.co/memhub/policy"
	"xdao.co/memhub/storage/registry"
)

// EnvPrefix prefixes environment overrides.
const EnvPrefix = "MEMHUB"

// PluginDriver is the backend driver served by the plugin loader rather than
// the storage registry.
const PluginDriver = "plugin"

type Config struct {
	Log       logger.Config   `mapstructure:"log"`
	Listen    string          `mapstructure:"listen"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Admission AdmissionConfig `mapstructure:"admission"`
	Limits    limits.Limits   `mapstructure:"limits"`
	Verify    VerifyConfig    `mapstructure:"verify"`
	Policy    policy.Rules    `mapstructure:"policy"`
	Backends  []BackendConfig `mapstructure:"backends"`
}

type MetricsConfig struct {
	// Listen is the HTTP address for /metrics; empty disables the endpoint.
	Listen string `mapstructure:"listen"`
}

type AdmissionConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// VerifyConfig controls plugin signature verification.
type VerifyConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Scheme    string `mapstructure:"scheme"`
	PublicKey string `mapstructure:"public_key"`
}

// BackendConfig names one registry entry. Order in Config.Backends is the
// hub's registry order.
type BackendConfig struct {
	Name   string            `mapstructure:"name"`
	Driver string            `mapstructure:"driver"`
	Params map[string]string `mapstructure:"params"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Log:       logger.NewConfig(),
		Listen:    ":7070",
		Metrics:   MetricsConfig{Listen: ":9090"},
		Admission: AdmissionConfig{Capacity: 64},
		Verify:    VerifyConfig{Scheme: string(keys.SchemeEd25519)},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.level", d.Log.Level.String())
	v.SetDefault("listen", d.Listen)
	v.SetDefault("metrics.listen", d.Metrics.Listen)
	v.SetDefault("admission.capacity", d.Admission.Capacity)
	v.SetDefault("limits.cpu_seconds", 0)
	v.SetDefault("limits.address_space_bytes", 0)
	v.SetDefault("limits.open_files", 0)
	v.SetDefault("verify.enabled", d.Verify.Enabled)
	v.SetDefault("verify.scheme", d.Verify.Scheme)
	v.SetDefault("verify.public_key", "")
}

// New returns a viper instance with defaults and MEMHUB_ environment
// bindings installed.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path (YAML, JSON or TOML by extension) if non-empty, applies
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Admission.Capacity <= 0 {
		return fmt.Errorf("config: admission.capacity must be positive, got %d", c.Admission.Capacity)
	}
	if c.Verify.Enabled {
		if _, err := c.PublicKey(); err != nil {
			return err
		}
	}
	seen := make(map[string]struct{}, len(c.Backends))
	for i, b := range c.Backends {
		if b.Name == "" {
			return fmt.Errorf("config: backends[%d]: name is required", i)
		}
		if _, ok := seen[b.Name]; ok {
			return fmt.Errorf("config: duplicate backend name %q", b.Name)
		}
		seen[b.Name] = struct{}{}
		if b.Driver == PluginDriver {
			if b.Params["path"] == "" {
				return fmt.Errorf("config: backend %q: plugin path is required", b.Name)
			}
			continue
		}
		if _, ok := registry.Lookup(b.Driver); !ok {
			return fmt.Errorf("config: backend %q: unknown driver %q", b.Name, b.Driver)
		}
	}
	return nil
}

// PublicKey parses the verification key. A key without a "<scheme>:"
// prefix is hex or base64 and takes its scheme from Verify.Scheme.
func (c Config) PublicKey() (keys.PublicKey, error) {
	s := strings.TrimSpace(c.Verify.PublicKey)
	if s == "" {
		return keys.PublicKey{}, errors.New("config: verify.public_key is required when verification is enabled")
	}
	if strings.Contains(s, ":") {
		pub, err := keys.ParsePublicKey(s)
		if err != nil {
			return keys.PublicKey{}, fmt.Errorf("config: verify.public_key: %w", err)
		}
		return pub, nil
	}
	scheme, err := keys.ParseScheme(c.Verify.Scheme)
	if err != nil {
		return keys.PublicKey{}, fmt.Errorf("config: verify.scheme: %w", err)
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		if raw, err = base64.StdEncoding.DecodeString(s); err != nil {
			return keys.PublicKey{}, fmt.Errorf("config: verify.public_key: not hex or base64")
		}
	}
	pub, err := keys.NewPublicKey(scheme, raw)
	if err != nil {
		return keys.PublicKey{}, fmt.Errorf("config: verify.public_key: %w", err)
	}
	return pub, nil
}
