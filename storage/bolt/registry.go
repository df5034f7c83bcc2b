package bolt

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"xdao.co/memhub/metrics"
	"xdao.co/memhub/storage"
	"xdao.co/memhub/storage/registry"
)

func init() {
	registry.MustRegister(registry.Driver{
		Name:        "bolt",
		Description: "Embedded bbolt database; params: path, bucket, key (hex) or key_file, timeout",
		Usage:       registry.UsageAll,
		Open: func(_ context.Context, p registry.Params) (storage.Backend, func() error, error) {
			path, err := p.Required("path")
			if err != nil {
				return nil, nil, err
			}
			key, err := encryptionKey(p)
			if err != nil {
				return nil, nil, err
			}
			timeout, err := p.Duration("timeout", 0)
			if err != nil {
				return nil, nil, err
			}
			s, err := Open(path, Options{Bucket: p.Get("bucket", ""), EncryptionKey: key, Timeout: timeout})
			if err != nil {
				return nil, nil, err
			}
			if err := metrics.Registry().Register(s); err != nil {
				_ = s.Close()
				return nil, nil, err
			}
			return s, func() error {
				metrics.Registry().Unregister(s)
				return s.Close()
			}, nil
		},
	})
}

func encryptionKey(p registry.Params) ([]byte, error) {
	raw := p.Get("key", "")
	if file := p.Get("key_file", ""); file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		raw = string(b)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}
	return key, nil
}
