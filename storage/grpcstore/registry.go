package grpcstore

import (
	"context"
	"strings"

	"xdao.co/memhub/storage"
	"xdao.co/memhub/storage/registry"
)

func init() {
	registry.MustRegister(registry.Driver{
		Name:        "grpc",
		Description: "Remote memhubd over gRPC; params: target, timeout, max_msg_bytes",
		Usage:       registry.UsageAll,
		Open: func(_ context.Context, p registry.Params) (storage.Backend, func() error, error) {
			target, err := p.Required("target")
			if err != nil {
				return nil, nil, err
			}
			timeout, err := p.Duration("timeout", 0)
			if err != nil {
				return nil, nil, err
			}
			maxMsg, err := p.Int("max_msg_bytes", 0)
			if err != nil {
				return nil, nil, err
			}
			client, err := Dial(strings.TrimSpace(target), DialOptions{MaxMsgBytes: maxMsg})
			if err != nil {
				return nil, nil, err
			}
			client.Timeout = timeout
			return client, client.Close, nil
		},
	})
}
