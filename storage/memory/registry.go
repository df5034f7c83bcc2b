package memory

import (
	"context"

	"xdao.co/memhub/storage"
	"xdao.co/memhub/storage/registry"
)

func init() {
	registry.MustRegister(registry.Driver{
		Name:        "memory",
		Description: "In-process map; params: capacity (0 = unbounded)",
		Usage:       registry.UsageAll,
		Open: func(_ context.Context, p registry.Params) (storage.Backend, func() error, error) {
			capacity, err := p.Int("capacity", 0)
			if err != nil {
				return nil, nil, err
			}
			return New(Options{Capacity: capacity}), nil, nil
		},
	})
}
