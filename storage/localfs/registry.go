package localfs

import (
	"context"

	"xdao.co/memhub/storage"
	"xdao.co/memhub/storage/registry"
)

func init() {
	registry.MustRegister(registry.Driver{
		Name:        "localfs",
		Description: "Files under a directory; params: root, integrity (bool)",
		Usage:       registry.UsageAll,
		Open: func(_ context.Context, p registry.Params) (storage.Backend, func() error, error) {
			root, err := p.Required("root")
			if err != nil {
				return nil, nil, err
			}
			withLog, err := p.Bool("integrity", false)
			if err != nil {
				return nil, nil, err
			}
			s, err := New(root, Options{Integrity: withLog})
			if err != nil {
				return nil, nil, err
			}
			return s, s.Close, nil
		},
	})
}
