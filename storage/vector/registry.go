package vector

import (
	"context"
	"fmt"

	"xdao.co/memhub/ann"
	"xdao.co/memhub/storage"
	"xdao.co/memhub/storage/registry"
)

func init() {
	registry.MustRegister(registry.Driver{
		Name:        "vector",
		Description: "In-memory vector index; params: dim (required), engine (scalar), strict",
		Usage:       registry.UsageDaemon,
		Open: func(_ context.Context, p registry.Params) (storage.Backend, func() error, error) {
			dim, err := p.Int("dim", 0)
			if err != nil {
				return nil, nil, err
			}
			strict, err := p.Bool("strict", false)
			if err != nil {
				return nil, nil, err
			}
			engine, err := newEngine(p.Get("engine", "scalar"), dim)
			if err != nil {
				return nil, nil, err
			}
			s, err := New(engine, Options{Strict: strict})
			if err != nil {
				return nil, nil, err
			}
			return s, nil, nil
		},
	})
}

func newEngine(name string, dim int) (ann.Engine, error) {
	switch name {
	case "scalar":
		return ann.NewScalar(dim)
	default:
		return nil, fmt.Errorf("vector: unknown ann engine %q", name)
	}
}
