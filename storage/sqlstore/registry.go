package sqlstore

import (
	"context"

	"xdao.co/memhub/storage"
	"xdao.co/memhub/storage/registry"
)

func init() {
	registry.MustRegister(registry.Driver{
		Name:        "sql",
		Description: "SQL table; params: dialect (sqlite|postgres), dsn, table",
		Usage:       registry.UsageAll,
		Open: func(ctx context.Context, p registry.Params) (storage.Backend, func() error, error) {
			dialect, err := DialectByName(p.Get("dialect", SQLite.Name))
			if err != nil {
				return nil, nil, err
			}
			dsn, err := p.Required("dsn")
			if err != nil {
				return nil, nil, err
			}
			s, err := Open(ctx, dialect, dsn, p.Get("table", ""))
			if err != nil {
				return nil, nil, err
			}
			return s, s.Close, nil
		},
	})
}
