package config

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"xdao.co/memhub/hub"
	"xdao.co/memhub/loader"
	"xdao.co/memhub/metrics"
	"xdao.co/memhub/storage"
	"xdao.co/memhub/storage/registry"
)

// Open builds a hub with every configured backend registered in order.
//
// Backends are opened through the storage registry; the plugin driver goes
// through the loader with the configured verification key and policy.
// Drivers must be linked into the binary (see cmd/memhubd). On failure the
// backends already opened are closed, last first.
//
// The returned close function releases every backend; callers use it
// instead of Hub.Close.
func Open(ctx context.Context, cfg Config, log *zap.Logger, usage registry.Usage) (*hub.Hub, func() error, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	hm, err := metrics.NewHubMetrics(metrics.Registry())
	if err != nil {
		return nil, nil, err
	}
	h := hub.New(hub.WithLogger(log), hub.WithMetrics(hm))

	var (
		closers []func() error
		ld      *loader.Loader
	)
	closeAll := func() error {
		var err error
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, closers[i]())
		}
		return err
	}
	fail := func(err error) (*hub.Hub, func() error, error) {
		if cerr := closeAll(); cerr != nil {
			log.Warn("Closing backends after failed open", zap.Error(cerr))
		}
		return nil, nil, err
	}

	for _, bc := range cfg.Backends {
		var (
			b       storage.Backend
			closeFn func() error
		)
		if bc.Driver == PluginDriver {
			if ld == nil {
				if ld, err = newLoader(cfg, log); err != nil {
					return fail(err)
				}
			}
			kind, err := loader.ParseKind(bc.Params["kind"], bc.Params["path"])
			if err != nil {
				return fail(fmt.Errorf("config: backend %q: %w", bc.Name, err))
			}
			p, err := ld.Load(ctx, loader.Artifact{Path: bc.Params["path"], Kind: kind})
			if err != nil {
				return fail(fmt.Errorf("config: backend %q: %w", bc.Name, err))
			}
			b, closeFn = p.Backend, p.Close
		} else {
			b, closeFn, err = registry.Open(ctx, bc.Driver, usage, registry.Params(bc.Params))
			if err != nil {
				return fail(fmt.Errorf("config: backend %q: %w", bc.Name, err))
			}
		}
		closers = append(closers, closeFn)
		if err := h.Register(bc.Name, b); err != nil {
			return fail(err)
		}
		log.Debug("Opened backend", zap.String("backend", bc.Name), zap.String("driver", bc.Driver))
	}
	return h, closeAll, nil
}

func newLoader(cfg Config, log *zap.Logger) (*loader.Loader, error) {
	opts := loader.Options{
		Verify: cfg.Verify.Enabled,
		Policy: cfg.Policy,
		Logger: log.With(zap.String("component", "loader")),
	}
	if cfg.Verify.Enabled {
		pub, err := cfg.PublicKey()
		if err != nil {
			return nil, err
		}
		opts.PublicKey = pub
	}
	return loader.New(opts)
}
