package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"xdao.co/memhub/config"
	"xdao.co/memhub/hub"
	"xdao.co/memhub/storage"
	"xdao.co/memhub/storage/registry"
)

// openHub loads --config and opens every configured backend.
func (g *globals) openHub(ctx context.Context) (*hub.Hub, func() error, error) {
	if g.configPath == "" {
		return nil, nil, usagef("missing --config (or MEMHUB_CONFIG)")
	}
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := cfg.Log.New(g.errOut)
	if err != nil {
		return nil, nil, err
	}
	h, closeFn, err := config.Open(ctx, cfg, log, registry.UsageCLI)
	if err != nil {
		return nil, nil, err
	}
	return h, func() error {
		defer func() { _ = log.Sync() }()
		if err := closeFn(); err != nil {
			log.Warn("Closing backends", zap.Error(err))
			return err
		}
		return nil
	}, nil
}

func newPutCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "put <key> [file]",
		Short: "Write a value (from file or stdin) to every backend",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				value []byte
				err   error
			)
			if len(args) == 2 && args[1] != "-" {
				value, err = os.ReadFile(args[1])
			} else {
				value, err = io.ReadAll(g.in)
			}
			if err != nil {
				return err
			}
			h, closeFn, err := g.openHub(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			return h.Write(cmd.Context(), args[0], value)
		},
	}
}

func newGetCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Read a value; the first backend in registry order with an answer decides",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, closeFn, err := g.openHub(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			value, found, err := h.Read(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("%s: %w", args[0], storage.ErrNotFound)
			}
			_, err = g.out.Write(value)
			return err
		},
	}
}

func newBackendsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List the storage drivers linked into this binary",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			for _, d := range registry.List(registry.UsageCLI) {
				if d.Description == "" {
					fmt.Fprintln(g.out, d.Name)
					continue
				}
				fmt.Fprintf(g.out, "%s\t%s\n", d.Name, d.Description)
			}
			fmt.Fprintf(g.out, "%s\t%s\n", config.PluginDriver, "Signed native or WASM plugin; params: path, kind")
			return nil
		},
	}
}
