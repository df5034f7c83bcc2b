// Command memhubd serves a configured hub over gRPC.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"xdao.co/memhub/cancellation"
	"xdao.co/memhub/config"
	"xdao.co/memhub/gate"
	"xdao.co/memhub/limits"
	"xdao.co/memhub/metrics"
	"xdao.co/memhub/storage/grpcstore"
	"xdao.co/memhub/storage/registry"

	_ "xdao.co/memhub/storage/bolt"
	_ "xdao.co/memhub/storage/grpcstore"
	_ "xdao.co/memhub/storage/localfs"
	_ "xdao.co/memhub/storage/memory"
	_ "xdao.co/memhub/storage/s3"
	_ "xdao.co/memhub/storage/sqlstore"
	_ "xdao.co/memhub/storage/vector"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd(os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "memhubd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(errOut io.Writer) *cobra.Command {
	var (
		configPath   string
		listBackends bool
	)
	cmd := &cobra.Command{
		Use:           "memhubd",
		Short:         "Memory hub daemon",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listBackends {
				for _, d := range registry.List(registry.UsageDaemon) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", d.Name, d.Description)
				}
				return nil
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			log, err := cfg.Log.New(errOut)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			token := cancellation.New()
			defer token.Cancel()
			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sig)
			go func() {
				select {
				case s := <-sig:
					log.Info("Shutting down", zap.String("signal", s.String()))
					token.Cancel()
				case <-token.Done():
				}
			}()
			return serve(cmd.Context(), cfg, log, token, nil)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", os.Getenv("MEMHUB_CONFIG"), "Configuration file (YAML, JSON or TOML)")
	cmd.Flags().BoolVar(&listBackends, "list-backends", false, "List linked storage drivers and exit")
	return cmd
}

// serve runs the daemon until token is cancelled. ready, if non-nil,
// receives the gRPC listen address once accepting.
func serve(ctx context.Context, cfg config.Config, log *zap.Logger, token cancellation.Token, ready chan<- net.Addr) error {
	if !cfg.Limits.IsZero() {
		if err := limits.Apply(cfg.Limits); err != nil {
			return err
		}
		log.Info("Applied resource limits",
			zap.Uint64("cpu_seconds", cfg.Limits.CPUSeconds),
			zap.Uint64("address_space_bytes", cfg.Limits.AddressSpaceBytes),
			zap.Uint64("open_files", cfg.Limits.OpenFiles),
		)
	}

	g, err := gate.New(cfg.Admission.Capacity)
	if err != nil {
		return err
	}
	if err := metrics.RegisterAdmission(metrics.Registry(), g); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return err
		}
	}

	h, closeBackends, err := config.Open(ctx, cfg, log, registry.UsageDaemon)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeBackends(); err != nil {
			log.Warn("Closing backends", zap.Error(err))
		}
	}()

	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}
	srv := grpc.NewServer()
	grpcstore.RegisterBackendServer(srv, grpcstore.NewServer(h, grpcstore.ServerOptions{
		Gate:   g,
		Policy: cfg.Policy,
		Logger: log.With(zap.String("component", "grpc")),
		Token:  token,
	}))

	var httpSrv *http.Server
	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		httpSrv = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		log.Info("Listening", zap.String("addr", lis.Addr().String()), zap.Int("backends", h.Len()), zap.Int("admission_capacity", g.Capacity()))
		if ready != nil {
			ready <- lis.Addr()
		}
		return srv.Serve(lis)
	})
	if httpSrv != nil {
		eg.Go(func() error {
			log.Info("Serving metrics", zap.String("addr", httpSrv.Addr))
			if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	eg.Go(func() error {
		_ = token.Wait(egCtx)
		stopped := make(chan struct{})
		go func() {
			srv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(shutdownTimeout):
			srv.Stop()
		}
		if httpSrv != nil {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpSrv.Shutdown(sctx)
		}
		return nil
	})
	return eg.Wait()
}
