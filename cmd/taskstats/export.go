package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/srodi/taskstats/pkg/config"
	"github.com/srodi/taskstats/pkg/exporter"
)

type exportOptions struct {
	listen string
	pids   []uint
	tgids  []uint
}

func newExportCmd(g *globalOptions) *cobra.Command {
	e := &exportOptions{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Serve taskstats counters as Prometheus metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(cmd, g)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck
			if err := applyExportFlags(cmd, e, &cfg); err != nil {
				return err
			}
			targets := exportTargets(cfg)
			if len(targets) == 0 {
				return fmt.Errorf("no --pid or --tgid targets given on the command line or in the config file")
			}

			client, err := openClient(cfg, log)
			if err != nil {
				return err
			}
			defer client.Close()

			handler, err := exporter.NewHandler(exporter.NewCollector(client, targets, log))
			if err != nil {
				return err
			}
			mux := http.NewServeMux()
			mux.Handle("/metrics", handler)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg.Listen, mux, log)
		},
	}
	f := cmd.Flags()
	f.StringVar(&e.listen, "listen", config.DefaultListenAddr, "address to serve /metrics on")
	f.UintSliceVar(&e.pids, "pid", nil, "task id to export (repeatable)")
	f.UintSliceVar(&e.tgids, "tgid", nil, "thread group id to export (repeatable)")
	return cmd
}

func applyExportFlags(cmd *cobra.Command, e *exportOptions, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.Listen = e.listen
	}
	if flags.Changed("pid") {
		cfg.PIDs = toUint32(e.pids)
	}
	if flags.Changed("tgid") {
		cfg.TGIDs = toUint32(e.tgids)
	}
	return cfg.Validate()
}

func toUint32(in []uint) []uint32 {
	out := make([]uint32, 0, len(in))
	for _, v := range in {
		out = append(out, uint32(v))
	}
	return out
}

func exportTargets(cfg config.Config) []exporter.Target {
	targets := make([]exporter.Target, 0, len(cfg.PIDs)+len(cfg.TGIDs))
	for _, id := range cfg.PIDs {
		targets = append(targets, exporter.Target{ID: id})
	}
	for _, id := range cfg.TGIDs {
		targets = append(targets, exporter.Target{ID: id, Group: true})
	}
	return targets
}

func serve(ctx context.Context, addr string, h http.Handler, log *zap.Logger) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		log.Info("serving metrics", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("serve metrics: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
