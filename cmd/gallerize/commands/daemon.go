package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/josch/gallerize/internal/config"
	"github.com/josch/gallerize/internal/daemon"
	"github.com/josch/gallerize/internal/metrics"
	"github.com/josch/gallerize/internal/pipeline"
)

// DaemonCmd implements the 'daemon' command.
type DaemonCmd struct {
	Output string `short:"o" help:"Output directory for the generated site" default:"./site"`
	Addr   string `help:"Listen address, overrides daemon.addr from the configuration"`
}

func (dc *DaemonCmd) Run(_ *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if dc.Addr != "" {
		cfg.Daemon.Addr = dc.Addr
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts, cleanup, err := pipelineOptions(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	promReg := prometheus.NewRegistry()
	opts = append(opts, pipeline.WithRecorder(metrics.NewPrometheusRecorder(promReg)))

	// The factory re-runs on config reload, so runner wiring follows the
	// reloaded weather settings. The store, sink, and recorder stay open
	// across reloads.
	factory := func(c *config.Config) (*pipeline.Pipeline, error) {
		registry, err := buildRegistry(c)
		if err != nil {
			return nil, err
		}
		return pipeline.New(c, registry, opts...), nil
	}

	outputDir := ResolveOutputDir(dc.Output, cfg)
	d, err := daemon.New(cfg, root.Config, outputDir, factory, nil)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	d.SetServer(daemon.NewServer(cfg.Daemon.Addr, outputDir, d, promReg))

	errChan := make(chan error, 1)
	go func() {
		errChan <- d.Start(ctx)
	}()

	slog.Info("Daemon started, waiting for shutdown signal")

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("daemon error: %w", err)
		}
	case <-ctx.Done():
		slog.Info("Shutdown signal received, stopping daemon")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := d.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop daemon: %w", err)
	}

	slog.Info("Daemon stopped")
	return nil
}
