package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/josch/gallerize/internal/config"
	"github.com/josch/gallerize/internal/pipeline"
	"github.com/josch/gallerize/internal/publish"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Output      string `short:"o" help:"Output directory for the generated site" default:"./site"`
	Incremental bool   `short:"i" help:"Skip re-running examples whose source is unchanged"`
	Publish     bool   `short:"p" help:"Publish the built site to the configured pages branch"`
}

func (b *BuildCmd) Run(_ *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if b.Publish && cfg.Publish == nil {
		return fmt.Errorf("publishing requested but no publish section configured")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}
	opts, cleanup, err := pipelineOptions(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	outputDir := ResolveOutputDir(b.Output, cfg)
	pipe := pipeline.New(cfg, registry, opts...)

	result, err := pipe.Run(ctx, outputDir, b.Incremental)
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	if result.Outcome == pipeline.OutcomeDegraded {
		slog.Warn("Build finished degraded", "build_id", result.BuildID,
			"broken_links", len(result.BrokenLinks))
	}

	if b.Publish {
		publisher := publish.New(cfg.Publish)
		if err := publisher.Publish(ctx, outputDir, result.BuildID); err != nil {
			if errors.Is(err, publish.ErrNoChanges) {
				slog.Info("Site unchanged, nothing to publish", "build_id", result.BuildID)
				return nil
			}
			return fmt.Errorf("publish failed: %w", err)
		}
		slog.Info("Site published", "build_id", result.BuildID, "branch", cfg.Publish.Branch)
	}
	return nil
}
