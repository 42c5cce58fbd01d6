// Package commands holds the gallerize CLI command implementations.
package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/josch/gallerize/internal/config"
	"github.com/josch/gallerize/internal/events"
	"github.com/josch/gallerize/internal/gallery"
	"github.com/josch/gallerize/internal/pipeline"
	"github.com/josch/gallerize/internal/runners"
	"github.com/josch/gallerize/internal/state"
)

// Global carries state shared across subcommands.
type Global struct {
	Logger *slog.Logger
}

// CLI is the root command definition and global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"config.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build    BuildCmd    `cmd:"" help:"Build the gallery site from discovered examples"`
	Init     InitCmd     `cmd:"" help:"Initialize a new configuration file"`
	Discover DiscoverCmd `cmd:"" help:"Discover example files without building"`
	Daemon   DaemonCmd   `cmd:"" help:"Watch, rebuild, and serve the gallery continuously"`
	Weather  WeatherCmd  `cmd:"" help:"Run the weather extractor standalone"`
}

// AfterApply runs after flag parsing; sets up logging once.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

// ResolveOutputDir determines the output directory. An explicit CLI flag wins
// over the configured directory.
func ResolveOutputDir(cliOutput string, cfg *config.Config) string {
	if cliOutput != "" && cliOutput != "./site" {
		return cliOutput
	}
	if cfg.Output.Directory != "" {
		return cfg.Output.Directory
	}
	return cliOutput
}

// buildRegistry creates the example registry with all built-in runners wired.
func buildRegistry(cfg *config.Config) (*gallery.Registry, error) {
	registry := gallery.NewRegistry()
	if err := runners.RegisterAll(registry, cfg); err != nil {
		return nil, fmt.Errorf("register runners: %w", err)
	}
	return registry, nil
}

// pipelineOptions assembles the optional pipeline wiring from configuration:
// the sqlite state store and, when configured, the NATS event sink. The
// returned cleanup closes whatever was opened.
func pipelineOptions(cfg *config.Config) ([]pipeline.Option, func(), error) {
	var opts []pipeline.Option
	var cleanups []func()
	cleanup := func() {
		for _, fn := range cleanups {
			fn()
		}
	}

	store, err := state.NewSQLiteStore(cfg.Output.StatePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open state store: %w", err)
	}
	cleanups = append(cleanups, func() {
		if err := store.Close(); err != nil {
			slog.Warn("Failed to close state store", "error", err)
		}
	})
	opts = append(opts, pipeline.WithStore(store))

	if cfg.Events.NATSURL != "" {
		sink, err := events.NewNATSPublisher(cfg.Events.NATSURL, cfg.Events.Subject)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect event sink: %w", err)
		}
		cleanups = append(cleanups, sink.Close)
		opts = append(opts, pipeline.WithEventSink(sink))
	}

	return opts, cleanup, nil
}
