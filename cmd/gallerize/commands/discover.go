package commands

import (
	"fmt"
	"log/slog"

	"github.com/josch/gallerize/internal/config"
	"github.com/josch/gallerize/internal/gallery"
)

// DiscoverCmd implements the 'discover' command: it lists what a build would
// pick up without executing anything.
type DiscoverCmd struct{}

func (d *DiscoverCmd) Run(_ *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	discovery := gallery.NewDiscovery(cfg.Examples.Roots, cfg.Examples.Required)
	examples, err := discovery.Discover()
	if err != nil {
		return err
	}

	slog.Info("Discovery completed", "examples", len(examples))
	for _, ex := range examples {
		_, hasRunner := registry.Lookup(ex.Slug)
		slog.Info("Example discovered",
			"slug", ex.Slug,
			"title", ex.Title,
			"path", ex.Path,
			"required", ex.Required,
			"runner", hasRunner)
	}
	return nil
}
