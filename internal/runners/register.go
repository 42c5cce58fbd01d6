package runners

import (
	"fmt"

	"github.com/josch/gallerize/internal/config"
	"github.com/josch/gallerize/internal/gallery"
	"github.com/josch/gallerize/internal/meteo"
)

// RegisterAll wires every built-in runner into the registry.
func RegisterAll(registry *gallery.Registry, cfg *config.Config) error {
	if err := registry.Register(SolversSlug, SolversRunner{}); err != nil {
		return fmt.Errorf("register solvers runner: %w", err)
	}
	weather := NewWeatherRunner(cfg.Weather, meteo.Options{Retry: cfg.Retry.Policy()})
	if err := registry.Register(WeatherSlug, weather); err != nil {
		return fmt.Errorf("register weather runner: %w", err)
	}
	return nil
}
