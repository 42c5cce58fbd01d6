package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/josch/gallerize/internal/config"
	"github.com/josch/gallerize/internal/meteo"
	"github.com/josch/gallerize/internal/runners"
)

// WeatherCmd implements the 'weather' command: it runs the weather extractor
// outside a gallery build, writing the chart into the current directory.
type WeatherCmd struct {
	Location []string `short:"l" help:"Restrict to the named configured locations"`
	Start    string   `help:"Override weather.history_start (YYYY-MM-DD)"`
	Out      string   `help:"Directory to write the chart into" default:"."`
}

func (w *WeatherCmd) Run(_ *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	weather := cfg.Weather
	if w.Start != "" {
		weather.HistoryStart = w.Start
	}
	if len(w.Location) > 0 {
		weather.Locations, err = filterLocations(weather.Locations, w.Location)
		if err != nil {
			return err
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runner := runners.NewWeatherRunner(weather, meteo.Options{Retry: cfg.Retry.Policy()})
	return runner.Run(ctx, os.Stdout, w.Out)
}

func filterLocations(configured []config.LocationConfig, names []string) ([]config.LocationConfig, error) {
	byName := make(map[string]config.LocationConfig, len(configured))
	for _, loc := range configured {
		byName[strings.ToLower(loc.Name)] = loc
	}

	selected := make([]config.LocationConfig, 0, len(names))
	for _, name := range names {
		loc, ok := byName[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("location %q not found in configuration", name)
		}
		selected = append(selected, loc)
	}
	return selected, nil
}
