package runners

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/josch/gallerize/internal/chart"
	"github.com/josch/gallerize/internal/config"
	"github.com/josch/gallerize/internal/meteo"
	"github.com/josch/gallerize/internal/series"
)

// WeatherSlug is the slug of the Open-Meteo extractor page.
const WeatherSlug = "openmeteo-forecast-extractor"

// chartFile is the artifact the weather page embeds as an iframe.
const chartFile = "chart.html"

// WeatherRunner fetches hourly temperatures for the configured locations and
// renders the temperature chart into the page's artifact directory.
type WeatherRunner struct {
	client       *meteo.Client
	locations    []meteo.Location
	historyStart time.Time
	pastDays     int

	// now is stubbed in tests.
	now func() time.Time
}

// NewWeatherRunner builds the runner from configuration. opts lets callers
// override endpoints and the HTTP client; zero fields keep the defaults.
func NewWeatherRunner(cfg config.WeatherConfig, opts meteo.Options) *WeatherRunner {
	if opts.PastDays == 0 {
		opts.PastDays = cfg.PastDays
	}
	if opts.ForecastDays == 0 {
		opts.ForecastDays = cfg.ForecastDays
	}

	var start time.Time
	if cfg.HistoryStart != "" {
		// Validated by config.Load; a parse failure here just disables the
		// archive fetch.
		start, _ = time.Parse("2006-01-02", cfg.HistoryStart)
	}

	return &WeatherRunner{
		client:       meteo.NewClient(opts),
		locations:    toLocations(cfg.Locations),
		historyStart: start,
		pastDays:     opts.PastDays,
		now:          time.Now,
	}
}

func toLocations(configured []config.LocationConfig) []meteo.Location {
	locations := make([]meteo.Location, 0, len(configured))
	for _, lc := range configured {
		loc := meteo.Location{Name: lc.Name, Latitude: lc.Latitude, Longitude: lc.Longitude}
		if lc.Timezone != "" {
			tz, err := time.LoadLocation(lc.Timezone)
			if err != nil {
				slog.Warn("Unknown timezone, falling back to UTC", "location", lc.Name, "timezone", lc.Timezone)
			} else {
				loc.Timezone = tz
			}
		}
		locations = append(locations, loc)
	}
	return locations
}

func (r *WeatherRunner) Run(ctx context.Context, stdout io.Writer, artifactDir string) error {
	now := r.now()
	data := make([]chart.LocationSeries, 0, len(r.locations))

	for _, loc := range r.locations {
		forecast, err := r.client.Forecast(ctx, loc)
		if err != nil {
			return fmt.Errorf("fetch forecast for %s: %w", loc.Name, err)
		}

		var historical series.Series
		if !r.historyStart.IsZero() {
			// The forecast endpoint already covers the recent past; the
			// archive fills in everything before that window.
			end := now.AddDate(0, 0, -r.pastDays)
			if end.After(r.historyStart) {
				historical, err = r.client.Historical(ctx, loc, r.historyStart, end)
				if err != nil {
					return fmt.Errorf("fetch history for %s: %w", loc.Name, err)
				}
			}
		}

		fmt.Fprintf(stdout, "%s: %d forecast hours, %d historical hours\n",
			loc.Name, forecast.Len(), historical.Len())
		if forecast.Len() > 0 {
			last := forecast.Len() - 1
			fmt.Fprintf(stdout, "%s: latest forecast %.1f °C at %s\n",
				loc.Name, forecast.Values[last], forecast.Times[last].Format("2006-01-02 15:04"))
		}

		data = append(data, chart.LocationSeries{
			Name:       loc.Name,
			Historical: historical,
			Forecast:   forecast,
		})
	}

	chartPath := filepath.Join(artifactDir, chartFile)
	f, err := os.Create(chartPath)
	if err != nil {
		return fmt.Errorf("create chart file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	if err := chart.WriteTemperatureChart(f, data, now); err != nil {
		return fmt.Errorf("render temperature chart: %w", err)
	}
	fmt.Fprintf(stdout, "wrote %s\n", chartFile)
	return nil
}
