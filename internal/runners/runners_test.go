package runners

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josch/gallerize/internal/config"
	"github.com/josch/gallerize/internal/gallery"
	"github.com/josch/gallerize/internal/meteo"
)

func TestSolversRunnerOutput(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, SolversRunner{}.Run(context.Background(), &out, t.TempDir()))

	text := out.String()
	// The exact solution of the 2x2 system is (-3, 3).
	assert.Contains(t, text, "x (direct solve)")
	assert.Contains(t, text, "-3")
	// Both failure modes of the non-square system are demonstrated.
	assert.Contains(t, text, "1) ")
	assert.Contains(t, text, "2) ")
	assert.Contains(t, text, "requires a square matrix")
	// Both least-squares fits report their rank.
	assert.Contains(t, text, "rank=2")
	assert.Contains(t, text, "residual norm=")
}

func meteoStub(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "temperature_2m", r.URL.Query().Get("hourly"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"hourly": {
				"time": ["2024-06-01T00:00", "2024-06-01T01:00", "2024-06-01T02:00"],
				"temperature_2m": [18.2, 17.9, 17.5]
			}
		}`))
	}))
}

func testWeatherConfig() config.WeatherConfig {
	return config.WeatherConfig{
		Locations: []config.LocationConfig{
			{Name: "Geneva", Latitude: 46.2052193, Longitude: 6.1471942, Timezone: "Europe/Zurich"},
		},
		PastDays:     30,
		ForecastDays: 16,
		HistoryStart: "2024-01-01",
	}
}

func TestWeatherRunnerWritesChart(t *testing.T) {
	srv := meteoStub(t)
	defer srv.Close()

	runner := NewWeatherRunner(testWeatherConfig(), meteo.Options{
		ForecastURL:   srv.URL,
		HistoricalURL: srv.URL,
	})
	runner.now = func() time.Time {
		return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	}

	artifactDir := t.TempDir()
	var out bytes.Buffer
	require.NoError(t, runner.Run(context.Background(), &out, artifactDir))

	assert.Contains(t, out.String(), "Geneva: 3 forecast hours, 3 historical hours")
	assert.Contains(t, out.String(), "latest forecast 17.5 °C")

	html, err := os.ReadFile(filepath.Join(artifactDir, "chart.html"))
	require.NoError(t, err)
	assert.Contains(t, string(html), "Geneva forecast")
}

func TestWeatherRunnerSkipsHistoryBeforeStart(t *testing.T) {
	srv := meteoStub(t)
	defer srv.Close()

	cfg := testWeatherConfig()
	cfg.HistoryStart = "2024-06-10" // inside the forecast's past_days window
	runner := NewWeatherRunner(cfg, meteo.Options{
		ForecastURL:   srv.URL,
		HistoricalURL: srv.URL,
	})
	runner.now = func() time.Time {
		return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	}

	var out bytes.Buffer
	require.NoError(t, runner.Run(context.Background(), &out, t.TempDir()))
	assert.Contains(t, out.String(), "Geneva: 3 forecast hours, 0 historical hours")
}

func TestRegisterAll(t *testing.T) {
	registry := gallery.NewRegistry()
	cfg := &config.Config{Weather: testWeatherConfig()}
	require.NoError(t, RegisterAll(registry, cfg))

	_, ok := registry.Lookup(SolversSlug)
	assert.True(t, ok)
	_, ok = registry.Lookup(WeatherSlug)
	assert.True(t, ok)

	// Registering twice must fail on the duplicate slug.
	require.Error(t, RegisterAll(registry, cfg))
}
