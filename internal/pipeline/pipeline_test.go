package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josch/gallerize/internal/config"
	"github.com/josch/gallerize/internal/gallery"
	"github.com/josch/gallerize/internal/retry"
	"github.com/josch/gallerize/internal/state"
)

func testConfig(t *testing.T, roots []string, required ...string) *config.Config {
	t.Helper()
	return &config.Config{
		Site:     config.SiteConfig{Title: "Test Gallery"},
		Examples: config.ExamplesConfig{Roots: roots, Required: required, Concurrency: 2},
		Output:   config.OutputConfig{Clean: true},
		Retry:    config.RetryConfig{Mode: "fixed", Initial: time.Millisecond, Max: time.Millisecond, MaxAttempts: 3},
	}
}

func writeExampleFile(t *testing.T, dir, name, title string) {
	t.Helper()
	src := "// %%\n// # " + title + "\n//\n// Summary line.\n\nx := 1\n_ = x\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644))
}

type capturingSink struct {
	events []BuildEvent
}

func (s *capturingSink) Publish(_ context.Context, event BuildEvent) error {
	s.events = append(s.events, event)
	return nil
}

func TestRunBuildsSite(t *testing.T) {
	examplesDir := t.TempDir()
	outputDir := filepath.Join(t.TempDir(), "site")
	writeExampleFile(t, examplesDir, "weather.go", "Weather Forecast")
	writeExampleFile(t, examplesDir, "solvers.go", "Linear Solvers")

	registry := gallery.NewRegistry()
	require.NoError(t, registry.Register("weather-forecast", gallery.RunnerFunc(
		func(_ context.Context, stdout io.Writer, artifactDir string) error {
			fmt.Fprintln(stdout, "fetched 720 hours")
			return os.WriteFile(filepath.Join(artifactDir, "chart.html"), []byte("<html></html>"), 0o644)
		})))

	sink := &capturingSink{}
	p := New(testConfig(t, []string{examplesDir}), registry, WithEventSink(sink))

	result, err := p.Run(context.Background(), outputDir, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Empty(t, result.BrokenLinks)

	// Pages and index on disk.
	assert.FileExists(t, filepath.Join(outputDir, "index.html"))
	assert.FileExists(t, filepath.Join(outputDir, "weather-forecast", "index.html"))
	assert.FileExists(t, filepath.Join(outputDir, "weather-forecast", "chart.html"))
	assert.FileExists(t, filepath.Join(outputDir, "linear-solvers", "index.html"))

	// Captured output embedded in the page.
	page, err := os.ReadFile(filepath.Join(outputDir, "weather-forecast", "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(page), "fetched 720 hours")
	assert.Contains(t, string(page), `iframe src="chart.html"`)

	// Lifecycle events: started, five stages, finished.
	require.NotEmpty(t, sink.events)
	assert.Equal(t, state.EventBuildStarted, sink.events[0].Type)
	assert.Equal(t, state.EventBuildFinished, sink.events[len(sink.events)-1].Type)
	assert.Equal(t, OutcomeSuccess, sink.events[len(sink.events)-1].Outcome)
}

func TestRunRetriesFlakyRunner(t *testing.T) {
	examplesDir := t.TempDir()
	writeExampleFile(t, examplesDir, "flaky.go", "Flaky Example")

	var attempts atomic.Int32
	registry := gallery.NewRegistry()
	require.NoError(t, registry.Register("flaky-example", gallery.RunnerFunc(
		func(context.Context, io.Writer, string) error {
			if attempts.Add(1) < 3 {
				return errors.New("transient")
			}
			return nil
		})))

	p := New(testConfig(t, []string{examplesDir}), registry)
	result, err := p.Run(context.Background(), filepath.Join(t.TempDir(), "site"), false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.EqualValues(t, 3, attempts.Load())
}

func TestRunDegradesOnOptionalFailure(t *testing.T) {
	examplesDir := t.TempDir()
	outputDir := filepath.Join(t.TempDir(), "site")
	writeExampleFile(t, examplesDir, "broken.go", "Broken Example")

	registry := gallery.NewRegistry()
	require.NoError(t, registry.Register("broken-example", gallery.RunnerFunc(
		func(context.Context, io.Writer, string) error { return errors.New("boom") })))

	p := New(testConfig(t, []string{examplesDir}), registry)
	result, err := p.Run(context.Background(), outputDir, false)
	require.NoError(t, err, "optional failure must not fail the build")
	assert.Equal(t, OutcomeDegraded, result.Outcome)

	page, err := os.ReadFile(filepath.Join(outputDir, "broken-example", "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(page), "Example execution failed")
}

func TestRunFailsOnRequiredFailure(t *testing.T) {
	examplesDir := t.TempDir()
	writeExampleFile(t, examplesDir, "broken.go", "Broken Example")

	registry := gallery.NewRegistry()
	require.NoError(t, registry.Register("broken-example", gallery.RunnerFunc(
		func(context.Context, io.Writer, string) error { return errors.New("boom") })))

	p := New(testConfig(t, []string{examplesDir}, "broken-example"), registry)
	result, err := p.Run(context.Background(), filepath.Join(t.TempDir(), "site"), false)
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Contains(t, err.Error(), "required example")
}

func TestIncrementalSkipsUnchangedExamples(t *testing.T) {
	examplesDir := t.TempDir()
	outputDir := filepath.Join(t.TempDir(), "site")
	writeExampleFile(t, examplesDir, "weather.go", "Weather Forecast")

	var runs atomic.Int32
	registry := gallery.NewRegistry()
	require.NoError(t, registry.Register("weather-forecast", gallery.RunnerFunc(
		func(_ context.Context, stdout io.Writer, _ string) error {
			runs.Add(1)
			fmt.Fprint(stdout, "run output")
			return nil
		})))

	store, err := state.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	cfg := testConfig(t, []string{examplesDir})
	p := New(cfg, registry, WithStore(store))

	_, err = p.Run(context.Background(), outputDir, false)
	require.NoError(t, err)
	require.EqualValues(t, 1, runs.Load())

	// Second incremental run: unchanged source, runner must not re-run but
	// the page keeps its captured output.
	result, err := p.Run(context.Background(), outputDir, true)
	require.NoError(t, err)
	assert.EqualValues(t, 1, runs.Load())
	require.Len(t, result.Examples, 1)
	assert.True(t, result.Examples[0].Skipped)

	page, err := os.ReadFile(filepath.Join(outputDir, "weather-forecast", "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(page), "run output")

	// Changing the source re-runs.
	writeExampleFile(t, examplesDir, "weather.go", "Weather Forecast") // rewrite same content
	src := "// %%\n// # Weather Forecast\n//\n// Updated summary.\n\ny := 2\n_ = y\n"
	require.NoError(t, os.WriteFile(filepath.Join(examplesDir, "weather.go"), []byte(src), 0o644))

	_, err = p.Run(context.Background(), outputDir, true)
	require.NoError(t, err)
	assert.EqualValues(t, 2, runs.Load())
}

func TestIncrementalRerunsPreviouslyFailedExample(t *testing.T) {
	examplesDir := t.TempDir()
	outputDir := filepath.Join(t.TempDir(), "site")
	writeExampleFile(t, examplesDir, "weather.go", "Weather Forecast")

	var healthy atomic.Bool
	var runs atomic.Int32
	registry := gallery.NewRegistry()
	require.NoError(t, registry.Register("weather-forecast", gallery.RunnerFunc(
		func(_ context.Context, stdout io.Writer, _ string) error {
			runs.Add(1)
			if !healthy.Load() {
				return errors.New("transient outage")
			}
			fmt.Fprint(stdout, "recovered output")
			return nil
		})))

	store, err := state.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	p := New(testConfig(t, []string{examplesDir}), registry, WithStore(store))

	result, err := p.Run(context.Background(), outputDir, false)
	require.NoError(t, err)
	require.Equal(t, OutcomeDegraded, result.Outcome)

	// The outage clears. The source is unchanged, but the previous failure
	// must not have been recorded as a good build: the incremental rebuild
	// has to re-run the example, not skip it.
	healthy.Store(true)
	before := runs.Load()
	result, err = p.Run(context.Background(), outputDir, true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Greater(t, runs.Load(), before)
	require.Len(t, result.Examples, 1)
	assert.False(t, result.Examples[0].Skipped)
	assert.True(t, result.Examples[0].Executed)

	page, err := os.ReadFile(filepath.Join(outputDir, "weather-forecast", "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(page), "recovered output")
}

func TestRetryPolicyDefaultsAllowSevenAttempts(t *testing.T) {
	cfg := testConfig(t, nil)
	cfg.Retry = config.RetryConfig{}
	p := cfg.Retry.Policy()
	assert.Equal(t, 7, p.MaxAttempts)
	assert.Equal(t, retry.BackoffFixed, p.Mode)
}
