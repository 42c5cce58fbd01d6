package daemon

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josch/gallerize/internal/config"
	"github.com/josch/gallerize/internal/gallery"
	"github.com/josch/gallerize/internal/pipeline"
)

func testDaemon(t *testing.T) (*Daemon, string) {
	t.Helper()

	examplesDir := t.TempDir()
	outputDir := filepath.Join(t.TempDir(), "site")

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := "site:\n  title: Test\nexamples:\n  roots:\n    - " + examplesDir + "\n"
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	cfg, err := config.Load(configPath)
	require.NoError(t, err)

	factory := func(c *config.Config) (*pipeline.Pipeline, error) {
		return pipeline.New(c, gallery.NewRegistry()), nil
	}
	d, err := New(cfg, configPath, outputDir, factory, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.Stop(ctx)
	})
	return d, configPath
}

func TestRunBuildRecordsResult(t *testing.T) {
	d, _ := testDaemon(t)

	d.runBuild(context.Background(), "test")
	result, at := d.LastBuild()
	require.NotNil(t, result)
	assert.Equal(t, pipeline.OutcomeSuccess, result.Outcome)
	assert.WithinDuration(t, time.Now(), at, time.Minute)
}

func TestTriggerBuildCoalesces(t *testing.T) {
	d, _ := testDaemon(t)

	d.TriggerBuild("first")
	d.TriggerBuild("second") // must not block with a full channel
	assert.Len(t, d.buildCh, 1)
}

func TestReloadConfigRejectsAddrChange(t *testing.T) {
	d, configPath := testDaemon(t)

	content := "site:\n  title: Test\ndaemon:\n  addr: \":9999\"\n"
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	err := d.ReloadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires restart")
}

func TestReloadConfigAppliesChanges(t *testing.T) {
	d, configPath := testDaemon(t)

	root := d.Config().Examples.Roots[0]
	content := "site:\n  title: Renamed Gallery\nexamples:\n  roots:\n    - " + root + "\n"
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	require.NoError(t, d.ReloadConfig())
	assert.Equal(t, "Renamed Gallery", d.Config().Site.Title)
	// The reload queued a rebuild.
	assert.Len(t, d.buildCh, 1)

	// The next build must run against the new configuration, not the one
	// the daemon started with.
	d.runBuild(context.Background(), "test")
	index, err := os.ReadFile(filepath.Join(d.outputDir, "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(index), "Renamed Gallery")
}

func TestHealthEndpoint(t *testing.T) {
	d, _ := testDaemon(t)
	d.runBuild(context.Background(), "test")

	srv := NewServer(":0", t.TempDir(), d, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/healthz", nil)
	srv.handleHealth(rec, req)

	require.Equal(t, 200, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, pipeline.OutcomeSuccess, resp.LastOutcome)
	assert.NotEmpty(t, resp.LastBuildID)
}

func TestSchedulerDisabledWithZeroInterval(t *testing.T) {
	s, err := NewScheduler(0, nil)
	require.NoError(t, err)
	s.Start() // no-op
	require.NoError(t, s.Stop())
}

func TestWatcherTriggersOnNestedChange(t *testing.T) {
	d, _ := testDaemon(t)

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "nested"), 0o755))

	w, err := NewWatcher([]string{root}, "", 10*time.Millisecond, d)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })
	require.NoError(t, w.Start(context.Background()))

	// Discovery walks roots recursively; a change below the root must
	// trigger a rebuild too.
	src := filepath.Join(root, "nested", "page.go")
	require.NoError(t, os.WriteFile(src, []byte("// %%\n"), 0o644))
	require.Eventually(t, func() bool { return len(d.buildCh) == 1 }, 5*time.Second, 20*time.Millisecond)
}

func TestWatcherPicksUpNewDirectories(t *testing.T) {
	d, _ := testDaemon(t)

	root := t.TempDir()
	w, err := NewWatcher([]string{root}, "", 10*time.Millisecond, d)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })
	require.NoError(t, w.Start(context.Background()))

	newDir := filepath.Join(root, "fresh")
	require.NoError(t, os.Mkdir(newDir, 0o755))
	// Let the watcher register the new directory before writing into it.
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(newDir, "page.go"), []byte("// %%\n"), 0o644))
	require.Eventually(t, func() bool { return len(d.buildCh) == 1 }, 5*time.Second, 20*time.Millisecond)
}

func TestIsExampleSource(t *testing.T) {
	assert.True(t, isExampleSource("examples/weather.go"))
	assert.False(t, isExampleSource("examples/weather_test.go"))
	assert.False(t, isExampleSource("examples/notes.md"))
}
