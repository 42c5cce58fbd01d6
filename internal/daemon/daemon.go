// Package daemon keeps the gallery continuously built: it watches example
// roots, schedules periodic rebuilds, serves the site, and exposes health
// and metrics endpoints.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/josch/gallerize/internal/config"
	"github.com/josch/gallerize/internal/pipeline"
	"github.com/josch/gallerize/internal/publish"
)

// PipelineFactory builds a pipeline for a configuration. The daemon calls it
// once at startup and again on every config reload, so changed roots, retry
// policy, and site settings reach subsequent builds.
type PipelineFactory func(cfg *config.Config) (*pipeline.Pipeline, error)

// Daemon orchestrates watch/schedule/serve mode.
type Daemon struct {
	mu         sync.RWMutex
	cfg        *config.Config
	configPath string
	outputDir  string

	newPipeline PipelineFactory
	pipe        *pipeline.Pipeline
	publisher   *publish.Publisher

	buildCh   chan string // build trigger reasons
	watcher   *Watcher
	scheduler *Scheduler
	server    *Server

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopped  chan struct{}

	lastBuild   *pipeline.Result
	lastBuildAt time.Time
}

// New assembles a Daemon. Pipeline wiring (registry, store, metrics, sinks)
// stays with the caller inside the factory, which also serves config reloads.
func New(cfg *config.Config, configPath, outputDir string, newPipeline PipelineFactory, server *Server) (*Daemon, error) {
	pipe, err := newPipeline(cfg)
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	d := &Daemon{
		cfg:         cfg,
		configPath:  configPath,
		outputDir:   outputDir,
		newPipeline: newPipeline,
		pipe:        pipe,
		server:      server,
		buildCh:     make(chan string, 1),
		stopped:     make(chan struct{}),
	}
	if cfg.Publish != nil {
		d.publisher = publish.New(cfg.Publish)
	}

	d.watcher, err = NewWatcher(cfg.Examples.Roots, configPath, cfg.Daemon.Debounce, d)
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	d.scheduler, err = NewScheduler(cfg.Daemon.ScheduleInterval, d)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return d, nil
}

// SetServer attaches the HTTP server. The server needs the daemon for health
// reporting, so callers create the daemon first and attach the server before
// Start.
func (d *Daemon) SetServer(s *Server) {
	d.server = s
}

// Config returns the current configuration snapshot.
func (d *Daemon) Config() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// Start runs the daemon until ctx is canceled.
func (d *Daemon) Start(ctx context.Context) error {
	slog.Info("Starting daemon", "addr", d.cfg.Daemon.Addr, "roots", d.cfg.Examples.Roots)

	if err := d.watcher.Start(ctx); err != nil {
		return err
	}
	d.scheduler.Start()
	if d.server != nil {
		d.server.Start(ctx)
	}

	d.wg.Add(1)
	go d.buildLoop(ctx)

	// Initial build so the served site is never empty.
	d.TriggerBuild("startup")

	<-ctx.Done()
	return nil
}

// Stop shuts everything down, waiting up to ctx's deadline.
func (d *Daemon) Stop(ctx context.Context) error {
	var firstErr error
	d.stopOnce.Do(func() {
		close(d.stopped)

		if err := d.watcher.Stop(); err != nil {
			firstErr = err
		}
		if err := d.scheduler.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
		if d.server != nil {
			if err := d.server.Stop(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}

		done := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			if firstErr == nil {
				firstErr = fmt.Errorf("build loop did not stop in time: %w", ctx.Err())
			}
		}
	})
	return firstErr
}

// TriggerBuild requests a rebuild; coalesces when one is already pending.
func (d *Daemon) TriggerBuild(reason string) {
	select {
	case d.buildCh <- reason:
	default:
		slog.Debug("Build already pending, coalescing trigger", "reason", reason)
	}
}

func (d *Daemon) buildLoop(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopped:
			return
		case reason := <-d.buildCh:
			d.runBuild(ctx, reason)
		}
	}
}

func (d *Daemon) runBuild(ctx context.Context, reason string) {
	slog.Info("Daemon build triggered", "reason", reason)

	d.mu.RLock()
	pipe := d.pipe
	publisher := d.publisher
	d.mu.RUnlock()

	result, err := pipe.Run(ctx, d.outputDir, true)
	if err != nil {
		slog.Error("Daemon build failed", "reason", reason, "error", err)
		return
	}

	d.mu.Lock()
	d.lastBuild = result
	d.lastBuildAt = time.Now()
	d.mu.Unlock()

	if publisher != nil {
		if err := publisher.Publish(ctx, d.outputDir, result.BuildID); err != nil {
			if errors.Is(err, publish.ErrNoChanges) {
				slog.Debug("Site unchanged, publish skipped", "build_id", result.BuildID)
			} else {
				slog.Error("Publish failed", "build_id", result.BuildID, "error", err)
			}
		}
	}
}

// ReloadConfig validates and applies a changed configuration file, then
// triggers a rebuild. Address changes require a restart and are rejected.
func (d *Daemon) ReloadConfig() error {
	newCfg, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("load new configuration: %w", err)
	}

	d.mu.Lock()
	if newCfg.Daemon.Addr != d.cfg.Daemon.Addr {
		d.mu.Unlock()
		return fmt.Errorf("daemon.addr change requires restart (old %s, new %s)", d.cfg.Daemon.Addr, newCfg.Daemon.Addr)
	}

	// Rebuild the pipeline so the new roots, retry policy, and site settings
	// take effect; the old pipeline would keep the stale config forever.
	newPipe, err := d.newPipeline(newCfg)
	if err != nil {
		d.mu.Unlock()
		return fmt.Errorf("rebuild pipeline: %w", err)
	}

	d.cfg = newCfg
	d.pipe = newPipe
	if newCfg.Publish != nil {
		d.publisher = publish.New(newCfg.Publish)
	} else {
		d.publisher = nil
	}
	d.mu.Unlock()

	slog.Info("Configuration reloaded", "path", d.configPath)
	d.TriggerBuild("config-reload")
	return nil
}

// LastBuild returns the most recent build result for health reporting.
func (d *Daemon) LastBuild() (*pipeline.Result, time.Time) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastBuild, d.lastBuildAt
}
