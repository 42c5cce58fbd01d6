// Package pipeline orchestrates gallery builds: discover examples, execute
// their runners, render pages, write the index, and check links.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/josch/gallerize/internal/config"
	"github.com/josch/gallerize/internal/gallery"
	"github.com/josch/gallerize/internal/linkcheck"
	"github.com/josch/gallerize/internal/metrics"
	"github.com/josch/gallerize/internal/render"
	"github.com/josch/gallerize/internal/retry"
	"github.com/josch/gallerize/internal/state"
)

// outputFile is where captured runner stdout is persisted inside the page
// directory, so incremental builds can reuse it without re-running.
const outputFile = "output.txt"

// Stage names, in execution order.
const (
	StageDiscover  = "discover"
	StageExecute   = "execute"
	StageRender    = "render"
	StageIndex     = "index"
	StageLinkcheck = "linkcheck"
)

// Build outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeDegraded = "degraded"
	OutcomeFailed   = "failed"
	OutcomeCanceled = "canceled"
)

// EventSink receives build lifecycle events (e.g. a NATS publisher).
type EventSink interface {
	Publish(ctx context.Context, event BuildEvent) error
}

// BuildEvent is the JSON payload published for each lifecycle step.
type BuildEvent struct {
	BuildID   string    `json:"build_id"`
	Type      string    `json:"type"`
	Stage     string    `json:"stage,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ExampleResult describes one example's fate in a build.
type ExampleResult struct {
	Slug     string
	Executed bool // a runner ran (not skipped, not runner-less)
	Skipped  bool // unchanged content, reused previous output
	Failed   bool
	Err      error
}

// Result summarizes a finished build.
type Result struct {
	BuildID     string
	Outcome     string
	Examples    []ExampleResult
	BrokenLinks []linkcheck.Broken
	Duration    time.Duration
}

// Pipeline runs gallery builds.
type Pipeline struct {
	cfg      *config.Config
	registry *gallery.Registry
	store    state.Store      // may be nil: no incremental state
	recorder metrics.Recorder // never nil after New
	renderer *render.Renderer
	sink     EventSink // may be nil
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStore attaches a state store enabling incremental builds and the build log.
func WithStore(s state.Store) Option { return func(p *Pipeline) { p.store = s } }

// WithRecorder attaches a metrics recorder.
func WithRecorder(r metrics.Recorder) Option { return func(p *Pipeline) { p.recorder = r } }

// WithEventSink attaches an external event sink.
func WithEventSink(s EventSink) Option { return func(p *Pipeline) { p.sink = s } }

// New creates a Pipeline for the given configuration.
func New(cfg *config.Config, registry *gallery.Registry, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:      cfg,
		registry: registry,
		recorder: metrics.NoopRecorder{},
		renderer: render.New(cfg.Site.Title, cfg.Site.BaseURL),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes a full build into outputDir. With incremental set, examples
// whose source is unchanged reuse their previous captured output instead of
// re-running.
func (p *Pipeline) Run(ctx context.Context, outputDir string, incremental bool) (*Result, error) {
	started := time.Now()
	result := &Result{BuildID: uuid.NewString()}

	slog.Info("Starting gallery build", "build_id", result.BuildID, "output", outputDir, "incremental", incremental)
	p.emit(ctx, result.BuildID, state.EventBuildStarted, "", "")

	if p.cfg.Output.Clean && !incremental {
		if err := os.RemoveAll(outputDir); err != nil {
			return p.finish(ctx, result, started, OutcomeFailed, fmt.Errorf("clean output directory: %w", err))
		}
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return p.finish(ctx, result, started, OutcomeFailed, err)
	}

	// discover
	var examples []*gallery.Example
	err := p.stage(ctx, result.BuildID, StageDiscover, func() error {
		var err error
		discovery := gallery.NewDiscovery(p.cfg.Examples.Roots, p.cfg.Examples.Required)
		examples, err = discovery.Discover()
		return err
	})
	if err != nil {
		return p.finish(ctx, result, started, OutcomeFailed, err)
	}
	if len(examples) == 0 {
		slog.Warn("No examples found", "roots", strings.Join(p.cfg.Examples.Roots, ", "))
	}

	// execute
	pages := make(map[string]*render.PageData, len(examples))
	err = p.stage(ctx, result.BuildID, StageExecute, func() error {
		var err error
		result.Examples, err = p.executeAll(ctx, examples, outputDir, incremental, pages)
		return err
	})
	if err != nil {
		outcome := OutcomeFailed
		if ctx.Err() != nil {
			outcome = OutcomeCanceled
		}
		return p.finish(ctx, result, started, outcome, err)
	}

	// render
	err = p.stage(ctx, result.BuildID, StageRender, func() error {
		return p.renderAll(examples, outputDir, pages)
	})
	if err != nil {
		return p.finish(ctx, result, started, OutcomeFailed, err)
	}

	// index
	err = p.stage(ctx, result.BuildID, StageIndex, func() error {
		return p.writeIndex(examples, outputDir, pages)
	})
	if err != nil {
		return p.finish(ctx, result, started, OutcomeFailed, err)
	}

	// linkcheck: broken links degrade, never fail.
	err = p.stage(ctx, result.BuildID, StageLinkcheck, func() error {
		broken, err := linkcheck.CheckSite(outputDir)
		if err != nil {
			return err
		}
		result.BrokenLinks = broken
		for _, b := range broken {
			slog.Warn("Broken internal link", "source", b.SourceFile, "target", b.Target, "tag", b.Tag)
		}
		p.recorder.IncBrokenLinks(len(broken))
		return nil
	})
	if err != nil {
		return p.finish(ctx, result, started, OutcomeFailed, err)
	}

	outcome := OutcomeSuccess
	for _, ex := range result.Examples {
		if ex.Failed {
			outcome = OutcomeDegraded
			break
		}
	}
	if len(result.BrokenLinks) > 0 {
		outcome = OutcomeDegraded
	}
	return p.finish(ctx, result, started, outcome, nil)
}

// stage runs fn with timing, metrics, and event bookkeeping.
func (p *Pipeline) stage(ctx context.Context, buildID, name string, fn func() error) error {
	begin := time.Now()
	err := fn()
	p.recorder.ObserveStageDuration(name, time.Since(begin))

	switch {
	case err == nil:
		p.recorder.IncStageResult(name, metrics.ResultSuccess)
	case ctx.Err() != nil:
		p.recorder.IncStageResult(name, metrics.ResultCanceled)
	default:
		p.recorder.IncStageResult(name, metrics.ResultFatal)
	}

	p.emit(ctx, buildID, state.EventStageCompleted, name, "")
	if err != nil {
		return fmt.Errorf("stage %s: %w", name, err)
	}
	slog.Debug("Stage completed", "stage", name, "duration", time.Since(begin))
	return nil
}

func (p *Pipeline) finish(ctx context.Context, result *Result, started time.Time, outcome string, err error) (*Result, error) {
	result.Outcome = outcome
	result.Duration = time.Since(started)
	p.recorder.ObserveBuildDuration(result.Duration)
	p.recorder.IncBuildOutcome(outcome)
	p.emit(ctx, result.BuildID, state.EventBuildFinished, "", outcome)
	slog.Info("Gallery build finished", "build_id", result.BuildID, "outcome", outcome, "duration", result.Duration)
	return result, err
}

// emit records an event in the state store and forwards it to the sink.
// Event delivery failures are logged, never fatal to the build.
func (p *Pipeline) emit(ctx context.Context, buildID, eventType, stage, outcome string) {
	event := BuildEvent{BuildID: buildID, Type: eventType, Stage: stage, Outcome: outcome, Timestamp: time.Now()}

	if p.store != nil {
		payload, _ := json.Marshal(event)
		if err := p.store.AppendEvent(ctx, buildID, eventType, payload); err != nil {
			slog.Warn("Failed to persist build event", "type", eventType, "error", err)
		}
	}
	if p.sink != nil {
		if err := p.sink.Publish(ctx, event); err != nil {
			slog.Warn("Failed to publish build event", "type", eventType, "error", err)
		}
	}
}

// executeAll runs every registered runner with bounded parallelism, applying
// the configured retry policy per example. A failing required example aborts;
// other failures degrade their page.
func (p *Pipeline) executeAll(ctx context.Context, examples []*gallery.Example, outputDir string, incremental bool, pages map[string]*render.PageData) ([]ExampleResult, error) {
	results := make([]ExampleResult, len(examples))
	policy := p.cfg.Retry.Policy()

	concurrency := p.cfg.Examples.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(concurrency)

	for i, ex := range examples {
		pageDir := filepath.Join(outputDir, ex.Slug)
		pages[ex.Slug] = &render.PageData{Example: ex}

		runner, hasRunner := p.registry.Lookup(ex.Slug)
		if !hasRunner {
			results[i] = ExampleResult{Slug: ex.Slug}
			if err := os.MkdirAll(pageDir, 0o755); err != nil {
				return nil, err
			}
			continue
		}

		if incremental && p.unchanged(egCtx, ex) {
			results[i] = ExampleResult{Slug: ex.Slug, Skipped: true}
			p.reusePrevious(ex, pageDir, pages[ex.Slug])
			slog.Debug("Example unchanged, skipping execution", "slug", ex.Slug)
			continue
		}

		eg.Go(func() error {
			res, err := p.executeOne(egCtx, ex, runner, pageDir, policy, pages[ex.Slug])
			results[i] = res
			return err
		})
	}

	if err := eg.Wait(); err != nil {
		return results, err
	}

	// Persist hashes only after all executions settled, and never for a
	// failed example: its hash must stay stale so the next incremental
	// build re-runs it instead of skipping it as unchanged.
	if p.store != nil {
		for i, ex := range examples {
			if results[i].Failed {
				continue
			}
			if err := p.store.SetExampleHash(ctx, ex.Slug, ex.Hash); err != nil {
				slog.Warn("Failed to store example hash", "slug", ex.Slug, "error", err)
			}
		}
	}
	return results, nil
}

func (p *Pipeline) unchanged(ctx context.Context, ex *gallery.Example) bool {
	if p.store == nil {
		return false
	}
	stored, err := p.store.ExampleHash(ctx, ex.Slug)
	if err != nil {
		slog.Warn("Hash lookup failed", "slug", ex.Slug, "error", err)
		return false
	}
	return stored != "" && stored == ex.Hash
}

// reusePrevious restores captured output and artifacts from the previous
// build of an unchanged example.
func (p *Pipeline) reusePrevious(ex *gallery.Example, pageDir string, page *render.PageData) {
	if data, err := os.ReadFile(filepath.Join(pageDir, outputFile)); err == nil {
		page.Output = string(data)
	}
	page.Artifacts = listArtifacts(pageDir)
}

func (p *Pipeline) executeOne(ctx context.Context, ex *gallery.Example, runner gallery.Runner, pageDir string, policy retry.Policy, page *render.PageData) (ExampleResult, error) {
	if err := os.MkdirAll(pageDir, 0o755); err != nil {
		return ExampleResult{Slug: ex.Slug, Failed: true, Err: err}, err
	}

	begin := time.Now()
	var stdout bytes.Buffer
	err := policy.Do(ctx, func() error {
		stdout.Reset()
		return runner.Run(ctx, &stdout, pageDir)
	}, func(n int, err error) {
		p.recorder.IncStageRetry(StageExecute)
		slog.Warn("Retrying example execution", "slug", ex.Slug, "retry", n, "error", err)
	})

	p.recorder.ObserveExampleDuration(ex.Slug, time.Since(begin), err == nil)
	p.recorder.IncExampleResult(err == nil)

	if err != nil {
		page.Degraded = true
		page.FailError = err.Error()
		res := ExampleResult{Slug: ex.Slug, Executed: true, Failed: true, Err: err}
		if ex.Required {
			return res, fmt.Errorf("required example %s failed: %w", ex.Slug, err)
		}
		slog.Error("Example execution failed", "slug", ex.Slug, "error", err)
		return res, nil
	}

	page.Output = stdout.String()
	if page.Output != "" {
		if werr := os.WriteFile(filepath.Join(pageDir, outputFile), stdout.Bytes(), 0o644); werr != nil {
			slog.Warn("Failed to persist captured output", "slug", ex.Slug, "error", werr)
		}
	}
	page.Artifacts = listArtifacts(pageDir)
	return ExampleResult{Slug: ex.Slug, Executed: true}, nil
}

// listArtifacts returns page-relative artifact names, stable order.
func listArtifacts(pageDir string) []string {
	entries, err := os.ReadDir(pageDir)
	if err != nil {
		return nil
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name == outputFile || name == "index.html" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p *Pipeline) renderAll(examples []*gallery.Example, outputDir string, pages map[string]*render.PageData) error {
	for _, ex := range examples {
		page := pages[ex.Slug]
		html, err := p.renderer.Page(*page)
		if err != nil {
			return err
		}
		target := filepath.Join(outputDir, ex.Slug, "index.html")
		if err := os.WriteFile(target, html, 0o644); err != nil {
			return fmt.Errorf("write page %s: %w", target, err)
		}
	}
	return nil
}

func (p *Pipeline) writeIndex(examples []*gallery.Example, outputDir string, pages map[string]*render.PageData) error {
	entries := make([]render.IndexEntry, 0, len(examples))
	for _, ex := range examples {
		entry := render.IndexEntry{Slug: ex.Slug, Title: ex.Title, Summary: ex.Summary}
		for _, artifact := range pages[ex.Slug].Artifacts {
			if strings.EqualFold(filepath.Ext(artifact), ".png") {
				entry.Thumb = ex.Slug + "/" + artifact
				break
			}
		}
		entries = append(entries, entry)
	}

	html, err := p.renderer.Index(entries)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outputDir, "index.html"), html, 0o644)
}
