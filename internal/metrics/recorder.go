// Package metrics defines observability hooks for the gallery build pipeline.
package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultWarning  ResultLabel = "warning"
	ResultFatal    ResultLabel = "fatal"
	ResultCanceled ResultLabel = "canceled"
)

// Recorder defines observability hooks for build and stage metrics.
// Implementations may forward to Prometheus or anything else. All methods
// must be safe on the zero NoopRecorder, allowing optional injection.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	ObserveBuildDuration(d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	IncBuildOutcome(outcome string) // success|degraded|failed|canceled
	ObserveExampleDuration(slug string, d time.Duration, success bool)
	IncExampleResult(success bool)
	IncStageRetry(stage string)
	IncBrokenLinks(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration)          {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)                  {}
func (NoopRecorder) IncStageResult(string, ResultLabel)                  {}
func (NoopRecorder) IncBuildOutcome(string)                              {}
func (NoopRecorder) ObserveExampleDuration(string, time.Duration, bool)  {}
func (NoopRecorder) IncExampleResult(bool)                               {}
func (NoopRecorder) IncStageRetry(string)                                {}
func (NoopRecorder) IncBrokenLinks(int)                                  {}
