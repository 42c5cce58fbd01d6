package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once            sync.Once
	stageDuration   *prom.HistogramVec
	buildDuration   prom.Histogram
	stageResults    *prom.CounterVec
	buildOutcome    *prom.CounterVec
	exampleDuration *prom.HistogramVec
	exampleResults  *prom.CounterVec
	stageRetries    *prom.CounterVec
	brokenLinks     prom.Counter
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "gallerize",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual build stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"})
		pr.buildDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "gallerize",
			Name:      "build_duration_seconds",
			Help:      "Total build duration",
			Buckets:   prom.DefBuckets,
		})
		pr.stageResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "gallerize",
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"})
		pr.buildOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "gallerize",
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"})
		pr.exampleDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "gallerize",
			Name:      "example_duration_seconds",
			Help:      "Duration of individual example executions",
			Buckets:   prom.DefBuckets,
		}, []string{"example", "result"})
		pr.exampleResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "gallerize",
			Name:      "example_results_total",
			Help:      "Example execution results by success/failure",
		}, []string{"result"})
		pr.stageRetries = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "gallerize",
			Name:      "stage_retries_total",
			Help:      "Total stage retries (transient failures)",
		}, []string{"stage"})
		pr.brokenLinks = prom.NewCounter(prom.CounterOpts{
			Namespace: "gallerize",
			Name:      "broken_links_total",
			Help:      "Broken internal links found during link checking",
		})
		reg.MustRegister(pr.stageDuration, pr.buildDuration, pr.stageResults, pr.buildOutcome, pr.exampleDuration, pr.exampleResults, pr.stageRetries, pr.brokenLinks)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil || p.buildDuration == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil || p.stageResults == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome string) {
	if p == nil || p.buildOutcome == nil {
		return
	}
	p.buildOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) ObserveExampleDuration(slug string, d time.Duration, success bool) {
	if p == nil || p.exampleDuration == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.exampleDuration.WithLabelValues(slug, res).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncExampleResult(success bool) {
	if p == nil || p.exampleResults == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.exampleResults.WithLabelValues(res).Inc()
}

func (p *PrometheusRecorder) IncStageRetry(stage string) {
	if p == nil || p.stageRetries == nil {
		return
	}
	p.stageRetries.WithLabelValues(stage).Inc()
}

func (p *PrometheusRecorder) IncBrokenLinks(n int) {
	if p == nil || p.brokenLinks == nil || n <= 0 {
		return
	}
	p.brokenLinks.Add(float64(n))
}
