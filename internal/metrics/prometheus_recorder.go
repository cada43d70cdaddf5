package metrics

import (
	"context"
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "docpublisher"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	reg           *prom.Registry
	stepDuration  *prom.HistogramVec
	stepResults   *prom.CounterVec
	runDuration   prom.Histogram
	runOutcomes   *prom.CounterVec
	linksChecked  *prom.GaugeVec
	linksBroken   *prom.GaugeVec
	linksExcluded *prom.GaugeVec
	lockWait      *prom.HistogramVec
	depCache      *prom.CounterVec
	lastSuccess   prom.Gauge
}

// NewPrometheusRecorder constructs and registers the pipeline metrics on reg,
// or on a fresh registry when reg is nil.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{reg: reg}
	pr.stepDuration = prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "step_duration_seconds",
		Help:      "Duration of individual pipeline steps",
		Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"step"})
	pr.stepResults = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "step_results_total",
		Help:      "Step result counts by outcome",
	}, []string{"step", "result"})
	pr.runDuration = prom.NewHistogram(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Total pipeline run duration",
		Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 900},
	})
	pr.runOutcomes = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "run_outcomes_total",
		Help:      "Pipeline runs by final status",
	}, []string{"outcome", "release"})
	pr.linksChecked = prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "linkcheck_links_checked",
		Help:      "Links verified by the last link check",
	}, []string{"mode"})
	pr.linksBroken = prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "linkcheck_links_broken",
		Help:      "Broken links found by the last link check",
	}, []string{"mode"})
	pr.linksExcluded = prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "linkcheck_links_excluded",
		Help:      "Links skipped by the exclude policy in the last link check",
	}, []string{"mode"})
	pr.lockWait = prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "deploy_lock_wait_seconds",
		Help:      "Time spent waiting for the deploy lock",
		Buckets:   prom.DefBuckets,
	}, []string{"group"})
	pr.depCache = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "dependency_cache_total",
		Help:      "Dependency install cache lookups by package set and result",
	}, []string{"set", "result"})
	pr.lastSuccess = prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the last successful run",
	})
	reg.MustRegister(pr.stepDuration, pr.stepResults, pr.runDuration, pr.runOutcomes,
		pr.linksChecked, pr.linksBroken, pr.linksExcluded, pr.lockWait, pr.depCache, pr.lastSuccess)
	return pr
}

// Registry exposes the registry the metrics are registered on.
func (p *PrometheusRecorder) Registry() *prom.Registry { return p.reg }

func (p *PrometheusRecorder) ObserveStepDuration(step string, d time.Duration) {
	p.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStepResult(step string, result ResultLabel) {
	p.stepResults.WithLabelValues(step, string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncRunOutcome(outcome ResultLabel, release bool) {
	p.runOutcomes.WithLabelValues(string(outcome), fmt.Sprint(release)).Inc()
	if outcome == ResultSucceeded {
		p.lastSuccess.SetToCurrentTime()
	}
}

func (p *PrometheusRecorder) ObserveLinkCheck(mode string, checked, broken, excluded int) {
	p.linksChecked.WithLabelValues(mode).Set(float64(checked))
	p.linksBroken.WithLabelValues(mode).Set(float64(broken))
	p.linksExcluded.WithLabelValues(mode).Set(float64(excluded))
}

func (p *PrometheusRecorder) ObserveLockWait(group string, d time.Duration) {
	p.lockWait.WithLabelValues(group).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncDependencyCache(set string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	p.depCache.WithLabelValues(set, result).Inc()
}

// Push sends the registry to a Pushgateway under job, grouped by instance.
func (p *PrometheusRecorder) Push(ctx context.Context, url, job, instance string) error {
	pusher := push.New(url, job).Gatherer(p.reg)
	if instance != "" {
		pusher = pusher.Grouping("instance", instance)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
