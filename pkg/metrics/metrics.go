// Package metrics registers the Prometheus counters and histograms
// emitted at each pipeline stage boundary (C10/C12), using
// github.com/prometheus/client_golang the way every service in the
// pack's dependency surface that carries it does: promauto-registered
// vectors against a private registry, exposed read-only to callers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry bundles every metric the pipeline emits. Built once at
// startup and passed to pkg/queue's Pipeline (its gatherer to pkg/api)
// as an explicit collaborator rather than a package-level global, so
// tests can register a fresh one per run.
type Registry struct {
	reg *prometheus.Registry

	StageDuration  *prometheus.HistogramVec
	StageOutcomes  *prometheus.CounterVec
	QueueDepth     prometheus.Gauge
	WorkersActive  prometheus.Gauge
	JobsClaimed    prometheus.Counter
	JobsRequeued   prometheus.Counter
	DuplicatesLinked prometheus.Counter
	DMsSent        prometheus.Counter
	BroadcastsSent prometheus.Counter
}

// New builds a Registry backed by a private prometheus.Registry (not the
// global DefaultRegisterer), so multiple instances can coexist in tests.
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "aggregator",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each process_one pipeline stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		StageOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aggregator",
			Name:      "stage_outcomes_total",
			Help:      "Count of pipeline stage outcomes by stage and outcome.",
		}, []string{"stage", "outcome"}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "aggregator",
			Name:      "queue_depth",
			Help:      "Number of pending extraction jobs.",
		}),
		WorkersActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "aggregator",
			Name:      "workers_active",
			Help:      "Number of workers currently processing a job.",
		}),
		JobsClaimed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "aggregator",
			Name:      "jobs_claimed_total",
			Help:      "Total extraction jobs claimed by any worker.",
		}),
		JobsRequeued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "aggregator",
			Name:      "jobs_requeued_total",
			Help:      "Total jobs returned to pending by the stale-requeue sweep.",
		}),
		DuplicatesLinked: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "aggregator",
			Name:      "duplicates_linked_total",
			Help:      "Total assignments linked into a duplicate group.",
		}),
		DMsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "aggregator",
			Name:      "dms_sent_total",
			Help:      "Total tutor DMs dispatched by delivery fanout.",
		}),
		BroadcastsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "aggregator",
			Name:      "broadcasts_sent_total",
			Help:      "Total broadcast posts sent or edited.",
		}),
	}
}

// Gatherer exposes the underlying registry for the /metrics HTTP handler.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// ObserveStage records one stage-boundary outcome: a duration observation
// plus an outcome counter increment.
func (r *Registry) ObserveStage(stage, outcome string, seconds float64) {
	r.StageDuration.WithLabelValues(stage).Observe(seconds)
	r.StageOutcomes.WithLabelValues(stage, outcome).Inc()
}
