package observability

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/aretw0/pageflow/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// Metrics exports engine activity as Prometheus collectors.
type Metrics struct {
	registry       *prometheus.Registry
	stages         *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	listenerErrors *prometheus.CounterVec
	runErrors      *prometheus.CounterVec
	merges         prometheus.Counter
	mergeNodes     *prometheus.CounterVec
	mergeDuration  prometheus.Histogram
}

// NewMetrics creates the collectors on a dedicated registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pageflow_stages_total",
				Help: "Total number of stages fired",
			},
			[]string{"stage"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pageflow_stage_duration_seconds",
				Help:    "Time spent draining a stage's listeners",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
			[]string{"stage"},
		),
		listenerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pageflow_listener_errors_total",
				Help: "Total number of failed listeners",
			},
			[]string{"stage"},
		),
		runErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pageflow_run_errors_total",
				Help: "Total number of failed runs",
			},
			[]string{"stage", "handled"},
		),
		merges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pageflow_merges_total",
			Help: "Total number of document merges",
		}),
		mergeNodes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pageflow_merge_nodes_total",
				Help: "Head nodes touched by merges",
			},
			[]string{"op"},
		),
		mergeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "pageflow_merge_duration_seconds",
			Help: "Duration of document merges",
		}),
	}
	m.registry.MustRegister(
		m.stages,
		m.stageDuration,
		m.listenerErrors,
		m.runErrors,
		m.merges,
		m.mergeNodes,
		m.mergeDuration,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collected metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteText writes the current values in the Prometheus text format.
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// Hooks records engine events into the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStageLeave: func(_ context.Context, e *domain.StageEvent) {
			stage := string(e.Stage)
			m.stages.WithLabelValues(stage).Inc()
			m.stageDuration.WithLabelValues(stage).Observe(e.Duration.Seconds())
		},
		OnListenerError: func(_ context.Context, e *domain.ErrorEvent) {
			m.listenerErrors.WithLabelValues(string(e.Stage)).Inc()
		},
		OnRunError: func(_ context.Context, e *domain.ErrorEvent) {
			if errors.Is(e.Err, context.Canceled) {
				return
			}
			handled := "false"
			if e.Handled {
				handled = "true"
			}
			m.runErrors.WithLabelValues(string(e.Stage), handled).Inc()
		},
		OnMerge: func(_ context.Context, e *domain.MergeEvent) {
			m.merges.Inc()
			m.mergeNodes.WithLabelValues("inserted").Add(float64(e.Inserted))
			m.mergeNodes.WithLabelValues("substituted").Add(float64(e.Substituted))
			m.mergeNodes.WithLabelValues("deleted").Add(float64(e.Deleted))
			m.mergeDuration.Observe(e.Duration.Seconds())
		},
	}
}
