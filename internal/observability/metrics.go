// Package observability exposes pipeline stage metrics and tracing setup.
package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stage outcomes recorded by Collector.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeCanceled = "canceled"
)

// Collector bundles the Prometheus metrics recorded while materialising a
// pipeline graph.
type Collector struct {
	gatherer prometheus.Gatherer

	StageDuration  *prometheus.HistogramVec
	StageRuns      *prometheus.CounterVec
	FallbackPixels prometheus.Counter
}

// NewCollector registers the stage metrics against reg, defaulting to the
// global Prometheus registry when nil. Registering twice against the same
// registry returns the existing collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reefcomp_stage_duration_seconds",
		Help:    "Pipeline stage materialisation time in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	}, []string{"stage"}), "reefcomp_stage_duration_seconds")
	if err != nil {
		return nil, err
	}

	runs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reefcomp_stage_runs_total",
		Help: "Pipeline stage executions, labeled by stage and outcome.",
	}, []string{"stage", "outcome"}), "reefcomp_stage_runs_total")
	if err != nil {
		return nil, err
	}

	fallback, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reefcomp_fallback_pixels_total",
		Help: "Composite pixels filled from the unmasked mosaic because every scene was masked.",
	}), "reefcomp_fallback_pixels_total")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:       gatherer,
		StageDuration:  durations,
		StageRuns:      runs,
		FallbackPixels: fallback,
	}, nil
}

// ObserveStage records one stage execution. A nil collector is a no-op.
func (c *Collector) ObserveStage(stage, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.StageRuns.WithLabelValues(stage, outcome).Inc()
	c.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// AddFallbackPixels counts mosaic fallback pixels.
func (c *Collector) AddFallbackPixels(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.FallbackPixels.Add(float64(n))
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
