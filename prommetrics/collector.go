// Package prommetrics exports saga execution metrics to Prometheus.
package prommetrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fortressi/sagachain"
	"github.com/prometheus/client_golang/prometheus"
)

// Config holds configuration for the Prometheus collector.
type Config struct {
	// Namespace is the Prometheus namespace for all metrics (default: "sagachain")
	Namespace string

	// Registerer receives the metrics. If nil, a new registry is created.
	Registerer prometheus.Registerer

	// DurationBuckets defines the buckets for duration histograms.
	DurationBuckets []float64
}

// DefaultConfig returns a default configuration for the collector.
func DefaultConfig() *Config {
	return &Config{
		Namespace:       "sagachain",
		Registerer:      prometheus.NewRegistry(),
		DurationBuckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0, 30.0, 60.0},
	}
}

// Collector is a sagachain.Observer that records executions as Prometheus metrics.
type Collector struct {
	stepActedTotal       *prometheus.CounterVec
	stepCompensatedTotal *prometheus.CounterVec
	stepDuration         *prometheus.HistogramVec
	sagaFinishedTotal    *prometheus.CounterVec
	sagaDuration         *prometheus.HistogramVec
}

var _ sagachain.Observer = (*Collector)(nil)

// NewCollector creates the collector and registers its metrics.
func NewCollector(config *Config) (*Collector, error) {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.Namespace == "" {
		config.Namespace = defaults.Namespace
	}
	if config.Registerer == nil {
		config.Registerer = defaults.Registerer
	}
	if config.DurationBuckets == nil {
		config.DurationBuckets = defaults.DurationBuckets
	}

	c := &Collector{
		stepActedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "step_acted_total",
				Help:      "Total number of step actions run",
			},
			[]string{"saga", "step", "success"},
		),
		stepCompensatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "step_compensated_total",
				Help:      "Total number of step compensations run",
			},
			[]string{"saga", "step", "success"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of step actions and compensations in seconds",
				Buckets:   config.DurationBuckets,
			},
			[]string{"saga", "step", "phase"},
		),
		sagaFinishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "saga_finished_total",
				Help:      "Total number of saga executions by outcome",
			},
			[]string{"saga", "outcome", "compensated"},
		),
		sagaDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Name:      "saga_duration_seconds",
				Help:      "Duration of saga executions in seconds",
				Buckets:   config.DurationBuckets,
			},
			[]string{"saga", "outcome"},
		),
	}

	metrics := []prometheus.Collector{
		c.stepActedTotal,
		c.stepCompensatedTotal,
		c.stepDuration,
		c.sagaFinishedTotal,
		c.sagaDuration,
	}
	for _, metric := range metrics {
		if err := config.Registerer.Register(metric); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return c, nil
}

// StepActed implements sagachain.Observer.
func (c *Collector) StepActed(saga sagachain.SagaName, step sagachain.StepName, err error, d time.Duration) {
	c.stepActedTotal.WithLabelValues(string(saga), string(step), strconv.FormatBool(err == nil)).Inc()
	c.stepDuration.WithLabelValues(string(saga), string(step), "act").Observe(d.Seconds())
}

// StepCompensated implements sagachain.Observer.
func (c *Collector) StepCompensated(saga sagachain.SagaName, step sagachain.StepName, err error, d time.Duration) {
	c.stepCompensatedTotal.WithLabelValues(string(saga), string(step), strconv.FormatBool(err == nil)).Inc()
	c.stepDuration.WithLabelValues(string(saga), string(step), "compensate").Observe(d.Seconds())
}

// SagaFinished implements sagachain.Observer.
func (c *Collector) SagaFinished(saga sagachain.SagaName, result *sagachain.Result) {
	outcome := result.Outcome.String()
	compensated := "none"
	if result.Outcome == sagachain.OutcomeFailed {
		compensated = strconv.FormatBool(result.CompensationsSucceeded)
	}
	c.sagaFinishedTotal.WithLabelValues(string(saga), outcome, compensated).Inc()
	c.sagaDuration.WithLabelValues(string(saga), outcome).Observe(result.Duration().Seconds())
}
