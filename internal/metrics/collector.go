// Package metrics provides internal metrics collection for store
// operations.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector tracks store operation counts. A nil collector is valid and
// records nothing.
type Collector struct {
	artifactsLogged *prometheus.CounterVec
	artifactReads   *prometheus.CounterVec
	saves           *prometheus.CounterVec
	saveFailures    *prometheus.CounterVec
	promotions      prometheus.Counter
}

// NewCollector builds a collector registered against reg.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	c := &Collector{
		artifactsLogged: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "artifacts_logged_total",
				Help:      "Total number of artifacts logged to a store",
			},
			[]string{"store", "handler"},
		),
		artifactReads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "artifact_reads_total",
				Help:      "Total number of artifact payload reads",
			},
			[]string{"store", "handler"},
		),
		saves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "saves_total",
				Help:      "Total number of successful store saves",
			},
			[]string{"store"},
		),
		saveFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "save_failures_total",
				Help:      "Total number of failed store saves",
			},
			[]string{"store"},
		),
		promotions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "promotions_total",
				Help:      "Total number of artifacts promoted to a repository",
			},
		),
	}

	reg.MustRegister(c.artifactsLogged, c.artifactReads, c.saves, c.saveFailures, c.promotions)
	return c
}

var (
	defaultOnce      sync.Once
	defaultCollector *Collector
)

// Default returns the process-wide collector, registered against the
// default prometheus registerer on first use.
func Default() *Collector {
	defaultOnce.Do(func() {
		defaultCollector = NewCollector("lazyscribe", prometheus.DefaultRegisterer)
	})
	return defaultCollector
}

// ArtifactLogged records an artifact added to a store.
func (c *Collector) ArtifactLogged(store, handler string) {
	if c == nil {
		return
	}
	c.artifactsLogged.WithLabelValues(store, handler).Inc()
}

// ArtifactRead records a payload read.
func (c *Collector) ArtifactRead(store, handler string) {
	if c == nil {
		return
	}
	c.artifactReads.WithLabelValues(store, handler).Inc()
}

// SaveSucceeded records a completed save.
func (c *Collector) SaveSucceeded(store string) {
	if c == nil {
		return
	}
	c.saves.WithLabelValues(store).Inc()
}

// SaveFailed records a save that rolled back.
func (c *Collector) SaveFailed(store string) {
	if c == nil {
		return
	}
	c.saveFailures.WithLabelValues(store).Inc()
}

// Promoted records a cross-store promotion.
func (c *Collector) Promoted() {
	if c == nil {
		return
	}
	c.promotions.Inc()
}
