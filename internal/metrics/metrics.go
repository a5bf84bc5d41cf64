// Package metrics exposes run counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the collectors for one run. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	ItemsTotal           *prometheus.CounterVec
	ClassifierCallsTotal *prometheus.CounterVec
	ItemDuration         prometheus.Histogram
	StoreEntries         *prometheus.GaugeVec
	BackupsTotal         *prometheus.CounterVec
}

// New registers all collectors on a private registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		ItemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thumbsieve_items_total",
			Help: "Candidate items processed, by terminal outcome.",
		}, []string{"outcome"}),
		ClassifierCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thumbsieve_classifier_calls_total",
			Help: "Classifier questions asked, by purpose and result.",
		}, []string{"purpose", "result"}),
		ItemDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "thumbsieve_item_duration_seconds",
			Help:    "Wall time from download to terminal outcome.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 15, 30, 60},
		}),
		StoreEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "thumbsieve_store_entries",
			Help: "Entries in the fingerprint store, by index.",
		}, []string{"index"}),
		BackupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thumbsieve_backups_total",
			Help: "Thumbnail backup uploads, by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.ItemsTotal,
		m.ClassifierCallsTotal,
		m.ItemDuration,
		m.StoreEntries,
		m.BackupsTotal,
		collectors.NewGoCollector(),
	)
	return m
}

// ObserveItem counts one terminal outcome
func (m *Metrics) ObserveItem(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ItemsTotal.WithLabelValues(outcome).Inc()
	m.ItemDuration.Observe(d.Seconds())
}

// ObserveClassifierCall counts one classifier question; result is "ok" or an error kind
func (m *Metrics) ObserveClassifierCall(purpose, result string) {
	if m == nil {
		return
	}
	m.ClassifierCallsTotal.WithLabelValues(purpose, result).Inc()
}

// SetStoreEntries records the current size of both store indices
func (m *Metrics) SetStoreEntries(hashes, fingerprints int) {
	if m == nil {
		return
	}
	m.StoreEntries.WithLabelValues("hashes").Set(float64(hashes))
	m.StoreEntries.WithLabelValues("fingerprints").Set(float64(fingerprints))
}

// ObserveBackup counts one backup attempt; result is uploaded, skipped or failed
func (m *Metrics) ObserveBackup(result string) {
	if m == nil {
		return
	}
	m.BackupsTotal.WithLabelValues(result).Inc()
}
