/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	// Load metrics
	loadTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "harpoon_load_total",
		Help: "Total number of unit load requests by outcome",
	}, []string{"result"})

	loadDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "harpoon_load_duration_seconds",
		Help:    "Duration of unit load requests",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 100µs to ~1.6s
	}, []string{"result"})

	finalizedUnits = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "harpoon_finalized_units",
		Help: "Number of units currently held in the finalized cache",
	})

	// Content cache metrics
	contentCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "harpoon_content_cache_total",
		Help: "Content cache lookups by cache and outcome",
	}, []string{"cache", "outcome"})

	// Source read metrics
	sourceReadDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "harpoon_source_read_duration_seconds",
		Help:    "Duration of raw content reads from a source",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
	}, []string{"kind", "status"})

	// Transformer metrics
	transformTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "harpoon_transform_total",
		Help: "Total number of transformer applications",
	}, []string{"transformer"})

	registrationErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "harpoon_transformer_registration_errors_total",
		Help: "Transformers that could not be instantiated or registered",
	}, []string{"kind"})

	// Integrity metrics
	integrityWarningsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "harpoon_integrity_warnings_total",
		Help: "Package seal and entry digest warnings",
	}, []string{"reason"})
)

func init() {
	// Register loader metrics with controller-runtime's registry
	metrics.Registry.MustRegister(
		loadTotal,
		loadDuration,
		finalizedUnits,
		contentCacheTotal,
		sourceReadDuration,
		transformTotal,
		registrationErrorsTotal,
		integrityWarningsTotal,
	)
}

// RecordLoad records a load request
// result: "defined", "cached", "delegated" or "failed"
func RecordLoad(result string, durationSeconds float64) {
	loadTotal.WithLabelValues(result).Inc()
	loadDuration.WithLabelValues(result).Observe(durationSeconds)
}

// SetFinalizedUnits sets the finalized cache gauge
func SetFinalizedUnits(count int) {
	finalizedUnits.Set(float64(count))
}

// IncrementFinalizedUnits increments the finalized cache gauge
func IncrementFinalizedUnits() {
	finalizedUnits.Inc()
}

// RecordCacheHit records a hit in the "positive" or "negative" content cache
func RecordCacheHit(cache string) {
	contentCacheTotal.WithLabelValues(cache, "hit").Inc()
}

// RecordCacheMiss records a lookup that fell through to the sources
func RecordCacheMiss() {
	contentCacheTotal.WithLabelValues("all", "miss").Inc()
}

// RecordSourceRead records a read from a source of the given kind
func RecordSourceRead(kind, status string, durationSeconds float64) {
	sourceReadDuration.WithLabelValues(kind, status).Observe(durationSeconds)
}

// RecordTransform records one transformer application
func RecordTransform(transformer string) {
	transformTotal.WithLabelValues(transformer).Inc()
}

// RecordRegistrationError records a failed registration
// kind: "pipeline", "remapper" or "explicit"
func RecordRegistrationError(kind string) {
	registrationErrorsTotal.WithLabelValues(kind).Inc()
}

// RecordIntegrityWarning records a seal or digest warning
func RecordIntegrityWarning(reason string) {
	integrityWarningsTotal.WithLabelValues(reason).Inc()
}
