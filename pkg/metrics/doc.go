// Package metrics exposes the loader's Prometheus collectors through the
// controller-runtime metrics registry.
package metrics
