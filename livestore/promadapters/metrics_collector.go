// Package promadapters provides a Prometheus implementation of the livestore
// metrics interfaces using prometheus/client_golang.
//
// The collector creates vector instruments lazily, keyed by metric name, using
// the label keys of the first observation. Prometheus fixes the label schema
// per metric, so later observations with a different label set are dropped.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	collector := promadapters.NewMetricsCollector(registry)
//	session, err := livestore.OpenSession(engine, livestore.WithMetrics(collector))
package promadapters

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fadendb/faden-go/livestore"
)

// MetricsCollector implements livestore.MetricsCollector and
// livestore.ContextualMetricsCollector backed by a Prometheus registerer.
// Sessions record metrics from worker goroutines as well as their owner
// goroutine, so the instrument registry is safe for concurrent use.
type MetricsCollector struct {
	registerer prometheus.Registerer
	mu         sync.RWMutex
	histograms map[string]*prometheus.HistogramVec
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
}

// NewMetricsCollector creates a metrics collector that registers its
// instruments with the given registerer. A nil registerer falls back to
// prometheus.DefaultRegisterer.
func NewMetricsCollector(registerer prometheus.Registerer) *MetricsCollector {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &MetricsCollector{
		registerer: registerer,
		histograms: make(map[string]*prometheus.HistogramVec),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
	}
}

// RecordDuration records a duration measurement as a histogram observation in seconds.
func (m *MetricsCollector) RecordDuration(metricName string, duration time.Duration, labels map[string]string) {
	histogram := m.getOrCreateHistogram(metricName, labelKeys(labels))
	if histogram == nil {
		return
	}

	observer, err := histogram.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		return
	}

	observer.Observe(duration.Seconds())
}

// RecordDurationContext records a duration measurement with context.
// Prometheus observations carry no context, so this delegates to RecordDuration.
func (m *MetricsCollector) RecordDurationContext(_ context.Context, metricName string, duration time.Duration, labels map[string]string) {
	m.RecordDuration(metricName, duration, labels)
}

// IncrementCounter increments a counter metric by one.
func (m *MetricsCollector) IncrementCounter(metricName string, labels map[string]string) {
	counter := m.getOrCreateCounter(metricName, labelKeys(labels))
	if counter == nil {
		return
	}

	target, err := counter.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		return
	}

	target.Inc()
}

// IncrementCounterContext increments a counter with context.
// Prometheus observations carry no context, so this delegates to IncrementCounter.
func (m *MetricsCollector) IncrementCounterContext(_ context.Context, metricName string, labels map[string]string) {
	m.IncrementCounter(metricName, labels)
}

// RecordValue records a float64 value as a gauge.
func (m *MetricsCollector) RecordValue(metricName string, value float64, labels map[string]string) {
	gauge := m.getOrCreateGauge(metricName, labelKeys(labels))
	if gauge == nil {
		return
	}

	target, err := gauge.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		return
	}

	target.Set(value)
}

// RecordValueContext records a float64 value with context.
// Prometheus observations carry no context, so this delegates to RecordValue.
func (m *MetricsCollector) RecordValueContext(_ context.Context, metricName string, value float64, labels map[string]string) {
	m.RecordValue(metricName, value, labels)
}

// getOrCreateHistogram returns a histogram vector for the given name,
// creating and registering one on first use.
func (m *MetricsCollector) getOrCreateHistogram(name string, keys []string) *prometheus.HistogramVec {
	m.mu.RLock()
	histogram, exists := m.histograms[name]
	m.mu.RUnlock()

	if exists {
		return histogram
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if histogram, exists = m.histograms[name]; exists {
		return histogram
	}

	histogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    name,
			Help:    "Live store operation duration",
			Buckets: prometheus.DefBuckets,
		},
		keys,
	)

	registered, ok := m.register(histogram)
	if !ok {
		return nil
	}

	histogram, ok = registered.(*prometheus.HistogramVec)
	if !ok {
		return nil
	}

	m.histograms[name] = histogram

	return histogram
}

// getOrCreateCounter returns a counter vector for the given name,
// creating and registering one on first use.
func (m *MetricsCollector) getOrCreateCounter(name string, keys []string) *prometheus.CounterVec {
	m.mu.RLock()
	counter, exists := m.counters[name]
	m.mu.RUnlock()

	if exists {
		return counter
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if counter, exists = m.counters[name]; exists {
		return counter
	}

	counter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: name,
			Help: "Live store operation counter",
		},
		keys,
	)

	registered, ok := m.register(counter)
	if !ok {
		return nil
	}

	counter, ok = registered.(*prometheus.CounterVec)
	if !ok {
		return nil
	}

	m.counters[name] = counter

	return counter
}

// getOrCreateGauge returns a gauge vector for the given name,
// creating and registering one on first use.
func (m *MetricsCollector) getOrCreateGauge(name string, keys []string) *prometheus.GaugeVec {
	m.mu.RLock()
	gauge, exists := m.gauges[name]
	m.mu.RUnlock()

	if exists {
		return gauge
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if gauge, exists = m.gauges[name]; exists {
		return gauge
	}

	gauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: name,
			Help: "Live store current value",
		},
		keys,
	)

	registered, ok := m.register(gauge)
	if !ok {
		return nil
	}

	gauge, ok = registered.(*prometheus.GaugeVec)
	if !ok {
		return nil
	}

	m.gauges[name] = gauge

	return gauge
}

// register registers a collector, reusing the existing one when the
// registerer reports it was already registered.
func (m *MetricsCollector) register(collector prometheus.Collector) (prometheus.Collector, bool) {
	err := m.registerer.Register(collector)
	if err == nil {
		return collector, true
	}

	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		return already.ExistingCollector, true
	}

	return nil, false
}

// labelKeys returns the sorted label names of an observation, which fix the
// label schema of the vector created for its metric name.
func labelKeys(labels map[string]string) []string {
	if len(labels) == 0 {
		return nil
	}

	keys := make([]string, 0, len(labels))
	for key := range labels {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return keys
}

// Ensure MetricsCollector implements livestore.MetricsCollector.
var _ livestore.MetricsCollector = (*MetricsCollector)(nil)

// Ensure MetricsCollector implements livestore.ContextualMetricsCollector.
var _ livestore.ContextualMetricsCollector = (*MetricsCollector)(nil)
