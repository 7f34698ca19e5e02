// Package observability assembles the concrete Observability from a tracer, a
// logger and the instruments registered for the metric catalog.
package observability

import (
	"github.com/Zhima-Mochi/libraryhold/internal/observability"
)

// Provider is the Observability handed to coordinators, workers and adapters.
type Provider struct {
	tracer  observability.Tracer
	logger  observability.Logger
	metrics instruments
}

// instruments resolves catalog keys; a key missing from the catalog gets a
// no-op so call sites never check for nil.
type instruments struct {
	counters   map[observability.MetricKey]observability.Counter
	histograms map[observability.MetricKey]observability.Histogram
}

func (m instruments) Counter(name observability.MetricKey) observability.Counter {
	return lookup(m.counters, name, observability.NopCounter())
}

func (m instruments) Histogram(name observability.MetricKey) observability.Histogram {
	return lookup(m.histograms, name, observability.NopHistogram())
}

func lookup[V comparable](m map[observability.MetricKey]V, key observability.MetricKey, fallback V) V {
	var zero V
	if v, ok := m[key]; ok && v != zero {
		return v
	}
	return fallback
}

// New wires the provider. Nil tracer or logger fall back to no-ops.
func New(
	tracer observability.Tracer,
	logger observability.Logger,
	counters map[observability.MetricKey]observability.Counter,
	histograms map[observability.MetricKey]observability.Histogram,
) *Provider {
	if tracer == nil {
		tracer = observability.NopTracer()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Provider{
		tracer:  tracer,
		logger:  logger,
		metrics: instruments{counters: counters, histograms: histograms},
	}
}

func (p *Provider) Tracer() observability.Tracer   { return p.tracer }
func (p *Provider) Logger() observability.Logger   { return p.logger }
func (p *Provider) Metrics() observability.Metrics { return p.metrics }
