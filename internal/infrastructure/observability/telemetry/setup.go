// Package telemetry assembles the process-wide observability stack: the zap
// logger, the OTel tracer provider and the Prometheus instruments.
package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	infraobs "github.com/Zhima-Mochi/libraryhold/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/libraryhold/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/libraryhold/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/libraryhold/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/libraryhold/internal/observability"
	"github.com/Zhima-Mochi/libraryhold/internal/pkg/logging"
)

// Stack is the assembled telemetry for one process.
type Stack struct {
	Obs      observability.Observability
	Logger   zaplogger.Logger
	Registry *prometheus.Registry

	// System logs process lifecycle events that have no request trace.
	System observability.Logger

	shutdownTracer func(context.Context) error
}

// Setup builds the logger, installs the global tracer provider and registers
// the metric catalog on a fresh registry.
func Setup(service, env string) (*Stack, error) {
	base, err := logging.NewLogger(logging.OptionsFromEnv(service, env))
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(base)
	logger := zaplogger.New(base)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	counters, histograms := prometrics.Instruments(prometrics.New("", "", reg), observability.Catalog())

	shutdown := oteltrace.InstallProvider(service)

	return &Stack{
		Obs:            infraobs.New(oteltrace.New(service), logger, counters, histograms),
		Logger:         logger,
		System:         zaplogger.New(logging.WithTrace(base, logging.SystemTraceID, logging.SystemSpanID)),
		Registry:       reg,
		shutdownTracer: shutdown,
	}, nil
}

// MetricsHandler serves the stack's registry in the Prometheus text format.
func (s *Stack) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{Registry: s.Registry})
}

// Shutdown flushes spans and buffered log entries.
func (s *Stack) Shutdown(ctx context.Context) error {
	var err error
	if s.shutdownTracer != nil {
		err = s.shutdownTracer(ctx)
	}
	_ = s.Logger.Sync()
	return err
}
