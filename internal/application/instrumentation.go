package application

import (
	"context"
	"time"

	domoutbox "github.com/Zhima-Mochi/libraryhold/internal/domain/outbox"
	"github.com/Zhima-Mochi/libraryhold/internal/observability"
	"github.com/Zhima-Mochi/libraryhold/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	SpanPrefix     = "UC."
	PublishPeer    = "outbox"
	PublishTimeout = 300 * time.Millisecond
)

// Finish closes a use case started by Instrumentation.Begin.
type Finish func(outcome, statusText string, err error, extra ...observability.Field)

// Instrumentation holds the span, RED metrics and use_case_done logging shared
// by every coordinator, worker and sweep.
type Instrumentation struct {
	// ErrorCode, when set, adds an error_code field to use_case_done.
	ErrorCode func(error) string

	log          observability.Logger
	tracer       observability.Tracer
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewInstrumentation(tel observability.Observability, service string) *Instrumentation {
	if tel == nil {
		tel = observability.Nop()
	}
	metrics := tel.Metrics()
	return &Instrumentation{
		log:          tel.Logger().With(observability.F("service", service)),
		tracer:       tel.Tracer(),
		reqCounter:   metrics.Counter(observability.MUsecaseRequests),
		durHistogram: metrics.Histogram(observability.MUsecaseDuration),
		extCounter:   metrics.Counter(observability.MExternalRequests),
		extHistogram: metrics.Histogram(observability.MExternalRequestDuration),
	}
}

// Logger is the service-scoped logger, for code running outside a use case.
func (in *Instrumentation) Logger() observability.Logger { return in.log }

// Begin opens the span "UC.<spanName>" and binds a logger carrying the use
// case, the given fields and the trace ids onto ctx.
func (in *Instrumentation) Begin(ctx context.Context, useCase, spanName string, attrs []attribute.KeyValue, fields ...observability.Field) (context.Context, observability.Logger, Finish) {
	ctx, span := in.tracer.Start(ctx, SpanPrefix+spanName,
		append([]attribute.KeyValue{attribute.String("use_case", useCase)}, attrs...)...,
	)
	fields = append([]observability.Field{observability.F("use_case", useCase)}, fields...)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	ctx, logger := logctx.Enrich(ctx, in.log, fields...)
	start := time.Now()

	return ctx, logger, func(outcome, statusText string, err error, extra ...observability.Field) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, statusText)
		} else {
			span.SetStatus(codes.Ok, statusText)
		}
		span.End()

		latency := time.Since(start).Seconds()
		in.reqCounter.Add(1,
			observability.L("use_case", useCase),
			observability.L("outcome", outcome),
		)
		in.durHistogram.Observe(latency, observability.L("use_case", useCase))

		out := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", latency),
		}
		out = append(out, extra...)
		if err != nil {
			out = append(out, observability.F("error", err.Error()))
			if in.ErrorCode != nil {
				out = append(out, observability.F("error_code", in.ErrorCode(err)))
			}
		}
		logger.Info("use_case_done", out...)
	}
}

// Publish hands event to publisher within PublishTimeout and records it as an
// external call to the outbox. A nil publisher is a no-op.
func (in *Instrumentation) Publish(ctx context.Context, publisher domoutbox.Publisher, event domoutbox.Event) error {
	if publisher == nil || event == nil {
		return nil
	}

	pubCtx, cancel := context.WithTimeout(ctx, PublishTimeout)
	start := time.Now()
	err := publisher.Publish(pubCtx, event)
	outcome := "success"
	if err != nil {
		outcome = "error"
	} else if pubCtx.Err() != nil {
		outcome = "canceled"
		err = pubCtx.Err()
	}
	cancel()

	in.extCounter.Add(1,
		observability.L("peer", PublishPeer),
		observability.L("endpoint", event.EventName()),
		observability.L("outcome", outcome),
	)
	in.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", PublishPeer),
		observability.L("endpoint", event.EventName()),
	)
	return err
}
