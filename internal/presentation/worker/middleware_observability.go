package workerpresentation

import (
	"context"
	"sort"

	domoutbox "github.com/Zhima-Mochi/libraryhold/internal/domain/outbox"
	"github.com/Zhima-Mochi/libraryhold/internal/observability"
	"github.com/Zhima-Mochi/libraryhold/internal/observability/logctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// WithEventContext injects a request-scoped logger for background executions.
// It adds trace_id/span_id from the span already on ctx, an event_id
// (generated if empty) and the caller's low-cardinality attributes such as
// "event".
func WithEventContext(
	ctx context.Context,
	base observability.Logger,
	tel observability.Observability,
	attrs map[string]string,
) context.Context {
	if base == nil && tel != nil {
		base = tel.Logger()
	}
	if base == nil {
		base = observability.NopLogger()
	}

	evtID := attrs["event_id"]
	if evtID == "" {
		evtID = uuid.NewString()
	}
	fields := []observability.Field{observability.F("event_id", evtID)}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}

	keys := make([]string, 0, len(attrs))
	for k, v := range attrs {
		if k == "event_id" || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, observability.F(k, attrs[k]))
	}

	return logctx.With(ctx, base.With(fields...))
}

// Subscriber decorates a Subscriber so every handler runs with an
// event-scoped logger on its context. Handlers stay unaware of it.
type Subscriber struct {
	next domoutbox.Subscriber
	base observability.Logger
	tel  observability.Observability
}

func NewSubscriber(next domoutbox.Subscriber, base observability.Logger, tel observability.Observability) *Subscriber {
	return &Subscriber{next: next, base: base, tel: tel}
}

func (s *Subscriber) Subscribe(eventName string, h domoutbox.Handler) {
	s.next.Subscribe(eventName, func(ctx context.Context, e domoutbox.Event) error {
		attrs := map[string]string{"event": e.EventName()}
		if id, ok := e.(domoutbox.Identified); ok {
			attrs["event_id"] = id.EventID()
		}
		return h(WithEventContext(ctx, s.base, s.tel, attrs), e)
	})
}
