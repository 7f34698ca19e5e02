package statistics

import (
	"context"

	"github.com/Zhima-Mochi/libraryhold/internal/application"
	domoutbox "github.com/Zhima-Mochi/libraryhold/internal/domain/outbox"
	domres "github.com/Zhima-Mochi/libraryhold/internal/domain/reservation"
	"github.com/Zhima-Mochi/libraryhold/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	workerService = "statistics_worker"
	useCaseRecord = "statistics.worker.reservation_created"
)

// Worker feeds the statistics service from reservation.created events.
type Worker struct {
	subscriber domoutbox.Subscriber
	service    *Service
	inst       *application.Instrumentation
}

func NewWorker(subscriber domoutbox.Subscriber, service *Service, tel observability.Observability) *Worker {
	return &Worker{
		subscriber: subscriber,
		service:    service,
		inst:       application.NewInstrumentation(tel, workerService),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.service == nil {
		return
	}
	w.subscriber.Subscribe(domres.CreatedEvent{}.EventName(), w.handleReservationCreated)
}

// Stop drops the counters; a restarted worker begins from zero.
func (w *Worker) Stop() {
	if w.service != nil {
		w.service.Reset()
	}
}

func (w *Worker) handleReservationCreated(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(domres.CreatedEvent)
	if !ok {
		return nil
	}

	ctx, _, finish := w.inst.Begin(ctx, useCaseRecord, "ReservationCreated",
		[]attribute.KeyValue{
			attribute.String("event", e.EventName()),
			attribute.Int64("item.id", evt.ItemID),
		},
		observability.F("item_id", evt.ItemID),
		observability.F("holder_id", evt.HolderID),
	)
	w.service.Record(ctx, evt.ItemID)
	finish("success", "OK", nil)
	return nil
}
