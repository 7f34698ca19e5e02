package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/libraryhold/internal/application"
	dominv "github.com/Zhima-Mochi/libraryhold/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/libraryhold/internal/domain/outbox"
	"github.com/Zhima-Mochi/libraryhold/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	inventoryService = "inventory-service"

	useCaseCheck   = "inventory.check_availability"
	useCaseReserve = "inventory.reserve"
	useCaseRelease = "inventory.release"
)

// Coordinator is the only component that mutates item availability. Each call
// touches exactly one item and relies on the store for atomicity.
type Coordinator struct {
	repo      dominv.Repository
	publisher domoutbox.Publisher
	inst      *application.Instrumentation
}

func NewCoordinator(repo dominv.Repository, publisher domoutbox.Publisher, tel observability.Observability) *Coordinator {
	return &Coordinator{
		repo:      repo,
		publisher: publisher,
		inst:      application.NewInstrumentation(tel, inventoryService),
	}
}

// CheckAvailability reports whether the item can be reserved right now.
// Unknown items are reported as unavailable rather than as an error.
func (c *Coordinator) CheckAvailability(ctx context.Context, itemID int64) (available bool, err error) {
	ctx, done := c.begin(ctx, useCaseCheck, "CheckAvailability", itemID)
	outcome, statusText := "success", "OK"
	defer func() { done(outcome, statusText, err, observability.F("available", available)) }()

	item, err := c.repo.Get(ctx, itemID)
	switch {
	case errors.Is(err, dominv.ErrNotFound):
		statusText = "NOT_FOUND"
		return false, nil
	case err != nil:
		outcome, statusText = "error", "STORE_FAILED"
		return false, fmt.Errorf("inventory: check availability: %w", err)
	}
	return item.Available, nil
}

// Reserve flips the item to unavailable if and only if it is available.
func (c *Coordinator) Reserve(ctx context.Context, itemID int64) (out dominv.Outcome, err error) {
	ctx, done := c.begin(ctx, useCaseReserve, "Reserve", itemID)
	outcome, statusText := "success", "OK"
	var publishErr error
	defer func() {
		fields := []observability.Field{observability.F("reason", out.Reason)}
		if publishErr != nil {
			fields = append(fields, observability.F("event_error", publishErr.Error()))
		}
		done(outcome, statusText, err, fields...)
	}()

	out, err = dominv.OutcomeFromError(c.repo.ReserveIfAvailable(ctx, itemID))
	if err != nil {
		outcome, statusText = "error", "STORE_FAILED"
		return dominv.Outcome{}, fmt.Errorf("inventory: reserve: %w", err)
	}
	if !out.Success {
		outcome, statusText = "rejected", statusFromReason(out.Reason)
		return out, nil
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.AddEvent("inventory.item_reserved", trace.WithAttributes(attribute.Int64("item.id", itemID)))
	}
	// The item is reserved; a lost event must not turn that into a failure.
	publishErr = c.inst.Publish(ctx, c.publisher, dominv.NewItemReservedEvent(itemID))
	return out, nil
}

// Release marks the item available regardless of its current state, so a
// repeated release is harmless.
func (c *Coordinator) Release(ctx context.Context, itemID int64) (out dominv.Outcome, err error) {
	ctx, done := c.begin(ctx, useCaseRelease, "Release", itemID)
	outcome, statusText := "success", "OK"
	var publishErr error
	defer func() {
		fields := []observability.Field{observability.F("reason", out.Reason)}
		if publishErr != nil {
			fields = append(fields, observability.F("event_error", publishErr.Error()))
		}
		done(outcome, statusText, err, fields...)
	}()

	out, err = dominv.OutcomeFromError(c.repo.SetAvailable(ctx, itemID, true))
	if err != nil {
		outcome, statusText = "error", "STORE_FAILED"
		return dominv.Outcome{}, fmt.Errorf("inventory: release: %w", err)
	}
	if !out.Success {
		outcome, statusText = "rejected", statusFromReason(out.Reason)
		return out, nil
	}

	publishErr = c.inst.Publish(ctx, c.publisher, dominv.NewItemReleasedEvent(itemID))
	return out, nil
}

// begin starts one single-item use case.
func (c *Coordinator) begin(ctx context.Context, useCase, spanName string, itemID int64) (context.Context, application.Finish) {
	ctx, _, finish := c.inst.Begin(ctx, useCase, spanName,
		[]attribute.KeyValue{attribute.Int64("item.id", itemID)},
		observability.F("item_id", itemID),
	)
	return ctx, finish
}

func statusFromReason(reason string) string {
	switch reason {
	case dominv.ReasonNotFound:
		return "NOT_FOUND"
	case dominv.ReasonAlreadyReserved:
		return "ALREADY_RESERVED"
	default:
		return "REJECTED"
	}
}
