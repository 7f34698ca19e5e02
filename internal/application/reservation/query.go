package reservation

import (
	"context"
	"fmt"

	domres "github.com/Zhima-Mochi/libraryhold/internal/domain/reservation"
	"github.com/Zhima-Mochi/libraryhold/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

// CheckAvailability forwards to the inventory service under the call timeout.
func (c *Coordinator) CheckAvailability(ctx context.Context, itemID int64) (available bool, err error) {
	ctx, _, finish := c.inst.Begin(ctx, useCaseCheck, "CheckAvailability",
		[]attribute.KeyValue{attribute.Int64("item.id", itemID)},
		observability.F("item_id", itemID),
	)
	outcome, statusText := "success", "OK"
	defer func() { finish(outcome, statusText, err, observability.F("available", available)) }()

	available, err = c.checkAvailability(ctx, itemID)
	if err != nil {
		outcome, statusText = "error", "CHECK_FAILED"
		return false, fmt.Errorf("%w: check availability: %w", ErrInventory, err)
	}
	return available, nil
}

func (c *Coordinator) checkAvailability(ctx context.Context, itemID int64) (bool, error) {
	callCtx, cancel := c.callCtx(ctx)
	defer cancel()
	return c.inventory.CheckAvailability(callCtx, itemID)
}

// ListByHolder returns every reservation of the holder, cancelled ones included.
func (c *Coordinator) ListByHolder(ctx context.Context, holderID int64) (list []domres.Reservation, err error) {
	ctx, _, finish := c.inst.Begin(ctx, useCaseListByHolder, "ListByHolder",
		[]attribute.KeyValue{attribute.Int64("holder.id", holderID)},
		observability.F("holder_id", holderID),
	)
	outcome, statusText := "success", "OK"
	defer func() { finish(outcome, statusText, err, observability.F("count", len(list))) }()

	list, err = c.ledger.ListByHolder(ctx, holderID)
	if err != nil {
		outcome, statusText = "error", "LEDGER_READ_FAILED"
		return nil, fmt.Errorf("%w: list by holder: %w", ErrInternal, err)
	}
	return list, nil
}
