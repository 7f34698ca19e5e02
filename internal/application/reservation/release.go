package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	domres "github.com/Zhima-Mochi/libraryhold/internal/domain/reservation"
	"github.com/Zhima-Mochi/libraryhold/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

// Release frees the reserved item and then cancels the ledger row. The row
// stays active when the inventory could not be freed.
func (c *Coordinator) Release(ctx context.Context, cmd ReleaseCommand) (res *domres.Reservation, err error) {
	ctx, logger, finish := c.inst.Begin(ctx, useCaseRelease, "Release",
		[]attribute.KeyValue{attribute.String("reservation.id", cmd.ReservationID)},
		observability.F("reservation_id", cmd.ReservationID),
	)
	outcome, statusText := "success", "OK"
	defer func() {
		var fields []observability.Field
		if res != nil {
			fields = append(fields,
				observability.F("holder_id", res.HolderID),
				observability.F("item_id", res.ItemID),
			)
		}
		finish(outcome, statusText, err, fields...)
	}()

	res, err = c.ledger.Get(ctx, cmd.ReservationID)
	if errors.Is(err, domres.ErrNotFound) {
		outcome, statusText = "rejected", "NOT_FOUND"
		return nil, ErrNotFound
	}
	if err != nil {
		outcome, statusText = "error", "LEDGER_READ_FAILED"
		return nil, fmt.Errorf("%w: ledger: %w", ErrInternal, err)
	}

	callCtx, cancel := c.callCtx(ctx)
	released, err := c.inventory.Release(callCtx, res.ItemID)
	cancel()
	if err != nil {
		outcome, statusText = "error", "RELEASE_FAILED"
		return res, fmt.Errorf("%w: release: %w", ErrInventory, err)
	}
	if !released.Success {
		outcome, statusText = "error", "RELEASE_REJECTED"
		return res, fmt.Errorf("%w: release rejected: %s", ErrInventory, released.Reason)
	}

	if err = c.ledger.Cancel(ctx, res.ID); err != nil {
		if errors.Is(err, domres.ErrNotFound) {
			// A concurrent release cancelled the row first.
			outcome, statusText = "rejected", "NOT_FOUND"
			return res, ErrNotFound
		}
		cancelErr := err
		outcome, statusText = "error", "LEDGER_CANCEL_FAILED"
		c.reportOrphan(ctx, logger, domres.OrphanDetectedEvent{
			Kind:          domres.OrphanAvailableWithActiveReservation,
			ItemID:        res.ItemID,
			HolderID:      res.HolderID,
			ReservationID: res.ID,
			Cause:         cancelErr.Error(),
		})
		return res, fmt.Errorf("%w: ledger cancel: %w", ErrInternal, cancelErr)
	}

	// Local copy only; the ledger already holds the transition.
	_ = res.Cancel(time.Now())
	if pubErr := c.inst.Publish(ctx, c.publisher, domres.NewCancelledEvent(res)); pubErr != nil {
		logger.Warn("reservation_event_publish_failed", observability.Err(pubErr))
	}
	return res, nil
}
