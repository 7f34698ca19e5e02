package reservation

import (
	"context"
	"errors"
	"fmt"

	dominv "github.com/Zhima-Mochi/libraryhold/internal/domain/inventory"
	domres "github.com/Zhima-Mochi/libraryhold/internal/domain/reservation"
	"github.com/Zhima-Mochi/libraryhold/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Reserve gives the item to the holder. On success the item is unavailable and
// an active ledger row exists; no partial state is ever returned as success.
func (c *Coordinator) Reserve(ctx context.Context, cmd ReserveCommand) (res *domres.Reservation, err error) {
	ctx, logger, finish := c.inst.Begin(ctx, useCaseReserve, "Reserve",
		[]attribute.KeyValue{
			attribute.Int64("holder.id", cmd.HolderID),
			attribute.Int64("item.id", cmd.ItemID),
		},
		observability.F("holder_id", cmd.HolderID),
		observability.F("item_id", cmd.ItemID),
	)
	outcome, statusText := "success", "OK"
	var compensated bool
	defer func() {
		fields := []observability.Field{observability.F("compensated", compensated)}
		if res != nil {
			fields = append(fields, observability.F("reservation_id", res.ID))
		}
		finish(outcome, statusText, err, fields...)
	}()

	exists, err := c.holders.Exists(ctx, cmd.HolderID)
	if err != nil {
		outcome, statusText = "error", "HOLDER_LOOKUP_FAILED"
		return nil, fmt.Errorf("%w: holder lookup: %w", ErrInternal, err)
	}
	if !exists {
		outcome, statusText = "rejected", "HOLDER_NOT_FOUND"
		return nil, ErrHolderNotFound
	}

	if !c.opts.SkipPrecheck {
		available, err := c.checkAvailability(ctx, cmd.ItemID)
		if err != nil {
			outcome, statusText = "error", "PRECHECK_FAILED"
			return nil, fmt.Errorf("%w: availability pre-check: %w", ErrInternal, err)
		}
		if !available {
			outcome, statusText = "rejected", "ITEM_UNAVAILABLE"
			return nil, ErrItemUnavailable
		}
	}

	callCtx, cancel := c.callCtx(ctx)
	reserved, err := c.inventory.Reserve(callCtx, cmd.ItemID)
	cancel()
	if err != nil {
		// The store may or may not have applied the update. Releasing here
		// could free an item another holder won, so the reconciliation sweep
		// owns this case; it is still reported so it is visible before then.
		outcome, statusText = "error", "RESERVE_OUTCOME_UNKNOWN"
		c.reportOrphan(ctx, logger, domres.OrphanDetectedEvent{
			Kind:     domres.OrphanReserveOutcomeUnknown,
			ItemID:   cmd.ItemID,
			HolderID: cmd.HolderID,
			Cause:    err.Error(),
		})
		return nil, fmt.Errorf("%w: reserve: %w", ErrInternal, err)
	}
	if !reserved.Success {
		if reserved.Reason == dominv.ReasonNotFound {
			outcome, statusText = "rejected", "ITEM_UNAVAILABLE"
			return nil, fmt.Errorf("%w: %s", ErrItemUnavailable, reserved.Reason)
		}
		outcome, statusText = "rejected", "RESERVE_DENIED"
		return nil, fmt.Errorf("%w: %s", ErrReservationDenied, reserved.Reason)
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.AddEvent("inventory.reserved", trace.WithAttributes(attribute.Int64("item.id", cmd.ItemID)))
	}

	// The item is now held for this holder. From here on the caller going
	// away must not abort the workflow, so the rest runs detached and bounded.
	detached := context.WithoutCancel(ctx)
	ledgerCtx, cancelLedger := c.callCtx(detached)
	res, err = c.ledger.Create(ledgerCtx, cmd.HolderID, cmd.ItemID)
	cancelLedger()
	if err != nil {
		ledgerErr := err
		outcome, statusText = "error", "LEDGER_WRITE_FAILED"
		compensated = true
		if compErr := c.compensate(detached, logger, cmd, ledgerErr); compErr != nil {
			statusText = "ORPHANED"
			return nil, fmt.Errorf("%w: %w: ledger: %w; release: %w", ErrInternal, ErrOrphanedReservation, ledgerErr, compErr)
		}
		return nil, fmt.Errorf("%w: ledger: %w", ErrInternal, ledgerErr)
	}

	if pubErr := c.inst.Publish(detached, c.publisher, domres.NewCreatedEvent(res)); pubErr != nil {
		logger.Warn("reservation_event_publish_failed", observability.Err(pubErr))
	}
	return res, nil
}

// compensate undoes a successful inventory reserve exactly once. It runs
// detached from the caller's cancellation with its own timeout.
func (c *Coordinator) compensate(ctx context.Context, logger observability.Logger, cmd ReserveCommand, cause error) error {
	compCtx, cancel := c.callCtx(context.WithoutCancel(ctx))
	defer cancel()

	out, err := c.inventory.Release(compCtx, cmd.ItemID)
	if err == nil && !out.Success {
		err = fmt.Errorf("release rejected: %s", out.Reason)
	}
	if err == nil {
		c.compensations.Add(1, observability.L("outcome", "success"))
		logger.Warn("reservation_compensated",
			observability.F("cause", cause),
		)
		return nil
	}

	c.compensations.Add(1, observability.L("outcome", "failed"))
	c.reportOrphan(ctx, logger, domres.OrphanDetectedEvent{
		Kind:     domres.OrphanUnavailableWithoutReservation,
		ItemID:   cmd.ItemID,
		HolderID: cmd.HolderID,
		Cause:    errors.Join(cause, err).Error(),
	})
	return err
}
