package reservation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	domres "github.com/Zhima-Mochi/libraryhold/internal/domain/reservation"
	"github.com/Zhima-Mochi/libraryhold/internal/observability"
)

func TestReserve_ThenCheckIsUnavailable(t *testing.T) {
	ctx := context.Background()
	h := newHarness(3)
	c := h.coordinator()

	res, err := c.Reserve(ctx, ReserveCommand{HolderID: 1, ItemID: 3})
	require.NoError(t, err)
	assert.Equal(t, domres.StatusActive, res.Status)

	available, err := c.CheckAvailability(ctx, 3)
	require.NoError(t, err)
	assert.False(t, available)

	_, err = c.Release(ctx, ReleaseCommand{ReservationID: res.ID})
	require.NoError(t, err)

	available, err = c.CheckAvailability(ctx, 3)
	require.NoError(t, err)
	assert.True(t, available)
	assert.Len(t, h.publisher.byName("reservation.created"), 1)
	assert.Len(t, h.publisher.byName("reservation.cancelled"), 1)
}

func TestReserve_ContendedItemScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(7)
	h.opts.SkipPrecheck = true
	c := h.coordinator()

	a, err := c.Reserve(ctx, ReserveCommand{HolderID: 1, ItemID: 7})
	require.NoError(t, err)
	require.Len(t, h.activeRows(), 1)

	_, err = c.Reserve(ctx, ReserveCommand{HolderID: 2, ItemID: 7})
	require.ErrorIs(t, err, ErrReservationDenied)
	assert.Equal(t, CodeReservationDenied, Code(err))
	assert.Len(t, h.activeRows(), 1, "loser must not write a row")

	_, err = c.Release(ctx, ReleaseCommand{ReservationID: a.ID})
	require.NoError(t, err)
	available, err := c.CheckAvailability(ctx, 7)
	require.NoError(t, err)
	assert.True(t, available)

	b, err := c.Reserve(ctx, ReserveCommand{HolderID: 2, ItemID: 7})
	require.NoError(t, err)
	assert.Equal(t, int64(2), b.HolderID)
}

func TestReserve_PrecheckRejectsUnavailableItem(t *testing.T) {
	ctx := context.Background()
	h := newHarness(7)
	c := h.coordinator()

	_, err := c.Reserve(ctx, ReserveCommand{HolderID: 1, ItemID: 7})
	require.NoError(t, err)

	_, err = c.Reserve(ctx, ReserveCommand{HolderID: 2, ItemID: 7})
	require.ErrorIs(t, err, ErrItemUnavailable)
	assert.Equal(t, CodeItemUnavailable, Code(err))

	_, err = c.Reserve(ctx, ReserveCommand{HolderID: 2, ItemID: 404})
	require.ErrorIs(t, err, ErrItemUnavailable, "unknown items are never available")
}

func TestReserve_UnknownItemIsUnavailable(t *testing.T) {
	for _, skip := range []bool{false, true} {
		t.Run(fmt.Sprintf("skip_precheck=%v", skip), func(t *testing.T) {
			h := newHarness(7)
			h.opts.SkipPrecheck = skip

			_, err := h.coordinator().Reserve(context.Background(), ReserveCommand{HolderID: 1, ItemID: 999})
			require.ErrorIs(t, err, ErrItemUnavailable)
			require.NotErrorIs(t, err, ErrReservationDenied)
			assert.Equal(t, CodeItemUnavailable, Code(err))
			assert.Empty(t, h.activeRows())
			assert.True(t, h.available(7))
		})
	}
}

func TestReserve_UnknownHolderTouchesNothing(t *testing.T) {
	h := newHarness(1)
	_, err := h.coordinator().Reserve(context.Background(), ReserveCommand{HolderID: 99, ItemID: 1})
	require.ErrorIs(t, err, ErrHolderNotFound)
	assert.True(t, h.available(1))
	assert.Empty(t, h.activeRows())
}

func TestReserve_DirectoryFailureIsInternal(t *testing.T) {
	h := newHarness(1)
	h.holders = brokenDirectory{}
	_, err := h.coordinator().Reserve(context.Background(), ReserveCommand{HolderID: 1, ItemID: 1})
	require.ErrorIs(t, err, ErrInternal)
	assert.Equal(t, CodeInternalError, Code(err))
	assert.True(t, h.available(1))
}

func TestReserve_LedgerFailureCompensates(t *testing.T) {
	h := newHarness(5)
	h.ledger.createErr = errors.New("disk full")
	c := h.coordinator()

	_, err := c.Reserve(context.Background(), ReserveCommand{HolderID: 1, ItemID: 5})
	require.ErrorIs(t, err, ErrInternal)
	require.NotErrorIs(t, err, ErrOrphanedReservation)

	available, err := c.CheckAvailability(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, available, "compensating release must free the item")
	assert.Empty(t, h.activeRows())
	assert.Equal(t, int32(1), h.inventory.releaseCalls.Load())
	assert.Equal(t, 1.0, h.metrics.counter(observability.MCompensations).get("outcome=success"))
	assert.Empty(t, h.publisher.byName("reservation.created"))
}

func TestReserve_CompensationSurvivesCallerCancellation(t *testing.T) {
	h := newHarness(5)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.ledger.createErr = context.Canceled
	h.ledger.onCreate = cancel

	_, err := h.coordinator().Reserve(ctx, ReserveCommand{HolderID: 1, ItemID: 5})
	require.ErrorIs(t, err, ErrInternal)
	assert.True(t, h.available(5))
}

func TestReserve_FailedCompensationIsOrphan(t *testing.T) {
	h := newHarness(5)
	h.ledger.createErr = errors.New("disk full")
	h.inventory.releaseErr = errors.New("inventory down")
	c := h.coordinator()

	_, err := c.Reserve(context.Background(), ReserveCommand{HolderID: 1, ItemID: 5})
	require.ErrorIs(t, err, ErrInternal)
	require.ErrorIs(t, err, ErrOrphanedReservation)
	assert.Equal(t, CodeInternalError, Code(err))

	assert.Equal(t, int32(1), h.inventory.releaseCalls.Load(), "compensation is attempted exactly once")
	assert.False(t, h.available(5))
	assert.Empty(t, h.activeRows())

	orphans := h.metrics.counter(observability.MOrphans)
	assert.Equal(t, 1.0, orphans.get("kind="+domres.OrphanUnavailableWithoutReservation))
	assert.Equal(t, 1.0, h.metrics.counter(observability.MCompensations).get("outcome=failed"))

	events := h.publisher.byName("reservation.orphan_detected")
	require.Len(t, events, 1)
	evt := events[0].(domres.OrphanDetectedEvent)
	assert.Equal(t, int64(5), evt.ItemID)
	assert.Equal(t, int64(1), evt.HolderID)
	assert.Contains(t, evt.Cause, "disk full")
}

func TestReserve_TimeoutIsInternalWithoutBlindRelease(t *testing.T) {
	h := newHarness(5)
	h.opts.CallTimeout = 20 * time.Millisecond
	h.inventory.block = make(chan struct{})
	defer close(h.inventory.block)

	_, err := h.coordinator().Reserve(context.Background(), ReserveCommand{HolderID: 1, ItemID: 5})
	require.ErrorIs(t, err, ErrInternal)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, h.inventory.releaseCalls.Load())
	assert.Empty(t, h.activeRows())

	orphans := h.metrics.counter(observability.MOrphans)
	assert.Equal(t, 1.0, orphans.get("kind="+domres.OrphanReserveOutcomeUnknown))
	events := h.publisher.byName("reservation.orphan_detected")
	require.Len(t, events, 1)
	evt := events[0].(domres.OrphanDetectedEvent)
	assert.Equal(t, domres.OrphanReserveOutcomeUnknown, evt.Kind)
	assert.Equal(t, int64(5), evt.ItemID)
	assert.Equal(t, int64(1), evt.HolderID)
}

func TestReserve_TransportErrorIsReportedAsUnknownOutcome(t *testing.T) {
	h := newHarness(5)
	h.inventory.reserveErr = errors.New("connection reset")

	_, err := h.coordinator().Reserve(context.Background(), ReserveCommand{HolderID: 1, ItemID: 5})
	require.ErrorIs(t, err, ErrInternal)
	assert.Equal(t, CodeInternalError, Code(err))
	assert.Zero(t, h.inventory.releaseCalls.Load())
	assert.Equal(t, 1.0, h.metrics.counter(observability.MOrphans).get("kind="+domres.OrphanReserveOutcomeUnknown))
}

func TestReserve_CallerCancelAfterReserveStillCreatesRow(t *testing.T) {
	h := newHarness(5)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.ledger.onCreate = cancel

	res, err := h.coordinator().Reserve(ctx, ReserveCommand{HolderID: 1, ItemID: 5})
	require.NoError(t, err)
	assert.Equal(t, domres.StatusActive, res.Status)
	assert.Zero(t, h.inventory.releaseCalls.Load(), "no compensation for a completed reserve")
	assert.Len(t, h.activeRows(), 1)
	assert.False(t, h.available(5))
	assert.Len(t, h.publisher.byName("reservation.created"), 1)
}

func TestReserve_ConcurrentCallersOneReservation(t *testing.T) {
	for _, skip := range []bool{false, true} {
		t.Run(fmt.Sprintf("skip_precheck=%v", skip), func(t *testing.T) {
			h := newHarness(8)
			h.opts.SkipPrecheck = skip
			c := h.coordinator()

			var wins, losses atomic.Int32
			var g errgroup.Group
			for i := range 20 {
				holder := int64(i%2 + 1)
				g.Go(func() error {
					_, err := c.Reserve(context.Background(), ReserveCommand{HolderID: holder, ItemID: 8})
					switch {
					case err == nil:
						wins.Add(1)
					case errors.Is(err, ErrReservationDenied), errors.Is(err, ErrItemUnavailable):
						losses.Add(1)
					default:
						return err
					}
					return nil
				})
			}
			require.NoError(t, g.Wait())
			assert.Equal(t, int32(1), wins.Load())
			assert.Equal(t, int32(19), losses.Load())
			assert.Len(t, h.activeRows(), 1)
			assert.False(t, h.available(8))
		})
	}
}

func TestRelease_UnknownReservation(t *testing.T) {
	_, err := newHarness().coordinator().Release(context.Background(), ReleaseCommand{ReservationID: "nope"})
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, CodeNotFound, Code(err))
}

func TestRelease_TwiceIsNotFound(t *testing.T) {
	ctx := context.Background()
	h := newHarness(2)
	c := h.coordinator()

	res, err := c.Reserve(ctx, ReserveCommand{HolderID: 1, ItemID: 2})
	require.NoError(t, err)

	released, err := c.Release(ctx, ReleaseCommand{ReservationID: res.ID})
	require.NoError(t, err)
	assert.Equal(t, domres.StatusCancelled, released.Status)

	_, err = c.Release(ctx, ReleaseCommand{ReservationID: res.ID})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRelease_InventoryFailureKeepsRowActive(t *testing.T) {
	ctx := context.Background()
	h := newHarness(2)
	c := h.coordinator()

	res, err := c.Reserve(ctx, ReserveCommand{HolderID: 1, ItemID: 2})
	require.NoError(t, err)

	h.inventory.releaseErr = errors.New("inventory down")
	_, err = c.Release(ctx, ReleaseCommand{ReservationID: res.ID})
	require.ErrorIs(t, err, ErrInventory)
	assert.Equal(t, CodeInventoryError, Code(err))

	rows := h.activeRows()
	require.Len(t, rows, 1)
	assert.Equal(t, res.ID, rows[0].ID)
	assert.False(t, h.available(2))
}

func TestRelease_MissingItemIsInventoryError(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	row, err := h.ledger.Ledger.Create(ctx, 1, 77)
	require.NoError(t, err)

	_, err = h.coordinator().Release(ctx, ReleaseCommand{ReservationID: row.ID})
	require.ErrorIs(t, err, ErrInventory)
	assert.Len(t, h.activeRows(), 1)
}

func TestRelease_LedgerCancelFailureIsReported(t *testing.T) {
	ctx := context.Background()
	h := newHarness(2)
	c := h.coordinator()

	res, err := c.Reserve(ctx, ReserveCommand{HolderID: 1, ItemID: 2})
	require.NoError(t, err)

	h.ledger.cancelErr = errors.New("locked")
	_, err = c.Release(ctx, ReleaseCommand{ReservationID: res.ID})
	require.ErrorIs(t, err, ErrInternal)
	assert.True(t, h.available(2))
	assert.Equal(t, 1.0, h.metrics.counter(observability.MOrphans).get("kind="+domres.OrphanAvailableWithActiveReservation))
	require.Len(t, h.publisher.byName("reservation.orphan_detected"), 1)
}

func TestListByHolder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(1, 2)
	c := h.coordinator()

	_, err := c.Reserve(ctx, ReserveCommand{HolderID: 1, ItemID: 1})
	require.NoError(t, err)
	_, err = c.Reserve(ctx, ReserveCommand{HolderID: 2, ItemID: 2})
	require.NoError(t, err)

	list, err := c.ListByHolder(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(1), list[0].ItemID)
}

func TestUseCaseAdapters(t *testing.T) {
	ctx := context.Background()
	c := newHarness(4).coordinator()

	res, err := c.ReserveUseCase().Execute(ctx, ReserveCommand{HolderID: 1, ItemID: 4})
	require.NoError(t, err)
	_, err = c.ReleaseUseCase().Execute(ctx, ReleaseCommand{ReservationID: res.ID})
	require.NoError(t, err)
}

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrNotFound, CodeNotFound},
		{fmt.Errorf("%w: taken", ErrReservationDenied), CodeReservationDenied},
		{ErrItemUnavailable, CodeItemUnavailable},
		{ErrHolderNotFound, CodeHolderNotFound},
		{fmt.Errorf("%w: x", ErrInventory), CodeInventoryError},
		{fmt.Errorf("%w: %w", ErrInternal, ErrOrphanedReservation), CodeInternalError},
		{errors.New("surprise"), CodeInternalError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Code(tt.err), "%v", tt.err)
	}
}
