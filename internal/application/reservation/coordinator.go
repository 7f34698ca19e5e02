package reservation

import (
	"context"
	"time"

	"github.com/Zhima-Mochi/libraryhold/internal/application"
	domholder "github.com/Zhima-Mochi/libraryhold/internal/domain/holder"
	domoutbox "github.com/Zhima-Mochi/libraryhold/internal/domain/outbox"
	domres "github.com/Zhima-Mochi/libraryhold/internal/domain/reservation"
	"github.com/Zhima-Mochi/libraryhold/internal/observability"
)

const (
	catalogService      = "catalog-service"
	DefaultCallTimeout  = 2 * time.Second
	useCaseReserve      = "reservation.reserve"
	useCaseRelease      = "reservation.release"
	useCaseCheck        = "reservation.check_availability"
	useCaseListByHolder = "reservation.list_by_holder"
)

type Options struct {
	// CallTimeout bounds every inventory call, including the compensating
	// release, and the ledger write that follows a successful reserve. Zero
	// means DefaultCallTimeout.
	CallTimeout time.Duration
	// SkipPrecheck drops the optimistic availability check and relies on the
	// authoritative reserve alone.
	SkipPrecheck bool
}

// Coordinator runs the reserve and release workflows across the inventory
// service and the local ledger. It holds no locks; the availability store's
// conditional update is the only serialisation point.
type Coordinator struct {
	holders   domholder.Directory
	inventory InventoryPort
	ledger    domres.Ledger
	publisher domoutbox.Publisher
	opts      Options

	inst          *application.Instrumentation
	compensations observability.Counter
	orphans       observability.Counter
}

func NewCoordinator(
	holders domholder.Directory,
	inventory InventoryPort,
	ledger domres.Ledger,
	publisher domoutbox.Publisher,
	tel observability.Observability,
	opts Options,
) *Coordinator {
	if tel == nil {
		tel = observability.Nop()
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	inst := application.NewInstrumentation(tel, catalogService)
	inst.ErrorCode = Code
	metrics := tel.Metrics()
	return &Coordinator{
		holders:       holders,
		inventory:     inventory,
		ledger:        ledger,
		publisher:     publisher,
		opts:          opts,
		inst:          inst,
		compensations: metrics.Counter(observability.MCompensations),
		orphans:       metrics.Counter(observability.MOrphans),
	}
}

func (c *Coordinator) ReserveUseCase() application.UseCase[ReserveCommand, *domres.Reservation] {
	return application.UseCaseFunc[ReserveCommand, *domres.Reservation](c.Reserve)
}

func (c *Coordinator) ReleaseUseCase() application.UseCase[ReleaseCommand, *domres.Reservation] {
	return application.UseCaseFunc[ReleaseCommand, *domres.Reservation](c.Release)
}

// callCtx bounds one inventory call. A timeout is reported by the call itself
// as a context error and treated as a failure.
func (c *Coordinator) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.opts.CallTimeout)
}

// reportOrphan surfaces a durable divergence between inventory and ledger.
// It never fails: the caller already has the error it will return.
func (c *Coordinator) reportOrphan(ctx context.Context, logger observability.Logger, evt domres.OrphanDetectedEvent) {
	evt.OccurredAt = time.Now().UTC()
	c.orphans.Add(1, observability.L("kind", evt.Kind))
	logger.Error("orphaned_reservation",
		observability.F("kind", evt.Kind),
		observability.F("item_id", evt.ItemID),
		observability.F("holder_id", evt.HolderID),
		observability.F("reservation_id", evt.ReservationID),
		observability.F("cause", evt.Cause),
	)
	if err := c.inst.Publish(context.WithoutCancel(ctx), c.publisher, evt); err != nil {
		logger.Warn("orphan_event_publish_failed", observability.Err(err))
	}
}
