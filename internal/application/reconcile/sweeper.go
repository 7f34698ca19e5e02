// Package reconcile detects and optionally repairs divergence between the
// availability store and the reservation ledger.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Zhima-Mochi/libraryhold/internal/application"
	dominv "github.com/Zhima-Mochi/libraryhold/internal/domain/inventory"
	domres "github.com/Zhima-Mochi/libraryhold/internal/domain/reservation"
	"github.com/Zhima-Mochi/libraryhold/internal/observability"
	"github.com/Zhima-Mochi/libraryhold/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
)

const (
	KindUnavailableWithoutReservation = domres.OrphanUnavailableWithoutReservation
	KindAvailableWithActive           = domres.OrphanAvailableWithActiveReservation
	KindDuplicateActive               = "duplicate_active_reservation"

	ActionReported     = "reported"
	ActionRepaired     = "repaired"
	ActionRepairFailed = "repair_failed"

	DefaultGrace = 30 * time.Second

	sweeperService = "reconcile"
	useCaseSweep   = "reconcile.sweep"
)

// Releaser frees an item. The inventory coordinator and the inventory HTTP
// client both satisfy it.
type Releaser interface {
	Release(ctx context.Context, itemID int64) (dominv.Outcome, error)
}

type Options struct {
	// Grace skips items and rows touched this recently; they may belong to a
	// workflow that is still running.
	Grace time.Duration
	// Repair applies fixes instead of only reporting them.
	Repair bool
	// RepairsPerSecond throttles repair actions. Zero means unlimited.
	RepairsPerSecond float64
	Now              func() time.Time
}

type Finding struct {
	Kind           string   `json:"kind"`
	ItemID         int64    `json:"item_id"`
	ReservationIDs []string `json:"reservation_ids,omitempty"`
	Action         string   `json:"action"`
	Error          string   `json:"error,omitempty"`
}

type Report struct {
	StartedAt   time.Time `json:"started_at"`
	Unavailable int       `json:"unavailable_items"`
	Active      int       `json:"active_reservations"`
	Skipped     int       `json:"skipped_in_grace"`
	Findings    []Finding `json:"findings"`
}

// Repaired counts findings whose repair succeeded.
func (r *Report) Repaired() int {
	n := 0
	for _, f := range r.Findings {
		if f.Action == ActionRepaired {
			n++
		}
	}
	return n
}

type Sweeper struct {
	items    dominv.Repository
	ledger   domres.Ledger
	releaser Releaser
	opts     Options
	limiter  *rate.Limiter

	inst     *application.Instrumentation
	log      observability.Logger
	findings observability.Counter
}

func NewSweeper(items dominv.Repository, ledger domres.Ledger, releaser Releaser, tel observability.Observability, opts Options) *Sweeper {
	if tel == nil {
		tel = observability.Nop()
	}
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	limit := rate.Inf
	if opts.RepairsPerSecond > 0 {
		limit = rate.Limit(opts.RepairsPerSecond)
	}
	inst := application.NewInstrumentation(tel, sweeperService)
	return &Sweeper{
		items:    items,
		ledger:   ledger,
		releaser: releaser,
		opts:     opts,
		limiter:  rate.NewLimiter(limit, 1),
		inst:     inst,
		log:      inst.Logger(),
		findings: tel.Metrics().Counter(observability.MReconcileFindings),
	}
}

// Sweep compares unavailable items with active ledger rows once.
func (s *Sweeper) Sweep(ctx context.Context) (report *Report, err error) {
	ctx, _, finish := s.inst.Begin(ctx, useCaseSweep, "Sweep",
		[]attribute.KeyValue{attribute.Bool("reconcile.repair", s.opts.Repair)},
		observability.F("sweep_id", uuid.NewString()),
	)
	outcome, statusText := "success", "OK"
	report = &Report{StartedAt: s.opts.Now()}
	defer func() {
		finish(outcome, statusText, err,
			observability.F("repair", s.opts.Repair),
			observability.F("findings", len(report.Findings)),
			observability.F("repaired", report.Repaired()),
			observability.F("skipped", report.Skipped),
		)
	}()

	unavailable, err := s.items.ListUnavailable(ctx)
	if err != nil {
		outcome, statusText = "error", "LIST_ITEMS_FAILED"
		return report, fmt.Errorf("reconcile: list unavailable: %w", err)
	}
	active, err := s.ledger.ListActive(ctx)
	if err != nil {
		outcome, statusText = "error", "LIST_LEDGER_FAILED"
		return report, fmt.Errorf("reconcile: list active: %w", err)
	}
	report.Unavailable, report.Active = len(unavailable), len(active)

	now := s.opts.Now()
	byItem := make(map[int64][]domres.Reservation)
	for _, r := range active {
		byItem[r.ItemID] = append(byItem[r.ItemID], r)
	}
	held := make(map[int64]bool, len(unavailable))

	for _, item := range unavailable {
		held[item.ID] = true
		if len(byItem[item.ID]) > 0 {
			continue
		}
		if s.inGrace(now, item.UpdatedAt) {
			report.Skipped++
			continue
		}
		f := Finding{Kind: KindUnavailableWithoutReservation, ItemID: item.ID}
		if err := s.repair(ctx, &f, func(ctx context.Context) error { return s.releaseOrphan(ctx, item.ID, now) }); err != nil {
			outcome, statusText = "error", "CANCELED"
			return report, err
		}
		s.record(ctx, report, f)
	}

	itemIDs := make([]int64, 0, len(byItem))
	for id := range byItem {
		itemIDs = append(itemIDs, id)
	}
	sort.Slice(itemIDs, func(i, j int) bool { return itemIDs[i] < itemIDs[j] })

	for _, itemID := range itemIDs {
		rows := byItem[itemID]
		sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.Before(rows[j].CreatedAt) })
		newest := rows[len(rows)-1].CreatedAt

		switch {
		case !held[itemID]:
			if s.inGrace(now, newest) || s.recentlyTouched(ctx, itemID, now) {
				report.Skipped++
				continue
			}
			f := Finding{Kind: KindAvailableWithActive, ItemID: itemID, ReservationIDs: ids(rows)}
			if err := s.repair(ctx, &f, func(ctx context.Context) error { return s.cancelRows(ctx, rows) }); err != nil {
				outcome, statusText = "error", "CANCELED"
				return report, err
			}
			s.record(ctx, report, f)

		case len(rows) > 1:
			if s.inGrace(now, newest) {
				report.Skipped++
				continue
			}
			// The oldest row won the inventory reserve; later rows are stale.
			f := Finding{Kind: KindDuplicateActive, ItemID: itemID, ReservationIDs: ids(rows[1:])}
			if err := s.repair(ctx, &f, func(ctx context.Context) error { return s.cancelRows(ctx, rows[1:]) }); err != nil {
				outcome, statusText = "error", "CANCELED"
				return report, err
			}
			s.record(ctx, report, f)
		}
	}

	if len(report.Findings) > 0 {
		statusText = "FINDINGS"
	}
	return report, nil
}

// Run sweeps every interval until ctx is done. Sweep errors are logged and
// the loop continues.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("reconcile: interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("reconcile_loop_started",
		observability.F("interval", interval.String()),
		observability.F("repair", s.opts.Repair),
	)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("reconcile_loop_stopped")
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("reconcile_sweep_failed", observability.Err(err))
			}
		}
	}
}

// repair applies fix when repair mode is on. It only returns an error when
// ctx ends while waiting for the limiter; fix failures land in the finding.
func (s *Sweeper) repair(ctx context.Context, f *Finding, fix func(context.Context) error) error {
	f.Action = ActionReported
	if !s.opts.Repair {
		return nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("reconcile: repair throttled: %w", err)
	}
	if err := fix(ctx); err != nil {
		f.Action, f.Error = ActionRepairFailed, err.Error()
		return nil
	}
	f.Action = ActionRepaired
	return nil
}

func (s *Sweeper) record(ctx context.Context, report *Report, f Finding) {
	report.Findings = append(report.Findings, f)
	s.findings.Add(1,
		observability.L("kind", f.Kind),
		observability.L("action", f.Action),
	)
	fields := []observability.Field{
		observability.F("kind", f.Kind),
		observability.F("item_id", f.ItemID),
		observability.F("action", f.Action),
	}
	if len(f.ReservationIDs) > 0 {
		fields = append(fields, observability.F("reservation_ids", f.ReservationIDs))
	}
	if f.Error != "" {
		fields = append(fields, observability.F("error", f.Error))
	}
	logctx.FromOr(ctx, s.log).Warn("reconcile_finding", fields...)
}

// releaseOrphan re-reads the item right before releasing so a reserve that
// landed after the listing is not undone.
func (s *Sweeper) releaseOrphan(ctx context.Context, itemID int64, now time.Time) error {
	item, err := s.items.Get(ctx, itemID)
	if err != nil {
		return err
	}
	if item.Available || s.inGrace(now, item.UpdatedAt) {
		return errors.New("item changed during sweep")
	}
	out, err := s.releaser.Release(ctx, itemID)
	if err != nil {
		return err
	}
	if !out.Success {
		return fmt.Errorf("release rejected: %s", out.Reason)
	}
	return nil
}

func (s *Sweeper) cancelRows(ctx context.Context, rows []domres.Reservation) error {
	var errs []error
	for _, r := range rows {
		if err := s.ledger.Cancel(ctx, r.ID); err != nil && !errors.Is(err, domres.ErrNotFound) {
			errs = append(errs, fmt.Errorf("cancel %s: %w", r.ID, err))
		}
	}
	return errors.Join(errs...)
}

// recentlyTouched reports whether the item changed within the grace period,
// e.g. a release whose ledger cancel is still in flight.
func (s *Sweeper) recentlyTouched(ctx context.Context, itemID int64, now time.Time) bool {
	item, err := s.items.Get(ctx, itemID)
	if err != nil {
		return false
	}
	return s.inGrace(now, item.UpdatedAt)
}

func (s *Sweeper) inGrace(now, touched time.Time) bool {
	return now.Sub(touched) < s.opts.Grace
}

func ids(rows []domres.Reservation) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ID)
	}
	return out
}
