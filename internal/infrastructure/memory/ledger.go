package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	domain "github.com/Zhima-Mochi/libraryhold/internal/domain/reservation"
)

// Ledger is an in-memory reservation.Ledger.
type Ledger struct {
	mu   sync.RWMutex
	rows map[string]*domain.Reservation
	ids  domain.IDGenerator
	now  func() time.Time
}

func NewLedger(ids domain.IDGenerator) *Ledger {
	return &Ledger{
		rows: make(map[string]*domain.Reservation),
		ids:  ids,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (l *Ledger) Create(ctx context.Context, holderID, itemID int64) (*domain.Reservation, error) {
	_ = ctx
	res, err := domain.New(l.ids.NewID(), holderID, itemID)
	if err != nil {
		return nil, err
	}
	res.CreatedAt = l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.rows[res.ID] = cloneReservation(res)
	return res, nil
}

func (l *Ledger) Get(ctx context.Context, id string) (*domain.Reservation, error) {
	_ = ctx

	l.mu.RLock()
	defer l.mu.RUnlock()

	res, ok := l.rows[id]
	if !ok || !res.Active() {
		return nil, domain.ErrNotFound
	}
	return cloneReservation(res), nil
}

func (l *Ledger) Cancel(ctx context.Context, id string) error {
	_ = ctx

	l.mu.Lock()
	defer l.mu.Unlock()

	res, ok := l.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	return res.Cancel(l.now())
}

func (l *Ledger) ListByHolder(ctx context.Context, holderID int64) ([]domain.Reservation, error) {
	return l.list(ctx, func(r *domain.Reservation) bool { return r.HolderID == holderID })
}

func (l *Ledger) ListActive(ctx context.Context) ([]domain.Reservation, error) {
	return l.list(ctx, (*domain.Reservation).Active)
}

func (l *Ledger) list(ctx context.Context, keep func(*domain.Reservation) bool) ([]domain.Reservation, error) {
	_ = ctx

	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.Reservation, 0)
	for _, r := range l.rows {
		if keep(r) {
			out = append(out, *cloneReservation(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func cloneReservation(r *domain.Reservation) *domain.Reservation {
	if r == nil {
		return nil
	}
	clone := *r
	if r.CancelledAt != nil {
		at := *r.CancelledAt
		clone.CancelledAt = &at
	}
	return &clone
}
