package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	domain "github.com/Zhima-Mochi/libraryhold/internal/domain/reservation"
)

type Ledger struct {
	s   *Store
	ids domain.IDGenerator
}

const reservationColumns = "id, holder_id, book_id, status, created_at, cancelled_at"

func (l *Ledger) Create(ctx context.Context, holderID, itemID int64) (*domain.Reservation, error) {
	res, err := domain.New(l.ids.NewID(), holderID, itemID)
	if err != nil {
		return nil, err
	}
	res.CreatedAt = l.s.now()

	_, err = l.s.db.ExecContext(ctx,
		"INSERT INTO reservations (id, holder_id, book_id, status, created_at) VALUES (?, ?, ?, ?, ?)",
		res.ID, res.HolderID, res.ItemID, string(res.Status), res.CreatedAt.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting reservation: %w", err)
	}
	return res, nil
}

func (l *Ledger) Get(ctx context.Context, id string) (*domain.Reservation, error) {
	row := l.s.db.QueryRowContext(ctx,
		"SELECT "+reservationColumns+" FROM reservations WHERE id = ? AND status = 'active'", id,
	)
	res, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting reservation %s: %w", id, err)
	}
	return res, nil
}

func (l *Ledger) Cancel(ctx context.Context, id string) error {
	res, err := l.s.db.ExecContext(ctx,
		"UPDATE reservations SET status = 'cancelled', cancelled_at = ? WHERE id = ? AND status = 'active'",
		l.s.now().UnixNano(), id,
	)
	if err != nil {
		return fmt.Errorf("cancelling reservation %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cancelling reservation %s: %w", id, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (l *Ledger) ListByHolder(ctx context.Context, holderID int64) ([]domain.Reservation, error) {
	return l.list(ctx,
		"SELECT "+reservationColumns+" FROM reservations WHERE holder_id = ? ORDER BY created_at, id", holderID)
}

func (l *Ledger) ListActive(ctx context.Context) ([]domain.Reservation, error) {
	return l.list(ctx,
		"SELECT "+reservationColumns+" FROM reservations WHERE status = 'active' ORDER BY created_at, id")
}

func (l *Ledger) list(ctx context.Context, query string, args ...any) ([]domain.Reservation, error) {
	rows, err := l.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing reservations: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Reservation, 0)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning reservation: %w", err)
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReservation(row scanner) (*domain.Reservation, error) {
	var res domain.Reservation
	var status string
	var created int64
	var cancelled sql.NullInt64
	if err := row.Scan(&res.ID, &res.HolderID, &res.ItemID, &status, &created, &cancelled); err != nil {
		return nil, err
	}
	res.Status = domain.Status(status)
	res.CreatedAt = fromNanos(created)
	if cancelled.Valid {
		at := fromNanos(cancelled.Int64)
		res.CancelledAt = &at
	}
	return &res, nil
}
