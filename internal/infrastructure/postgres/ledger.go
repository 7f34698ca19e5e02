package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5"

	domain "github.com/Zhima-Mochi/libraryhold/internal/domain/reservation"
)

type Ledger struct {
	s   *Store
	ids domain.IDGenerator
}

var reservationColumns = []any{colID, colHolderID, colBookID, colStatus, colCreatedAt, colCancelledAt}

func (l *Ledger) Create(ctx context.Context, holderID, itemID int64) (*domain.Reservation, error) {
	res, err := domain.New(l.ids.NewID(), holderID, itemID)
	if err != nil {
		return nil, err
	}
	res.CreatedAt = l.s.now()

	query, args, err := build(l.s.builder.Insert(tableReservations).
		Rows(goqu.Record{
			colID:        res.ID,
			colHolderID:  res.HolderID,
			colBookID:    res.ItemID,
			colStatus:    string(res.Status),
			colCreatedAt: res.CreatedAt,
		}).
		Prepared(true))
	if err != nil {
		return nil, err
	}
	if _, err := l.s.pool.Exec(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("inserting reservation: %w", err)
	}
	return res, nil
}

func (l *Ledger) Get(ctx context.Context, id string) (*domain.Reservation, error) {
	query, args, err := build(l.s.builder.From(tableReservations).
		Select(reservationColumns...).
		Where(goqu.Ex{colID: id, colStatus: string(domain.StatusActive)}).
		Prepared(true))
	if err != nil {
		return nil, err
	}
	res, err := scanReservation(l.s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting reservation %s: %w", id, err)
	}
	return res, nil
}

func (l *Ledger) Cancel(ctx context.Context, id string) error {
	query, args, err := build(l.s.builder.Update(tableReservations).
		Set(goqu.Record{colStatus: string(domain.StatusCancelled), colCancelledAt: l.s.now()}).
		Where(goqu.Ex{colID: id, colStatus: string(domain.StatusActive)}).
		Prepared(true))
	if err != nil {
		return err
	}
	tag, err := l.s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("cancelling reservation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (l *Ledger) ListByHolder(ctx context.Context, holderID int64) ([]domain.Reservation, error) {
	return l.list(ctx, goqu.Ex{colHolderID: holderID})
}

func (l *Ledger) ListActive(ctx context.Context) ([]domain.Reservation, error) {
	return l.list(ctx, goqu.Ex{colStatus: string(domain.StatusActive)})
}

func (l *Ledger) list(ctx context.Context, where goqu.Ex) ([]domain.Reservation, error) {
	query, args, err := build(l.s.builder.From(tableReservations).
		Select(reservationColumns...).
		Where(where).
		Order(goqu.I(colCreatedAt).Asc(), goqu.I(colID).Asc()).
		Prepared(true))
	if err != nil {
		return nil, err
	}
	rows, err := l.s.pool.Query(ctx, query, args...)
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

func scanReservation(row pgx.Row) (*domain.Reservation, error) {
	var res domain.Reservation
	var status string
	var cancelled *time.Time
	if err := row.Scan(&res.ID, &res.HolderID, &res.ItemID, &status, &res.CreatedAt, &cancelled); err != nil {
		return nil, err
	}
	res.Status = domain.Status(status)
	res.CreatedAt = res.CreatedAt.UTC()
	if cancelled != nil {
		at := cancelled.UTC()
		res.CancelledAt = &at
	}
	return &res, nil
}
