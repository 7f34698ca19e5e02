package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5"

	domain "github.com/Zhima-Mochi/libraryhold/internal/domain/inventory"
)

type InventoryRepository struct{ s *Store }

func (r *InventoryRepository) Add(ctx context.Context, item domain.Item) error {
	if item.ID <= 0 {
		return domain.ErrInvalidID
	}
	updated := item.UpdatedAt
	if updated.IsZero() {
		updated = r.s.now()
	}
	query, args, err := build(r.s.builder.Insert(tableBooks).
		Rows(goqu.Record{colID: item.ID, colAvailable: item.Available, colUpdatedAt: updated}).
		Prepared(true))
	if err != nil {
		return err
	}
	if _, err := r.s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting book %d: %w", item.ID, err)
	}
	return nil
}

func (r *InventoryRepository) Get(ctx context.Context, itemID int64) (*domain.Item, error) {
	query, args, err := build(r.s.builder.From(tableBooks).
		Select(colID, colAvailable, colUpdatedAt).
		Where(goqu.Ex{colID: itemID}).
		Prepared(true))
	if err != nil {
		return nil, err
	}

	var item domain.Item
	err = r.s.pool.QueryRow(ctx, query, args...).Scan(&item.ID, &item.Available, &item.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting book %d: %w", itemID, err)
	}
	item.UpdatedAt = item.UpdatedAt.UTC()
	return &item, nil
}

func (r *InventoryRepository) SetAvailable(ctx context.Context, itemID int64, available bool) error {
	query, args, err := build(r.s.builder.Update(tableBooks).
		Set(goqu.Record{colAvailable: available, colUpdatedAt: r.s.now()}).
		Where(goqu.Ex{colID: itemID}).
		Prepared(true))
	if err != nil {
		return err
	}
	tag, err := r.s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating book %d: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ReserveIfAvailable is one conditional UPDATE; zero affected rows means the
// book is missing or already taken, told apart by a follow-up read.
func (r *InventoryRepository) ReserveIfAvailable(ctx context.Context, itemID int64) error {
	query, args, err := build(r.s.builder.Update(tableBooks).
		Set(goqu.Record{colAvailable: false, colUpdatedAt: r.s.now()}).
		Where(goqu.Ex{colID: itemID, colAvailable: true}).
		Prepared(true))
	if err != nil {
		return err
	}
	tag, err := r.s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("reserving book %d: %w", itemID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.Get(ctx, itemID); err != nil {
		return err
	}
	return domain.ErrAlreadyReserved
}

func (r *InventoryRepository) ListUnavailable(ctx context.Context) ([]domain.Item, error) {
	query, args, err := build(r.s.builder.From(tableBooks).
		Select(colID, colUpdatedAt).
		Where(goqu.Ex{colAvailable: false}).
		Order(goqu.I(colID).Asc()).
		Prepared(true))
	if err != nil {
		return nil, err
	}
	rows, err := r.s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing unavailable books: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Item, 0)
	for rows.Next() {
		item := domain.Item{}
		if err := rows.Scan(&item.ID, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning book: %w", err)
		}
		item.UpdatedAt = item.UpdatedAt.UTC()
		out = append(out, item)
	}
	return out, rows.Err()
}
