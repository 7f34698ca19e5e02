package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

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
	_, err := r.s.db.ExecContext(ctx,
		"INSERT INTO books (id, available, updated_at) VALUES (?, ?, ?)",
		item.ID, boolToInt(item.Available), updated.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("inserting book %d: %w", item.ID, err)
	}
	return nil
}

func (r *InventoryRepository) Get(ctx context.Context, itemID int64) (*domain.Item, error) {
	var item domain.Item
	var available, updated int64
	err := r.s.db.QueryRowContext(ctx,
		"SELECT id, available, updated_at FROM books WHERE id = ?", itemID,
	).Scan(&item.ID, &available, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting book %d: %w", itemID, err)
	}
	item.Available = available == 1
	item.UpdatedAt = fromNanos(updated)
	return &item, nil
}

func (r *InventoryRepository) SetAvailable(ctx context.Context, itemID int64, available bool) error {
	res, err := r.s.db.ExecContext(ctx,
		"UPDATE books SET available = ?, updated_at = ? WHERE id = ?",
		boolToInt(available), r.s.now().UnixNano(), itemID,
	)
	if err != nil {
		return fmt.Errorf("updating book %d: %w", itemID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating book %d: %w", itemID, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ReserveIfAvailable is one conditional UPDATE; zero affected rows means the
// book is missing or already taken, told apart by a follow-up read.
func (r *InventoryRepository) ReserveIfAvailable(ctx context.Context, itemID int64) error {
	res, err := r.s.db.ExecContext(ctx,
		"UPDATE books SET available = 0, updated_at = ? WHERE id = ? AND available = 1",
		r.s.now().UnixNano(), itemID,
	)
	if err != nil {
		return fmt.Errorf("reserving book %d: %w", itemID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reserving book %d: %w", itemID, err)
	}
	if n == 1 {
		return nil
	}
	if _, err := r.Get(ctx, itemID); err != nil {
		return err
	}
	return domain.ErrAlreadyReserved
}

func (r *InventoryRepository) ListUnavailable(ctx context.Context) ([]domain.Item, error) {
	rows, err := r.s.db.QueryContext(ctx,
		"SELECT id, updated_at FROM books WHERE available = 0 ORDER BY id",
	)
	if err != nil {
		return nil, fmt.Errorf("listing unavailable books: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Item, 0)
	for rows.Next() {
		var id, updated int64
		if err := rows.Scan(&id, &updated); err != nil {
			return nil, fmt.Errorf("scanning book: %w", err)
		}
		out = append(out, domain.Item{ID: id, Available: false, UpdatedAt: fromNanos(updated)})
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
