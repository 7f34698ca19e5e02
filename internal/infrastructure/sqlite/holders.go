package sqlite

import (
	"context"
	"fmt"

	domain "github.com/Zhima-Mochi/libraryhold/internal/domain/holder"
)

type HolderDirectory struct{ s *Store }

func (d *HolderDirectory) Exists(ctx context.Context, holderID int64) (bool, error) {
	var n int
	err := d.s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM holders WHERE id = ?", holderID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("looking up holder %d: %w", holderID, err)
	}
	return n > 0, nil
}

func (d *HolderDirectory) AddHolder(ctx context.Context, h domain.Holder) error {
	_, err := d.s.db.ExecContext(ctx,
		"INSERT INTO holders (id, name) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET name = excluded.name",
		h.ID, h.Name,
	)
	if err != nil {
		return fmt.Errorf("upserting holder %d: %w", h.ID, err)
	}
	return nil
}
