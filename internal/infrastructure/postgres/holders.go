package postgres

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	domain "github.com/Zhima-Mochi/libraryhold/internal/domain/holder"
)

type HolderDirectory struct{ s *Store }

func (d *HolderDirectory) Exists(ctx context.Context, holderID int64) (bool, error) {
	query, args, err := build(d.s.builder.From(tableHolders).
		Select(goqu.COUNT(colID)).
		Where(goqu.Ex{colID: holderID}).
		Prepared(true))
	if err != nil {
		return false, err
	}
	var n int64
	if err := d.s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("looking up holder %d: %w", holderID, err)
	}
	return n > 0, nil
}

func (d *HolderDirectory) AddHolder(ctx context.Context, h domain.Holder) error {
	query, args, err := build(d.s.builder.Insert(tableHolders).
		Rows(goqu.Record{colID: h.ID, colName: h.Name}).
		OnConflict(goqu.DoUpdate(colID, goqu.Record{colName: goqu.L("EXCLUDED.name")})).
		Prepared(true))
	if err != nil {
		return err
	}
	if _, err := d.s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upserting holder %d: %w", h.ID, err)
	}
	return nil
}
