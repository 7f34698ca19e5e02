package inventory

import (
	"context"
)

// Repository is the availability store. ReserveIfAvailable must be a single
// atomic conditional update: concurrent callers for the same item see exactly
// one success.
type Repository interface {
	Get(ctx context.Context, itemID int64) (*Item, error)
	SetAvailable(ctx context.Context, itemID int64, available bool) error
	ReserveIfAvailable(ctx context.Context, itemID int64) error
	ListUnavailable(ctx context.Context) ([]Item, error)
	Add(ctx context.Context, item Item) error
}
