package reservation

import (
	"context"

	dominv "github.com/Zhima-Mochi/libraryhold/internal/domain/inventory"
)

// InventoryPort is the inventory service as seen by the workflow. It is
// satisfied in-process by the inventory coordinator and remotely by the HTTP
// client.
type InventoryPort interface {
	CheckAvailability(ctx context.Context, itemID int64) (bool, error)
	Reserve(ctx context.Context, itemID int64) (dominv.Outcome, error)
	Release(ctx context.Context, itemID int64) (dominv.Outcome, error)
}

type ReserveCommand struct {
	HolderID int64
	ItemID   int64
}

type ReleaseCommand struct {
	ReservationID string
}
