package reservation

import "context"

// Ledger persists reservation records.
type Ledger interface {
	Create(ctx context.Context, holderID, itemID int64) (*Reservation, error)
	// Get returns active reservations only; cancelled ones report ErrNotFound.
	Get(ctx context.Context, id string) (*Reservation, error)
	// Cancel is a conditional active -> cancelled transition.
	Cancel(ctx context.Context, id string) error
	ListByHolder(ctx context.Context, holderID int64) ([]Reservation, error)
	ListActive(ctx context.Context) ([]Reservation, error)
}

// IDGenerator produces reservation ids.
type IDGenerator interface {
	NewID() string
}
