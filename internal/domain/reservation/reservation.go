package reservation

import (
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("reservation: not found")
	ErrInvalidHolder = errors.New("reservation: holder id must be positive")
	ErrInvalidItem   = errors.New("reservation: item id must be positive")
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
)

// Reservation records that a holder owns a reserved item. A row is only
// written after the inventory reserve succeeded, and only cancelled after the
// inventory release succeeded.
type Reservation struct {
	ID          string     `json:"id"`
	HolderID    int64      `json:"holder_id"`
	ItemID      int64      `json:"item_id"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

func New(id string, holderID, itemID int64) (*Reservation, error) {
	if holderID <= 0 {
		return nil, ErrInvalidHolder
	}
	if itemID <= 0 {
		return nil, ErrInvalidItem
	}
	return &Reservation{
		ID:        id,
		HolderID:  holderID,
		ItemID:    itemID,
		Status:    StatusActive,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (r *Reservation) Active() bool { return r.Status == StatusActive }

// Cancel moves an active reservation to cancelled. Cancelling twice reports
// ErrNotFound so a stale release never frees an item twice.
func (r *Reservation) Cancel(at time.Time) error {
	if !r.Active() {
		return ErrNotFound
	}
	at = at.UTC()
	r.Status = StatusCancelled
	r.CancelledAt = &at
	return nil
}
