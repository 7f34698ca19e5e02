package inventory

import (
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("inventory: item not found")
	ErrAlreadyReserved = errors.New("inventory: item already reserved")
	ErrInvalidID       = errors.New("inventory: item id must be positive")
)

const (
	ReasonNotFound        = "not_found"
	ReasonAlreadyReserved = "already_reserved"
)

// Item is a single-unit inventory entry. Available flips to false on reserve
// and back to true on release.
type Item struct {
	ID        int64
	Available bool
	UpdatedAt time.Time
}

func NewItem(id int64) (*Item, error) {
	if id <= 0 {
		return nil, ErrInvalidID
	}
	return &Item{
		ID:        id,
		Available: true,
		UpdatedAt: time.Now().UTC(),
	}, nil
}

// Outcome is the result of a reserve or release attempt that reached the store.
// Success=false carries a Reason; transport and store failures are errors instead.
type Outcome struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

func Succeeded() Outcome { return Outcome{Success: true} }

func Failed(reason string) Outcome { return Outcome{Reason: reason} }

// OutcomeFromError maps store sentinels onto a failed Outcome. Errors that are
// not store verdicts are returned unchanged.
func OutcomeFromError(err error) (Outcome, error) {
	switch {
	case err == nil:
		return Succeeded(), nil
	case errors.Is(err, ErrNotFound):
		return Failed(ReasonNotFound), nil
	case errors.Is(err, ErrAlreadyReserved):
		return Failed(ReasonAlreadyReserved), nil
	default:
		return Outcome{}, err
	}
}
