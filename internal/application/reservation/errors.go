package reservation

import "errors"

// Caller-facing failures of the reservation workflow. Store and transport
// errors are wrapped so errors.Is still reaches the cause.
var (
	ErrNotFound          = errors.New("reservation: not found")
	ErrItemUnavailable   = errors.New("reservation: item unavailable")
	ErrReservationDenied = errors.New("reservation: denied by inventory")
	ErrHolderNotFound    = errors.New("reservation: holder not found")
	ErrInventory         = errors.New("reservation: inventory error")
	ErrInternal          = errors.New("reservation: internal error")

	// ErrOrphanedReservation marks a failed compensation. It is always
	// returned wrapped together with ErrInternal.
	ErrOrphanedReservation = errors.New("reservation: orphaned reservation")
)

// Wire codes returned to API callers.
const (
	CodeNotFound          = "not_found"
	CodeItemUnavailable   = "item_unavailable"
	CodeReservationDenied = "reservation_denied"
	CodeHolderNotFound    = "holder_not_found"
	CodeInventoryError    = "inventory_error"
	CodeInternalError     = "internal_error"
)

// Code maps an error from the coordinator onto its wire code. Unknown errors
// are internal.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInternal), errors.Is(err, ErrOrphanedReservation):
		return CodeInternalError
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrItemUnavailable):
		return CodeItemUnavailable
	case errors.Is(err, ErrReservationDenied):
		return CodeReservationDenied
	case errors.Is(err, ErrHolderNotFound):
		return CodeHolderNotFound
	case errors.Is(err, ErrInventory):
		return CodeInventoryError
	default:
		return CodeInternalError
	}
}
