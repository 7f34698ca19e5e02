package reservation

import "time"

const (
	OrphanUnavailableWithoutReservation  = "unavailable_without_reservation"
	OrphanAvailableWithActiveReservation = "available_with_active_reservation"

	// OrphanReserveOutcomeUnknown marks a reserve whose result never reached
	// the caller; the item may be held with no ledger row.
	OrphanReserveOutcomeUnknown = "reserve_outcome_unknown"
)

// CreatedEvent is emitted once a reservation row is durable.
type CreatedEvent struct {
	ReservationID string    `json:"reservation_id"`
	HolderID      int64     `json:"holder_id"`
	ItemID        int64     `json:"item_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func (CreatedEvent) EventName() string { return "reservation.created" }

func (e CreatedEvent) PartitionKey() int64 { return e.ItemID }

func (e CreatedEvent) EventID() string { return e.ReservationID }

func NewCreatedEvent(r *Reservation) CreatedEvent {
	return CreatedEvent{
		ReservationID: r.ID,
		HolderID:      r.HolderID,
		ItemID:        r.ItemID,
		OccurredAt:    time.Now().UTC(),
	}
}

// CancelledEvent is emitted once a reservation row moved to cancelled.
type CancelledEvent struct {
	ReservationID string    `json:"reservation_id"`
	HolderID      int64     `json:"holder_id"`
	ItemID        int64     `json:"item_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func (CancelledEvent) EventName() string { return "reservation.cancelled" }

func (e CancelledEvent) PartitionKey() int64 { return e.ItemID }

func (e CancelledEvent) EventID() string { return e.ReservationID }

func NewCancelledEvent(r *Reservation) CancelledEvent {
	return CancelledEvent{
		ReservationID: r.ID,
		HolderID:      r.HolderID,
		ItemID:        r.ItemID,
		OccurredAt:    time.Now().UTC(),
	}
}

// OrphanDetectedEvent reports a divergence between inventory and ledger that
// the workflow could not undo itself.
type OrphanDetectedEvent struct {
	Kind          string    `json:"kind"`
	ItemID        int64     `json:"item_id"`
	HolderID      int64     `json:"holder_id,omitempty"`
	ReservationID string    `json:"reservation_id,omitempty"`
	Cause         string    `json:"cause"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func (OrphanDetectedEvent) EventName() string { return "reservation.orphan_detected" }

func (e OrphanDetectedEvent) PartitionKey() int64 { return e.ItemID }
