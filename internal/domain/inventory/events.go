package inventory

import "time"

// ItemReservedEvent is emitted after an item flipped from available to unavailable.
type ItemReservedEvent struct {
	ItemID     int64     `json:"item_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (ItemReservedEvent) EventName() string { return "inventory.item_reserved" }

func (e ItemReservedEvent) PartitionKey() int64 { return e.ItemID }

func NewItemReservedEvent(itemID int64) ItemReservedEvent {
	return ItemReservedEvent{ItemID: itemID, OccurredAt: time.Now().UTC()}
}

// ItemReleasedEvent is emitted after an item was set available again.
type ItemReleasedEvent struct {
	ItemID     int64     `json:"item_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (ItemReleasedEvent) EventName() string { return "inventory.item_released" }

func (e ItemReleasedEvent) PartitionKey() int64 { return e.ItemID }

func NewItemReleasedEvent(itemID int64) ItemReleasedEvent {
	return ItemReleasedEvent{ItemID: itemID, OccurredAt: time.Now().UTC()}
}
