// Package queue defines message payloads exchanged over the message broker.
package queue

// BookingLifecycleEvent is published after every successful booking status
// transition.  It carries enough information for downstream consumers to
// log, notify, or trigger analytics without querying the primary database.
type BookingLifecycleEvent struct {
	EventID    string `json:"event_id"`
	BookingID  uint64 `json:"booking_id"`
	ItemID     uint64 `json:"item_id"`
	ItemTitle  string `json:"item_title,omitempty"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
	Event      string `json:"event"`
	Actor      string `json:"actor"`
	OccurredAt string `json:"occurred_at"`
}
