// Package queue defines the message payloads exchanged over the
// broker and the background consumer that processes them.
package queue

// ReservationConfirmedEvent is published when a hold is finalized
// into a durable reservation.  It carries enough information for
// downstream consumers (notification service, analytics) to act
// without querying the primary database.
type ReservationConfirmedEvent struct {
	ReservationID   uint64 `json:"reservation_id"`
	AccountID       uint64 `json:"account_id"`
	SeatID          uint64 `json:"seat_id"`
	TimeSlotID      uint64 `json:"time_slot_id"`
	ReservationDate string `json:"reservation_date"`
	ConfirmedAt     string `json:"confirmed_at"`
}

// ReservationCancelledEvent is published when an active reservation
// is cancelled by its owner or an administrator.
type ReservationCancelledEvent struct {
	ReservationID   uint64 `json:"reservation_id"`
	AccountID       uint64 `json:"account_id"`
	SeatID          uint64 `json:"seat_id"`
	TimeSlotID      uint64 `json:"time_slot_id"`
	ReservationDate string `json:"reservation_date"`
	CancelledBy     string `json:"cancelled_by"` // "owner" or "admin"
	CancelledAt     string `json:"cancelled_at"`
}
