package model

import "time"

// TimeSlot describes a bookable period of the day, e.g. 09:00–12:00.
// Slots are static reference data; a reservation always pairs a slot
// with a calendar date.  StartsAt and EndsAt are clock times stored
// as "HH:MM:SS" strings because they repeat every day.
//
// Fields:
//  ID        – primary key identifier.
//  StartsAt  – slot start time of day.
//  EndsAt    – slot end time of day.
//  IsActive  – whether the slot is currently offered.
//  CreatedAt – creation timestamp.
//  UpdatedAt – last update timestamp.
type TimeSlot struct {
	ID        uint64    // time_slots.id
	StartsAt  string    // time_slots.starts_at
	EndsAt    string    // time_slots.ends_at
	IsActive  bool      // time_slots.is_active
	CreatedAt time.Time // time_slots.created_at
	UpdatedAt time.Time // time_slots.updated_at
}
