// Package repository provides data access to the durable MySQL
// store.  This file defines sentinel errors reused across the
// repositories so handlers can translate failure scenarios into
// distinct HTTP statuses with errors.Is.
package repository

import "errors"

// ErrForbidden is returned when the caller attempts an operation on
// a resource owned by someone else.  Handlers translate this into
// HTTP 403.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a state transition cannot be
// performed, such as cancelling a reservation that is no longer
// active.  Handlers translate this into HTTP 409.
var ErrConflict = errors.New("conflict")

// ErrDuplicateReservation is returned when an active reservation
// already exists for the requested seat, date and time slot.  It
// defends the finalization path against a hold that outlived a
// prior successful commit.
var ErrDuplicateReservation = errors.New("duplicate active reservation")

// ErrReservationNotFound is returned when no reservation exists for
// the requested id.
var ErrReservationNotFound = errors.New("reservation not found")

// ErrSeatNotFound is returned when the requested seat does not exist
// or is inactive.
var ErrSeatNotFound = errors.New("seat not found")

// ErrTimeSlotNotFound is returned when the requested time slot does
// not exist or is inactive.
var ErrTimeSlotNotFound = errors.New("time slot not found")
