package hub

import (
	"errors"

	"github.com/libreserve/library-seat-reservation/internal/model"
)

// normalizeDate validates a reservation date and reformats it so
// that structurally equal keys always compare equal.
func normalizeDate(s string) (string, error) {
	return model.NormalizeDate(s)
}

// frameKey builds the contention key from a select/release frame.
func frameKey(f ClientFrame) (model.SeatLookupKey, error) {
	date, err := normalizeDate(f.ReservationDate)
	if err != nil {
		return model.SeatLookupKey{}, err
	}
	if f.SeatID == 0 || f.TimeSlotID == 0 {
		return model.SeatLookupKey{}, errors.New("seat_id and time_slot_id are required")
	}
	return model.SeatLookupKey{
		SeatID:          f.SeatID,
		ReservationDate: date,
		TimeSlotID:      f.TimeSlotID,
	}, nil
}
