package model

import (
	"errors"
	"time"
)

// DateLayout is the wire and storage format for reservation dates.
const DateLayout = "2006-01-02"

// NormalizeDate validates a reservation date string and reformats it
// so that two representations of the same calendar day always
// produce structurally equal SeatLookupKeys.
func NormalizeDate(s string) (string, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", errors.New("invalid reservation date, want YYYY-MM-DD")
	}
	return t.Format(DateLayout), nil
}
