package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/libreserve/library-seat-reservation/internal/model"
)

// SeatRepo provides read access to the seats table.  Seats are
// reference data maintained by catalog administration, which lives
// outside this service; the reservation core only validates and
// lists them.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo returns a new SeatRepo bound to the provided database.
func NewSeatRepo(db *sql.DB) *SeatRepo { return &SeatRepo{db: db} }

// GetActiveByID returns one active seat.  ErrSeatNotFound is
// returned for unknown or deactivated seats, so callers can answer
// 404 without inspecting SQL errors.
func (r *SeatRepo) GetActiveByID(ctx context.Context, id uint64) (*model.Seat, error) {
	const q = `SELECT id, room_name, row_label, seat_number, is_active, created_at, updated_at
	           FROM seats WHERE id = ? AND is_active = 1`
	var s model.Seat
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&s.ID, &s.RoomName, &s.RowLabel, &s.SeatNumber, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSeatNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListActive returns all active seats ordered by room, row and
// number, the order a seat map is rendered in.
func (r *SeatRepo) ListActive(ctx context.Context) ([]model.Seat, error) {
	const q = `SELECT id, room_name, row_label, seat_number, is_active, created_at, updated_at
	           FROM seats WHERE is_active = 1
	           ORDER BY room_name, row_label, seat_number`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Seat, 0)
	for rows.Next() {
		var s model.Seat
		if err := rows.Scan(&s.ID, &s.RoomName, &s.RowLabel, &s.SeatNumber, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
