package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/libreserve/library-seat-reservation/internal/model"
)

// TimeSlotRepo provides read access to the time_slots table.  Like
// seats, slots are reference data owned by catalog administration.
type TimeSlotRepo struct {
	db *sql.DB
}

// NewTimeSlotRepo returns a new TimeSlotRepo bound to the provided
// database.
func NewTimeSlotRepo(db *sql.DB) *TimeSlotRepo { return &TimeSlotRepo{db: db} }

// GetActiveByID returns one active time slot.  ErrTimeSlotNotFound
// is returned for unknown or deactivated slots.
func (r *TimeSlotRepo) GetActiveByID(ctx context.Context, id uint64) (*model.TimeSlot, error) {
	const q = `SELECT id, TIME_FORMAT(starts_at, '%H:%i:%s'), TIME_FORMAT(ends_at, '%H:%i:%s'),
	                  is_active, created_at, updated_at
	           FROM time_slots WHERE id = ? AND is_active = 1`
	var t model.TimeSlot
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&t.ID, &t.StartsAt, &t.EndsAt, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTimeSlotNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListActive returns all active slots in chronological order.
func (r *TimeSlotRepo) ListActive(ctx context.Context) ([]model.TimeSlot, error) {
	const q = `SELECT id, TIME_FORMAT(starts_at, '%H:%i:%s'), TIME_FORMAT(ends_at, '%H:%i:%s'),
	                  is_active, created_at, updated_at
	           FROM time_slots WHERE is_active = 1
	           ORDER BY starts_at`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.TimeSlot, 0)
	for rows.Next() {
		var t model.TimeSlot
		if err := rows.Scan(&t.ID, &t.StartsAt, &t.EndsAt, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
