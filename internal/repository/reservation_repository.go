package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/libreserve/library-seat-reservation/internal/model"
)

// ReservationRepo provides access to the reservations table.  A
// reservation row is the durable, confirmed form of a seat claim;
// tentative holds never reach this table.  All timestamps are stored
// in UTC and reservation_date is a DATE column read back as a
// "2006-01-02" string.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the
// provided database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// reservationColumns is the shared select list scanned by scanReservation.
const reservationColumns = `id, account_id, seat_id, time_slot_id,
       DATE_FORMAT(reservation_date, '%Y-%m-%d'), status, created_at, updated_at`

func scanReservation(row interface{ Scan(...any) error }) (*model.Reservation, error) {
	var r model.Reservation
	err := row.Scan(&r.ID, &r.AccountID, &r.SeatID, &r.TimeSlotID,
		&r.ReservationDate, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateActive inserts a new ACTIVE reservation for the given
// account, seat, date and slot.  The duplicate check and the insert
// run in one transaction so two finalizations racing for the same
// key cannot both commit: the second one observes the first row and
// fails with ErrDuplicateReservation.  The created row is returned
// with its generated id and timestamps populated.
func (r *ReservationRepo) CreateActive(ctx context.Context, accountID, seatID, timeSlotID uint64, reservationDate string) (*model.Reservation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	// Lock any existing active row for this key before deciding.
	const dupQ = `SELECT id FROM reservations
	              WHERE seat_id = ? AND time_slot_id = ? AND reservation_date = ? AND status = ?
	              FOR UPDATE`
	var existing uint64
	err = tx.QueryRowContext(ctx, dupQ, seatID, timeSlotID, reservationDate, model.ReservationStatusActive).Scan(&existing)
	switch {
	case err == nil:
		return nil, ErrDuplicateReservation
	case !errors.Is(err, sql.ErrNoRows):
		return nil, err
	}

	const insQ = `INSERT INTO reservations (account_id, seat_id, time_slot_id, reservation_date, status)
	              VALUES (?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, insQ, accountID, seatID, timeSlotID, reservationDate, model.ReservationStatusActive)
	if err != nil {
		return nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	// Read the full row back to pick up the DB-generated timestamps.
	created, err := scanReservation(tx.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return created, nil
}

// GetByID returns one reservation.  ErrReservationNotFound is
// returned when no row exists.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	res, err := scanReservation(r.db.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Cancel transitions one ACTIVE reservation to CANCELLED on behalf
// of its owning account, or of an administrator when isAdmin is set.
// The guard runs inside a transaction: the row is locked, ownership
// checked, and the UPDATE only matches status ACTIVE so a repeat
// cancel (or a cancel racing the completion sweep) fails with
// ErrConflict rather than silently rewriting a terminal state.
func (r *ReservationRepo) Cancel(ctx context.Context, id, accountID uint64, isAdmin bool) (*model.Reservation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := scanReservation(tx.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ? FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}
	if !isAdmin && res.AccountID != accountID {
		return nil, ErrForbidden
	}
	if res.Status != model.ReservationStatusActive {
		return nil, ErrConflict
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE reservations SET status = ? WHERE id = ? AND status = ?`,
		model.ReservationStatusCancelled, id, model.ReservationStatusActive)
	if err != nil {
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrConflict
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	res.Status = model.ReservationStatusCancelled
	return res, nil
}

// ListActiveBySlot returns all ACTIVE reservations for one date and
// time slot, ordered by seat for deterministic output.  Used to
// paint the "booked" layer of the seat map.
func (r *ReservationRepo) ListActiveBySlot(ctx context.Context, reservationDate string, timeSlotID uint64) ([]model.Reservation, error) {
	const q = `SELECT ` + reservationColumns + ` FROM reservations
	           WHERE reservation_date = ? AND time_slot_id = ? AND status = ?
	           ORDER BY seat_id`
	rows, err := r.db.QueryContext(ctx, q, reservationDate, timeSlotID, model.ReservationStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Reservation, 0)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ActiveSeatKeys returns just the lookup keys of the ACTIVE
// reservations for one slot.  This is the durable half of the join
// snapshot the hub sends to a newly joined client.
func (r *ReservationRepo) ActiveSeatKeys(ctx context.Context, reservationDate string, timeSlotID uint64) ([]model.SeatLookupKey, error) {
	reservations, err := r.ListActiveBySlot(ctx, reservationDate, timeSlotID)
	if err != nil {
		return nil, err
	}
	keys := make([]model.SeatLookupKey, 0, len(reservations))
	for i := range reservations {
		keys = append(keys, reservations[i].Key())
	}
	return keys, nil
}

// ListByAccount returns all reservations belonging to one account,
// newest first.
func (r *ReservationRepo) ListByAccount(ctx context.Context, accountID uint64) ([]model.Reservation, error) {
	const q = `SELECT ` + reservationColumns + ` FROM reservations
	           WHERE account_id = ? ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, q, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Reservation, 0)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CompletePast flips ACTIVE reservations whose slot end time has
// passed to COMPLETED and reports how many rows changed.  Driven by
// the background completion sweep.
func (r *ReservationRepo) CompletePast(ctx context.Context) (int64, error) {
	const q = `UPDATE reservations r
	           JOIN time_slots t ON t.id = r.time_slot_id
	           SET r.status = ?
	           WHERE r.status = ?
	             AND STR_TO_DATE(CONCAT(DATE_FORMAT(r.reservation_date, '%Y-%m-%d'), ' ', t.ends_at), '%Y-%m-%d %H:%i:%s') <= UTC_TIMESTAMP()`
	result, err := r.db.ExecContext(ctx, q, model.ReservationStatusCompleted, model.ReservationStatusActive)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
