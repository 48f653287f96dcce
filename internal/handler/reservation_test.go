package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libreserve/library-seat-reservation/internal/model"
	"github.com/libreserve/library-seat-reservation/internal/repository"
	"github.com/libreserve/library-seat-reservation/internal/store"
)

type fakeReservationStore struct {
	nextID    uint64
	created   []model.Reservation
	createErr error

	byID      map[uint64]*model.Reservation
	cancelErr error

	bySlot  []model.Reservation
	listErr error
}

func (f *fakeReservationStore) CreateActive(_ context.Context, accountID, seatID, timeSlotID uint64, date string) (*model.Reservation, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	r := model.Reservation{
		ID: f.nextID, AccountID: accountID, SeatID: seatID, TimeSlotID: timeSlotID,
		ReservationDate: date, Status: model.ReservationStatusActive,
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	f.created = append(f.created, r)
	return &r, nil
}

func (f *fakeReservationStore) GetByID(_ context.Context, id uint64) (*model.Reservation, error) {
	r, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrReservationNotFound
	}
	return r, nil
}

func (f *fakeReservationStore) Cancel(_ context.Context, id, accountID uint64, isAdmin bool) (*model.Reservation, error) {
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	r, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrReservationNotFound
	}
	if !isAdmin && r.AccountID != accountID {
		return nil, repository.ErrForbidden
	}
	if r.Status != model.ReservationStatusActive {
		return nil, repository.ErrConflict
	}
	out := *r
	out.Status = model.ReservationStatusCancelled
	return &out, nil
}

func (f *fakeReservationStore) ListActiveBySlot(_ context.Context, date string, slotID uint64) ([]model.Reservation, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := []model.Reservation{}
	for _, r := range f.bySlot {
		if r.ReservationDate == date && r.TimeSlotID == slotID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeReservationStore) ListByAccount(_ context.Context, accountID uint64) ([]model.Reservation, error) {
	out := []model.Reservation{}
	for _, r := range f.bySlot {
		if r.AccountID == accountID {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeSeatCatalog struct{ known map[uint64]bool }

func (f *fakeSeatCatalog) GetActiveByID(_ context.Context, id uint64) (*model.Seat, error) {
	if !f.known[id] {
		return nil, repository.ErrSeatNotFound
	}
	return &model.Seat{ID: id, IsActive: true}, nil
}

type fakeSlotCatalog struct{ known map[uint64]bool }

func (f *fakeSlotCatalog) GetActiveByID(_ context.Context, id uint64) (*model.TimeSlot, error) {
	if !f.known[id] {
		return nil, repository.ErrTimeSlotNotFound
	}
	return &model.TimeSlot{ID: id, IsActive: true}, nil
}

type fakeBroadcaster struct {
	reserved  []model.SeatLookupKey
	cancelled []model.SeatLookupKey
}

func (f *fakeBroadcaster) BroadcastReserved(key model.SeatLookupKey)  { f.reserved = append(f.reserved, key) }
func (f *fakeBroadcaster) BroadcastCancelled(key model.SeatLookupKey) { f.cancelled = append(f.cancelled, key) }

type fixture struct {
	h     *ReservationHandler
	res   *fakeReservationStore
	holds *store.MemoryHoldStore
	bc    *fakeBroadcaster
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	res := &fakeReservationStore{byID: map[uint64]*model.Reservation{}}
	holds := store.NewMemoryHoldStore(time.Minute, nil)
	t.Cleanup(holds.Close)
	bc := &fakeBroadcaster{}
	h := NewReservationHandler(res,
		&fakeSeatCatalog{known: map[uint64]bool{5: true, 7: true}},
		&fakeSlotCatalog{known: map[uint64]bool{3: true}},
		holds, bc, nil)
	return &fixture{h: h, res: res, holds: holds, bc: bc}
}

// request builds an echo context with an authenticated MEMBER
// account already injected, the way the JWT middleware would.
func request(method, target, body string, header map[string]string, accountID uint64, role string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user_id", float64(accountID))
	c.Set("role", role)
	return c, rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

const createBody = `{"seat_id":5,"reservation_date":"2025-01-10","time_slot_id":3}`

var key5 = model.SeatLookupKey{SeatID: 5, ReservationDate: "2025-01-10", TimeSlotID: 3}

func TestCreateFinalizesHeldSeat(t *testing.T) {
	f := newFixture(t)
	granted, _ := f.holds.TrySelectSeat(key5, "conn-1")
	require.True(t, granted)

	c, rec := request(http.MethodPost, "/v1/reservations", createBody,
		map[string]string{connectionIDHeader: "conn-1"}, 42, "MEMBER")
	require.NoError(t, f.h.Create(c))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, model.ReservationStatusActive, body["status"])
	assert.EqualValues(t, 42, body["account_id"])

	require.Len(t, f.res.created, 1)
	assert.Equal(t, key5, f.res.created[0].Key())

	// The hold has served its purpose and the group was told.
	_, held := f.holds.GetSeatHolder(key5)
	assert.False(t, held)
	assert.Equal(t, []model.SeatLookupKey{key5}, f.bc.reserved)
}

func TestCreateRejectsWrongHolder(t *testing.T) {
	f := newFixture(t)
	granted, _ := f.holds.TrySelectSeat(key5, "conn-1")
	require.True(t, granted)

	c, rec := request(http.MethodPost, "/v1/reservations", createBody,
		map[string]string{connectionIDHeader: "conn-2"}, 42, "MEMBER")
	require.NoError(t, f.h.Create(c))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "seat_held_by_other", decodeBody(t, rec)["error"])
	assert.Empty(t, f.res.created, "mismatch must not persist anything")

	holder, held := f.holds.GetSeatHolder(key5)
	require.True(t, held)
	assert.Equal(t, "conn-1", holder, "the real holder keeps the seat")
}

func TestCreateRejectsExpiredHold(t *testing.T) {
	f := newFixture(t)

	c, rec := request(http.MethodPost, "/v1/reservations", createBody,
		map[string]string{connectionIDHeader: "conn-1"}, 42, "MEMBER")
	require.NoError(t, f.h.Create(c))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "hold_expired", decodeBody(t, rec)["error"])
	assert.Empty(t, f.res.created)
	assert.Empty(t, f.bc.reserved)
}

func TestCreateRejectsDuplicateActiveReservation(t *testing.T) {
	f := newFixture(t)
	f.res.createErr = repository.ErrDuplicateReservation
	granted, _ := f.holds.TrySelectSeat(key5, "conn-1")
	require.True(t, granted)

	c, rec := request(http.MethodPost, "/v1/reservations", createBody,
		map[string]string{connectionIDHeader: "conn-1"}, 42, "MEMBER")
	require.NoError(t, f.h.Create(c))

	assert.Equal(t, http.StatusConflict, rec.Code)
	// Distinct rejection reason: the seat is durably booked, not
	// merely held by someone else.
	assert.Equal(t, "already_reserved", decodeBody(t, rec)["error"])
}

func TestCreateLeavesHoldIntactOnStoreFailure(t *testing.T) {
	f := newFixture(t)
	f.res.createErr = context.DeadlineExceeded
	granted, _ := f.holds.TrySelectSeat(key5, "conn-1")
	require.True(t, granted)

	c, rec := request(http.MethodPost, "/v1/reservations", createBody,
		map[string]string{connectionIDHeader: "conn-1"}, 42, "MEMBER")
	require.NoError(t, f.h.Create(c))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	holder, held := f.holds.GetSeatHolder(key5)
	require.True(t, held, "hold must survive a failed durable write so the user can retry")
	assert.Equal(t, "conn-1", holder)
	assert.Empty(t, f.bc.reserved)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)

	// Missing connection id.
	c, rec := request(http.MethodPost, "/v1/reservations", createBody, nil, 42, "MEMBER")
	require.NoError(t, f.h.Create(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown seat.
	c, rec = request(http.MethodPost, "/v1/reservations",
		`{"seat_id":999,"reservation_date":"2025-01-10","time_slot_id":3}`,
		map[string]string{connectionIDHeader: "conn-1"}, 42, "MEMBER")
	require.NoError(t, f.h.Create(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Unknown slot.
	c, rec = request(http.MethodPost, "/v1/reservations",
		`{"seat_id":5,"reservation_date":"2025-01-10","time_slot_id":99}`,
		map[string]string{connectionIDHeader: "conn-1"}, 42, "MEMBER")
	require.NoError(t, f.h.Create(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Malformed date.
	c, rec = request(http.MethodPost, "/v1/reservations",
		`{"seat_id":5,"reservation_date":"10/01/2025","time_slot_id":3}`,
		map[string]string{connectionIDHeader: "conn-1"}, 42, "MEMBER")
	require.NoError(t, f.h.Create(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelByOwner(t *testing.T) {
	f := newFixture(t)
	f.res.byID[9] = &model.Reservation{
		ID: 9, AccountID: 42, SeatID: 5, TimeSlotID: 3,
		ReservationDate: "2025-01-10", Status: model.ReservationStatusActive,
	}

	c, rec := request(http.MethodPatch, "/v1/reservations/9/cancel", "", nil, 42, "MEMBER")
	c.SetParamNames("id")
	c.SetParamValues("9")
	require.NoError(t, f.h.Cancel(c))

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.ReservationStatusCancelled, decodeBody(t, rec)["status"])
	assert.Equal(t, []model.SeatLookupKey{key5}, f.bc.cancelled)
}

func TestCancelByAdminOnForeignReservation(t *testing.T) {
	f := newFixture(t)
	f.res.byID[9] = &model.Reservation{
		ID: 9, AccountID: 42, SeatID: 5, TimeSlotID: 3,
		ReservationDate: "2025-01-10", Status: model.ReservationStatusActive,
	}

	c, rec := request(http.MethodPatch, "/v1/reservations/9/cancel", "", nil, 1, "ADMIN")
	c.SetParamNames("id")
	c.SetParamValues("9")
	require.NoError(t, f.h.Cancel(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCancelRejections(t *testing.T) {
	f := newFixture(t)
	f.res.byID[9] = &model.Reservation{
		ID: 9, AccountID: 42, SeatID: 5, TimeSlotID: 3,
		ReservationDate: "2025-01-10", Status: model.ReservationStatusActive,
	}
	f.res.byID[10] = &model.Reservation{
		ID: 10, AccountID: 42, SeatID: 7, TimeSlotID: 3,
		ReservationDate: "2025-01-10", Status: model.ReservationStatusCancelled,
	}

	// Foreign account, not admin.
	c, rec := request(http.MethodPatch, "/v1/reservations/9/cancel", "", nil, 7, "MEMBER")
	c.SetParamNames("id")
	c.SetParamValues("9")
	require.NoError(t, f.h.Cancel(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Already cancelled: terminal states stay terminal.
	c, rec = request(http.MethodPatch, "/v1/reservations/10/cancel", "", nil, 42, "MEMBER")
	c.SetParamNames("id")
	c.SetParamValues("10")
	require.NoError(t, f.h.Cancel(c))
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Unknown id.
	c, rec = request(http.MethodPatch, "/v1/reservations/99/cancel", "", nil, 42, "MEMBER")
	c.SetParamNames("id")
	c.SetParamValues("99")
	require.NoError(t, f.h.Cancel(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Empty(t, f.bc.cancelled, "rejected cancels must not broadcast")
}

func TestListBySlot(t *testing.T) {
	f := newFixture(t)
	f.res.bySlot = []model.Reservation{
		{ID: 1, AccountID: 42, SeatID: 5, TimeSlotID: 3, ReservationDate: "2025-01-10", Status: model.ReservationStatusActive},
		{ID: 2, AccountID: 43, SeatID: 7, TimeSlotID: 3, ReservationDate: "2025-01-11", Status: model.ReservationStatusActive},
	}

	c, rec := request(http.MethodGet, "/v1/reservations?date=2025-01-10&time_slot_id=3", "", nil, 0, "")
	require.NoError(t, f.h.ListBySlot(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	list := body["reservations"].([]any)
	require.Len(t, list, 1)
	assert.EqualValues(t, 5, list[0].(map[string]any)["seat_id"])
}

func TestGetEnforcesOwnership(t *testing.T) {
	f := newFixture(t)
	f.res.byID[9] = &model.Reservation{
		ID: 9, AccountID: 42, SeatID: 5, TimeSlotID: 3,
		ReservationDate: "2025-01-10", Status: model.ReservationStatusActive,
	}

	c, rec := request(http.MethodGet, "/v1/reservations/9", "", nil, 7, "MEMBER")
	c.SetParamNames("id")
	c.SetParamValues("9")
	require.NoError(t, f.h.Get(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	c, rec = request(http.MethodGet, "/v1/reservations/9", "", nil, 7, "ADMIN")
	c.SetParamNames("id")
	c.SetParamValues("9")
	require.NoError(t, f.h.Get(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}
