package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libreserve/library-seat-reservation/internal/model"
	"github.com/libreserve/library-seat-reservation/internal/store"
)

// fakeReservations serves a canned set of active reservations.
type fakeReservations struct {
	keys []model.SeatLookupKey
	err  error
}

func (f *fakeReservations) ActiveSeatKeys(_ context.Context, date string, slotID uint64) ([]model.SeatLookupKey, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := []model.SeatLookupKey{}
	for _, k := range f.keys {
		if k.ReservationDate == date && k.TimeSlotID == slotID {
			out = append(out, k)
		}
	}
	return out, nil
}

// newTestClient registers a client without a real websocket; frames
// pushed to it pile up in the send buffer where tests read them.
func newTestClient(h *Hub, id string) *Client {
	c := &Client{ID: id, hub: h, send: make(chan []byte, sendBufferSize)}
	h.mu.Lock()
	h.clients[id] = c
	h.mu.Unlock()
	return c
}

func newTestHub(t *testing.T, ttl time.Duration, res ReservationReader) (*Hub, *store.MemoryHoldStore) {
	t.Helper()
	h := New(res)
	s := store.NewMemoryHoldStore(ttl, h.BroadcastReleased)
	h.SetHoldStore(s)
	t.Cleanup(func() {
		h.Close()
		s.Close()
	})
	return h, s
}

// recvFrame reads one frame from a client with a timeout and decodes
// it into a generic map.
func recvFrame(t *testing.T, c *Client) map[string]any {
	t.Helper()
	select {
	case raw, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		var m map[string]any
		require.NoError(t, json.Unmarshal(raw, &m))
		return m
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func assertNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.send:
		t.Fatalf("unexpected frame: %s", raw)
	case <-time.After(50 * time.Millisecond):
	}
}

func joinFrame(date string, slot uint64) ClientFrame {
	return ClientFrame{Action: ActionJoinGroup, ReservationDate: date, TimeSlotID: slot}
}

func seatFrame(action string, seat uint64, date string, slot uint64) ClientFrame {
	return ClientFrame{Action: action, SeatID: seat, ReservationDate: date, TimeSlotID: slot}
}

func TestJoinGroupAnswersWithSnapshot(t *testing.T) {
	res := &fakeReservations{keys: []model.SeatLookupKey{
		{SeatID: 11, ReservationDate: "2025-01-10", TimeSlotID: 3},
		{SeatID: 12, ReservationDate: "2025-01-11", TimeSlotID: 3}, // other day, filtered out
	}}
	h, s := newTestHub(t, time.Minute, res)

	holder := newTestClient(h, "holder")
	granted, _ := s.TrySelectSeat(model.SeatLookupKey{SeatID: 5, ReservationDate: "2025-01-10", TimeSlotID: 3}, holder.ID)
	require.True(t, granted)

	c := newTestClient(h, "viewer")
	h.handleFrame(c, joinFrame("2025-01-10", 3))

	snap := recvFrame(t, c)
	assert.Equal(t, EventGroupSnapshot, snap["event"])
	held := snap["held"].([]any)
	require.Len(t, held, 1)
	assert.EqualValues(t, 5, held[0].(map[string]any)["seat_id"])
	reserved := snap["reserved"].([]any)
	require.Len(t, reserved, 1)
	assert.EqualValues(t, 11, reserved[0].(map[string]any)["seat_id"])
}

func TestSelectSeatBroadcastsToGroupExceptCaller(t *testing.T) {
	h, _ := newTestHub(t, time.Minute, nil)

	a := newTestClient(h, "conn-a")
	b := newTestClient(h, "conn-b")
	outsider := newTestClient(h, "conn-c")
	h.handleFrame(a, joinFrame("2025-01-10", 3))
	h.handleFrame(b, joinFrame("2025-01-10", 3))
	h.handleFrame(outsider, joinFrame("2025-01-10", 4))
	recvFrame(t, a)
	recvFrame(t, b)
	recvFrame(t, outsider)

	h.handleFrame(a, seatFrame(ActionSelectSeat, 5, "2025-01-10", 3))

	got := recvFrame(t, b)
	assert.Equal(t, EventSeatSelected, got["event"])
	assert.EqualValues(t, 5, got["seat_id"])
	assert.Equal(t, "conn-a", got["holder_id"])

	assertNoFrame(t, a)
	assertNoFrame(t, outsider)
}

func TestLosingSelectAnswersCallerOnly(t *testing.T) {
	h, _ := newTestHub(t, time.Minute, nil)

	a := newTestClient(h, "conn-a")
	b := newTestClient(h, "conn-b")
	h.handleFrame(a, joinFrame("2025-01-10", 3))
	h.handleFrame(b, joinFrame("2025-01-10", 3))
	recvFrame(t, a)
	recvFrame(t, b)

	h.handleFrame(a, seatFrame(ActionSelectSeat, 5, "2025-01-10", 3))
	recvFrame(t, b) // seat_selected

	h.handleFrame(b, seatFrame(ActionSelectSeat, 5, "2025-01-10", 3))
	got := recvFrame(t, b)
	assert.Equal(t, EventSeatAlreadySelected, got["event"])
	assert.Equal(t, "conn-a", got["holder_id"])
	assertNoFrame(t, a)
}

func TestExplicitReleaseBroadcasts(t *testing.T) {
	h, s := newTestHub(t, time.Minute, nil)

	a := newTestClient(h, "conn-a")
	b := newTestClient(h, "conn-b")
	h.handleFrame(a, joinFrame("2025-01-10", 3))
	h.handleFrame(b, joinFrame("2025-01-10", 3))
	recvFrame(t, a)
	recvFrame(t, b)

	h.handleFrame(a, seatFrame(ActionSelectSeat, 5, "2025-01-10", 3))
	recvFrame(t, b)

	// A release by someone who does not own the hold changes nothing.
	h.handleFrame(b, seatFrame(ActionReleaseSeat, 5, "2025-01-10", 3))
	assertNoFrame(t, a)

	h.handleFrame(a, seatFrame(ActionReleaseSeat, 5, "2025-01-10", 3))
	got := recvFrame(t, b)
	assert.Equal(t, EventSeatReleased, got["event"])
	assert.EqualValues(t, 5, got["seat_id"])

	_, held := s.GetSeatHolder(model.SeatLookupKey{SeatID: 5, ReservationDate: "2025-01-10", TimeSlotID: 3})
	assert.False(t, held)
}

func TestDisconnectReleasesHoldAndBroadcasts(t *testing.T) {
	h, s := newTestHub(t, time.Minute, nil)

	a := newTestClient(h, "conn-a")
	b := newTestClient(h, "conn-b")
	h.handleFrame(a, joinFrame("2025-01-10", 3))
	h.handleFrame(b, joinFrame("2025-01-10", 3))
	recvFrame(t, a)
	recvFrame(t, b)

	h.handleFrame(a, seatFrame(ActionSelectSeat, 7, "2025-01-10", 3))
	recvFrame(t, b)

	h.Disconnect(a)

	got := recvFrame(t, b)
	assert.Equal(t, EventSeatReleased, got["event"])
	assert.EqualValues(t, 7, got["seat_id"])

	_, held := s.GetSeatHolder(model.SeatLookupKey{SeatID: 7, ReservationDate: "2025-01-10", TimeSlotID: 3})
	assert.False(t, held, "hold must be released immediately on disconnect, not after the TTL")
}

func TestExpiryBroadcastsReleasedToGroup(t *testing.T) {
	h, _ := newTestHub(t, 30*time.Millisecond, nil)

	a := newTestClient(h, "conn-a")
	b := newTestClient(h, "conn-b")
	h.handleFrame(a, joinFrame("2025-01-10", 3))
	h.handleFrame(b, joinFrame("2025-01-10", 3))
	recvFrame(t, a)
	recvFrame(t, b)

	h.handleFrame(a, seatFrame(ActionSelectSeat, 5, "2025-01-10", 3))
	recvFrame(t, b)

	// The untouched hold lapses; both group members learn about it,
	// the former owner included.
	got := recvFrame(t, b)
	assert.Equal(t, EventSeatReleased, got["event"])
	got = recvFrame(t, a)
	assert.Equal(t, EventSeatReleased, got["event"])
}

func TestSwitchingGroupsStopsStaleEvents(t *testing.T) {
	h, _ := newTestHub(t, time.Minute, nil)

	a := newTestClient(h, "conn-a")
	b := newTestClient(h, "conn-b")
	h.handleFrame(a, joinFrame("2025-01-10", 3))
	h.handleFrame(b, joinFrame("2025-01-10", 3))
	recvFrame(t, a)
	recvFrame(t, b)

	// b moves to another slot; the old group must forget it.
	h.handleFrame(b, joinFrame("2025-01-10", 4))
	recvFrame(t, b)

	h.handleFrame(a, seatFrame(ActionSelectSeat, 5, "2025-01-10", 3))
	assertNoFrame(t, b)
}

func TestBroadcastReservedAndCancelled(t *testing.T) {
	h, _ := newTestHub(t, time.Minute, nil)

	c := newTestClient(h, "conn-a")
	h.handleFrame(c, joinFrame("2025-01-10", 3))
	recvFrame(t, c)

	key := model.SeatLookupKey{SeatID: 5, ReservationDate: "2025-01-10", TimeSlotID: 3}
	h.BroadcastReserved(key)
	got := recvFrame(t, c)
	assert.Equal(t, EventSeatReserved, got["event"])

	h.BroadcastCancelled(key)
	got = recvFrame(t, c)
	assert.Equal(t, EventSeatCancelled, got["event"])
}

func TestStaleClientEvictionReleasesHold(t *testing.T) {
	h, s := newTestHub(t, time.Minute, nil)

	victim := newTestClient(h, "victim")
	watcher := newTestClient(h, "watcher")
	h.handleFrame(victim, joinFrame("2025-01-10", 3))
	h.handleFrame(watcher, joinFrame("2025-01-10", 3))
	recvFrame(t, victim)
	recvFrame(t, watcher)

	key := model.SeatLookupKey{SeatID: 5, ReservationDate: "2025-01-10", TimeSlotID: 3}
	granted, _ := s.TrySelectSeat(key, victim.ID)
	require.True(t, granted)

	// The victim stops draining its buffer.
	for len(victim.send) < sendBufferSize {
		victim.send <- []byte("{}")
	}

	// The next broadcast evicts it; the hold must go with it rather
	// than sit locked until the TTL.
	h.handleFrame(watcher, seatFrame(ActionSelectSeat, 6, "2025-01-10", 3))

	_, held := s.GetSeatHolder(key)
	assert.False(t, held, "evicted connection must not keep its seat locked")

	got := recvFrame(t, watcher)
	assert.Equal(t, EventSeatReleased, got["event"])
	assert.EqualValues(t, 5, got["seat_id"])

	// The pump-driven teardown that follows the eviction finds the
	// client already gone and must not release anything else.
	h.Disconnect(victim)
	assertNoFrame(t, watcher)
}

func TestPushToStuckClientEvictsAndReleases(t *testing.T) {
	h, s := newTestHub(t, time.Minute, nil)

	victim := newTestClient(h, "victim")
	watcher := newTestClient(h, "watcher")
	h.handleFrame(victim, joinFrame("2025-01-10", 3))
	h.handleFrame(watcher, joinFrame("2025-01-10", 3))
	recvFrame(t, victim)
	recvFrame(t, watcher)

	key := model.SeatLookupKey{SeatID: 5, ReservationDate: "2025-01-10", TimeSlotID: 3}
	granted, _ := s.TrySelectSeat(key, victim.ID)
	require.True(t, granted)

	for len(victim.send) < sendBufferSize {
		victim.send <- []byte("{}")
	}

	// A single-client frame cannot be delivered either; same policy
	// as broadcast.
	h.sendError(victim, "unknown action")

	h.mu.Lock()
	_, registered := h.clients[victim.ID]
	h.mu.Unlock()
	assert.False(t, registered, "stuck client must be dropped from the registry")

	_, held := s.GetSeatHolder(key)
	assert.False(t, held)

	got := recvFrame(t, watcher)
	assert.Equal(t, EventSeatReleased, got["event"])
}

func TestSnapshotReportsCallersOwnHold(t *testing.T) {
	h, _ := newTestHub(t, time.Minute, nil)

	a := newTestClient(h, "conn-a")
	h.handleFrame(a, joinFrame("2025-01-10", 3))
	recvFrame(t, a)
	h.handleFrame(a, seatFrame(ActionSelectSeat, 5, "2025-01-10", 3))

	// Rejoining the group restores the caller's own selection so the
	// UI can pick its countdown back up.
	h.handleFrame(a, joinFrame("2025-01-10", 3))
	snap := recvFrame(t, a)
	require.Contains(t, snap, "your_seat")
	assert.EqualValues(t, 5, snap["your_seat"].(map[string]any)["seat_id"])

	b := newTestClient(h, "conn-b")
	h.handleFrame(b, joinFrame("2025-01-10", 3))
	snap = recvFrame(t, b)
	_, ok := snap["your_seat"]
	assert.False(t, ok, "snapshot must not claim someone else's hold")
}

func TestMalformedFramesAnswerWithError(t *testing.T) {
	h, _ := newTestHub(t, time.Minute, nil)
	c := newTestClient(h, "conn-a")

	h.handleFrame(c, ClientFrame{Action: "warp_seat"})
	got := recvFrame(t, c)
	assert.Equal(t, EventError, got["event"])

	h.handleFrame(c, joinFrame("10/01/2025", 3))
	got = recvFrame(t, c)
	assert.Equal(t, EventError, got["event"])

	h.handleFrame(c, seatFrame(ActionSelectSeat, 0, "2025-01-10", 3))
	got = recvFrame(t, c)
	assert.Equal(t, EventError, got["event"])
}
