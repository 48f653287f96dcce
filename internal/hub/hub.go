package hub

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/libreserve/library-seat-reservation/internal/model"
	"github.com/libreserve/library-seat-reservation/internal/store"
)

// snapshotTimeout bounds the durable-store query answered to a
// joining client.
const snapshotTimeout = 3 * time.Second

// GroupKey identifies one broadcast group: everyone currently
// looking at the seat map for this date and time slot.
type GroupKey struct {
	ReservationDate string
	TimeSlotID      uint64
}

// ReservationReader is the slice of the durable repository the hub
// needs: the active reservations for one slot, used to complete the
// join snapshot alongside the in-memory holds.
type ReservationReader interface {
	ActiveSeatKeys(ctx context.Context, reservationDate string, timeSlotID uint64) ([]model.SeatLookupKey, error)
}

// Hub owns the connection and group registries.  One mutex guards
// both; the hold store has its own lock and is never called while
// the hub mutex is held, because hold store callbacks re-enter the
// hub to broadcast.
type Hub struct {
	mu      sync.Mutex
	clients map[string]*Client
	groups  map[GroupKey]map[*Client]struct{}
	closed  bool

	holds        store.HoldStore
	reservations ReservationReader
}

// New builds an empty hub.  The hold store is attached afterwards
// with SetHoldStore because the store's release callback points back
// at the hub.  reservations may be nil in tests; join snapshots then
// contain holds only.
func New(reservations ReservationReader) *Hub {
	return &Hub{
		clients:      make(map[string]*Client),
		groups:       make(map[GroupKey]map[*Client]struct{}),
		reservations: reservations,
	}
}

// SetHoldStore wires the hold store the hub consults for seat
// selection and disconnect cleanup.
func (h *Hub) SetHoldStore(s store.HoldStore) { h.holds = s }

// Attach registers a fresh websocket connection: it assigns the
// connection id, starts the read/write pumps and sends the welcome
// frame carrying the id the client must echo to the REST API.
func (h *Hub) Attach(conn *websocket.Conn) *Client {
	c := &Client{
		ID:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	h.clients[c.ID] = c
	h.mu.Unlock()

	go c.writePump()
	go c.readPump()

	h.push(c, ServerFrame{Event: EventWelcome, ConnectionID: c.ID})
	log.Printf("hub: connection %s attached", c.ID)
	return c
}

// Disconnect removes a client from its group and the registry, then
// releases whatever seat it was holding.  An abandoned tab must not
// keep a seat locked for the full TTL, so the release happens now
// and the group is told immediately.
func (h *Hub) Disconnect(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)
	h.leaveLocked(c)
	close(c.send)
	h.mu.Unlock()
	log.Printf("hub: connection %s detached", c.ID)

	if h.holds == nil {
		return
	}
	if hold, released := h.holds.ReleaseHolderCurrentSeat(c.ID); released {
		h.BroadcastReleased(hold)
	}
}

// Close tears the hub down at server shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, c := range h.clients {
		close(c.send)
	}
	h.clients = make(map[string]*Client)
	h.groups = make(map[GroupKey]map[*Client]struct{})
}

// handleFrame dispatches one inbound client frame.
func (h *Hub) handleFrame(c *Client, f ClientFrame) {
	switch f.Action {
	case ActionJoinGroup:
		h.handleJoin(c, f)
	case ActionLeaveGroup:
		h.handleLeave(c)
	case ActionSelectSeat:
		h.handleSelect(c, f)
	case ActionReleaseSeat:
		h.handleRelease(c, f)
	default:
		h.sendError(c, "unknown action")
	}
}

// handleJoin moves the client into the group for the requested date
// and slot, leaving any previous group first so it stops receiving
// stale events, and answers with a snapshot so the client's seat map
// is consistent without waiting for future events.
func (h *Hub) handleJoin(c *Client, f ClientFrame) {
	date, err := normalizeDate(f.ReservationDate)
	if err != nil || f.TimeSlotID == 0 {
		h.sendError(c, "invalid reservation_date or time_slot_id")
		return
	}
	gk := GroupKey{ReservationDate: date, TimeSlotID: f.TimeSlotID}

	h.mu.Lock()
	h.leaveLocked(c)
	members, ok := h.groups[gk]
	if !ok {
		members = make(map[*Client]struct{})
		h.groups[gk] = members
	}
	members[c] = struct{}{}
	c.group = &gk
	h.mu.Unlock()

	snap := SnapshotFrame{
		Event:           EventGroupSnapshot,
		ReservationDate: gk.ReservationDate,
		TimeSlotID:      gk.TimeSlotID,
		Held:            []model.SeatLookupKey{},
		Reserved:        []model.SeatLookupKey{},
	}
	if h.holds != nil {
		snap.Held = h.holds.GetHeldSeats(gk.ReservationDate, gk.TimeSlotID)
		if key, ok := h.holds.GetHolderCurrentSeat(c.ID); ok {
			snap.YourSeat = &key
		}
	}
	if h.reservations != nil {
		ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
		defer cancel()
		reserved, err := h.reservations.ActiveSeatKeys(ctx, gk.ReservationDate, gk.TimeSlotID)
		if err != nil {
			log.Printf("hub: snapshot query failed for %s/%d: %v", gk.ReservationDate, gk.TimeSlotID, err)
		} else {
			snap.Reserved = reserved
		}
	}
	h.push(c, snap)
}

// handleLeave removes the client from its current group, if any.
func (h *Hub) handleLeave(c *Client) {
	h.mu.Lock()
	h.leaveLocked(c)
	h.mu.Unlock()
}

// handleSelect delegates to the hold store's atomic check-and-set.
// The winner's group learns about the hold; a loser is answered
// alone with the current owner so it can show "already held" without
// disturbing anyone else's view.
func (h *Hub) handleSelect(c *Client, f ClientFrame) {
	key, err := frameKey(f)
	if err != nil {
		h.sendError(c, err.Error())
		return
	}
	if h.holds == nil {
		h.sendError(c, "hold store unavailable")
		return
	}
	granted, holder := h.holds.TrySelectSeat(key, c.ID)
	if !granted {
		h.push(c, ServerFrame{
			Event:    EventSeatAlreadySelected,
			SeatID:   key.SeatID,
			HolderID: holder,
		})
		return
	}
	h.broadcast(groupOf(key), ServerFrame{
		Event:           EventSeatSelected,
		SeatID:          key.SeatID,
		ReservationDate: key.ReservationDate,
		TimeSlotID:      key.TimeSlotID,
		HolderID:        c.ID,
	}, c)
}

// handleRelease releases the caller's own hold and tells the rest of
// the group the seat is free again.
func (h *Hub) handleRelease(c *Client, f ClientFrame) {
	key, err := frameKey(f)
	if err != nil {
		h.sendError(c, err.Error())
		return
	}
	if h.holds == nil || !h.holds.ReleaseSeat(key, c.ID) {
		return
	}
	h.broadcast(groupOf(key), ServerFrame{
		Event:           EventSeatReleased,
		SeatID:          key.SeatID,
		ReservationDate: key.ReservationDate,
		TimeSlotID:      key.TimeSlotID,
	}, c)
}

// BroadcastReleased announces a hold that lapsed or was displaced
// without an explicit release call.  It is wired into the hold store
// as the release callback, so expiry broadcasts look exactly like
// explicit releases to every group member, the former owner
// included.
func (h *Hub) BroadcastReleased(hold model.SeatHold) {
	h.broadcast(groupOf(hold.Key), ServerFrame{
		Event:           EventSeatReleased,
		SeatID:          hold.Key.SeatID,
		ReservationDate: hold.Key.ReservationDate,
		TimeSlotID:      hold.Key.TimeSlotID,
	}, nil)
}

// BroadcastReserved announces a finalized reservation to the slot's
// group.  Called by the REST finalization handler after the durable
// write succeeds.
func (h *Hub) BroadcastReserved(key model.SeatLookupKey) {
	h.broadcast(groupOf(key), ServerFrame{
		Event:           EventSeatReserved,
		SeatID:          key.SeatID,
		ReservationDate: key.ReservationDate,
		TimeSlotID:      key.TimeSlotID,
	}, nil)
}

// BroadcastCancelled announces a cancelled reservation so open seat
// maps free the seat immediately.
func (h *Hub) BroadcastCancelled(key model.SeatLookupKey) {
	h.broadcast(groupOf(key), ServerFrame{
		Event:           EventSeatCancelled,
		SeatID:          key.SeatID,
		ReservationDate: key.ReservationDate,
		TimeSlotID:      key.TimeSlotID,
	}, nil)
}

// broadcast fans a frame out to every member of a group except the
// optional originator.  Sends are non-blocking: a client whose
// buffer is full is evicted here, hold release included, so the seat
// frees straight away instead of waiting out the TTL.  The pump
// goroutines exit on the closed channel and the later pump-driven
// Disconnect finds nothing left to do.
func (h *Hub) broadcast(gk GroupKey, frame any, except *Client) {
	payload, err := json.Marshal(frame)
	if err != nil {
		log.Printf("hub: marshal broadcast: %v", err)
		return
	}
	h.mu.Lock()
	var stale []*Client
	for c := range h.groups[gk] {
		if c == except {
			continue
		}
		select {
		case c.send <- payload:
		default:
			stale = append(stale, c)
		}
	}
	for _, c := range stale {
		h.evictLocked(c)
	}
	h.mu.Unlock()

	for _, c := range stale {
		h.releaseEvicted(c)
	}
}

// push sends a frame to a single client.  A full buffer here means
// the client cannot even absorb its own snapshot or error frames, so
// it gets the same treatment as in broadcast: evicted with its hold
// released.
func (h *Hub) push(c *Client, frame any) {
	payload, err := json.Marshal(frame)
	if err != nil {
		log.Printf("hub: marshal frame: %v", err)
		return
	}
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	select {
	case c.send <- payload:
		h.mu.Unlock()
	default:
		h.evictLocked(c)
		h.mu.Unlock()
		h.releaseEvicted(c)
	}
}

// evictLocked drops a client that stopped draining its send buffer.
// Caller must hold h.mu and call releaseEvicted after unlocking.
func (h *Hub) evictLocked(c *Client) {
	delete(h.clients, c.ID)
	h.leaveLocked(c)
	close(c.send)
	log.Printf("hub: connection %s dropped, send buffer full", c.ID)
}

// releaseEvicted frees the seat of an evicted client and tells its
// group, mirroring Disconnect.  Must be called without h.mu held:
// the release callback re-enters broadcast.
func (h *Hub) releaseEvicted(c *Client) {
	if h.holds == nil {
		return
	}
	if hold, released := h.holds.ReleaseHolderCurrentSeat(c.ID); released {
		h.BroadcastReleased(hold)
	}
}

// sendError answers the caller alone with an error frame.
func (h *Hub) sendError(c *Client, msg string) {
	h.push(c, ServerFrame{Event: EventError, Message: msg})
}

// leaveLocked detaches the client from its current group and prunes
// the group when it empties.  Caller must hold h.mu.
func (h *Hub) leaveLocked(c *Client) {
	if c.group == nil {
		return
	}
	gk := *c.group
	if members, ok := h.groups[gk]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.groups, gk)
		}
	}
	c.group = nil
}

// groupOf maps a seat key onto its broadcast group.
func groupOf(key model.SeatLookupKey) GroupKey {
	return GroupKey{ReservationDate: key.ReservationDate, TimeSlotID: key.TimeSlotID}
}
