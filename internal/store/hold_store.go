// Package store implements the in-memory seat hold store.  The hold
// store is the single piece of shared mutable state in the real-time
// core: it maps a SeatLookupKey to the connection currently holding
// it and enforces that at most one live hold exists per key.  All
// operations are serialized by one mutex; holds expire through a
// per-hold timer that re-checks the hold's version stamp before
// deleting, so a refreshed or re-acquired hold is never removed by a
// stale timer.
package store

import (
	"log"
	"sync"
	"time"

	"github.com/libreserve/library-seat-reservation/internal/model"
)

// HoldStore is the contract the hub and the finalization endpoint
// program against.  Keeping it an interface lets the single-process
// implementation below be swapped for a distributed one (e.g. a
// key-value store with atomic compare-and-set and native TTL)
// without touching the callers.
//
// Operations never fail for "not found"; absence is a normal return
// value (granted=false, ok=false, empty slice).
type HoldStore interface {
	// TrySelectSeat atomically acquires or refreshes the hold on key
	// for holderID.  It returns granted=true when holderID now owns
	// the hold.  When another connection owns it, granted is false
	// and currentHolder carries the owner's id.  A holder may own at
	// most one seat at a time; acquiring a new key implicitly
	// releases the previous one and reports it via the release
	// callback.
	TrySelectSeat(key model.SeatLookupKey, holderID string) (granted bool, currentHolder string)

	// ReleaseSeat releases the hold on key only when holderID owns
	// it, and reports whether a release occurred.
	ReleaseSeat(key model.SeatLookupKey, holderID string) bool

	// ReleaseHolderCurrentSeat releases whatever hold holderID owns,
	// if any.  Used on disconnect.  The released hold is returned so
	// the caller knows which group to notify.
	ReleaseHolderCurrentSeat(holderID string) (model.SeatHold, bool)

	// GetSeatHolder returns the connection currently holding key.
	GetSeatHolder(key model.SeatLookupKey) (string, bool)

	// GetHolderCurrentSeat returns the key holderID currently holds.
	GetHolderCurrentSeat(holderID string) (model.SeatLookupKey, bool)

	// GetHeldSeats returns a snapshot of all live holds for one
	// date/slot, used to hydrate a client's seat map on join.
	GetHeldSeats(reservationDate string, timeSlotID uint64) []model.SeatLookupKey

	// Close stops all expiry timers and drops all holds.
	Close()
}

// seatHold is the internal record behind one live hold.  version is
// bumped on every refresh so an expiry timer scheduled for an older
// incarnation can detect it is stale.
type seatHold struct {
	holderID  string
	expiresAt time.Time
	version   uint64
	timer     *time.Timer
}

// MemoryHoldStore is the single-process HoldStore.  One mutex guards
// both maps; the byHolder index enforces the one-hold-per-holder
// product rule and makes disconnect cleanup O(1).
type MemoryHoldStore struct {
	mu        sync.Mutex
	holds     map[model.SeatLookupKey]*seatHold
	byHolder  map[string]model.SeatLookupKey
	ttl       time.Duration
	onRelease func(model.SeatHold)
	closed    bool
}

// NewMemoryHoldStore builds a store with the given hold TTL.
// onRelease is invoked (outside the lock) whenever a hold is
// released without the owner explicitly asking for it: timer expiry,
// or displacement when the owner selects a different seat.  Explicit
// releases report through their return values instead, so callers
// never see a release twice.  onRelease may be nil.
func NewMemoryHoldStore(ttl time.Duration, onRelease func(model.SeatHold)) *MemoryHoldStore {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &MemoryHoldStore{
		holds:     make(map[model.SeatLookupKey]*seatHold),
		byHolder:  make(map[string]model.SeatLookupKey),
		ttl:       ttl,
		onRelease: onRelease,
	}
}

// TTL reports the configured hold lifetime.  The confirmation dialog
// countdown on the client is driven by the same value.
func (s *MemoryHoldStore) TTL() time.Duration { return s.ttl }

// TrySelectSeat implements the atomic check-and-set described on the
// interface.  Concurrent calls for the same key from different
// holders yield exactly one winner because the whole decision runs
// under the store mutex.
func (s *MemoryHoldStore) TrySelectSeat(key model.SeatLookupKey, holderID string) (bool, string) {
	var displaced *model.SeatHold

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, ""
	}
	if h, ok := s.holds[key]; ok && h.holderID != holderID {
		owner := h.holderID
		s.mu.Unlock()
		return false, owner
	}

	// The holder may already own a different seat; displace it.
	if prev, ok := s.byHolder[holderID]; ok && prev != key {
		if h := s.removeLocked(prev); h != nil {
			displaced = &model.SeatHold{Key: prev, HolderID: holderID, ExpiresAt: h.expiresAt}
		}
	}

	expiresAt := time.Now().UTC().Add(s.ttl)
	if h, ok := s.holds[key]; ok {
		// Idempotent re-select by the same holder: refresh the TTL
		// and invalidate the old timer via the version stamp.
		h.version++
		h.expiresAt = expiresAt
		h.timer.Stop()
		h.timer = s.scheduleExpiry(key, h.version)
	} else {
		h := &seatHold{holderID: holderID, expiresAt: expiresAt, version: 1}
		h.timer = s.scheduleExpiry(key, h.version)
		s.holds[key] = h
		s.byHolder[holderID] = key
	}
	s.mu.Unlock()

	if displaced != nil && s.onRelease != nil {
		s.onRelease(*displaced)
	}
	return true, holderID
}

// ReleaseSeat releases key only when holderID owns it, preventing a
// stale client from releasing someone else's active hold.
func (s *MemoryHoldStore) ReleaseSeat(key model.SeatLookupKey, holderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.holds[key]
	if !ok || h.holderID != holderID {
		return false
	}
	s.removeLocked(key)
	return true
}

// ReleaseHolderCurrentSeat drops whatever single hold belongs to
// holderID.  Returns the released hold and true when one existed.
func (s *MemoryHoldStore) ReleaseHolderCurrentSeat(holderID string) (model.SeatHold, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.byHolder[holderID]
	if !ok {
		return model.SeatHold{}, false
	}
	h := s.removeLocked(key)
	if h == nil {
		return model.SeatHold{}, false
	}
	return model.SeatHold{Key: key, HolderID: holderID, ExpiresAt: h.expiresAt}, true
}

// GetSeatHolder returns the current holder of key, if any.  The
// finalization endpoint uses this to verify the caller still owns
// the seat at commit time.
func (s *MemoryHoldStore) GetSeatHolder(key model.SeatLookupKey) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.holds[key]
	if !ok {
		return "", false
	}
	return h.holderID, true
}

// GetHolderCurrentSeat returns the key holderID holds, used to
// resume UI state after a reconnect.
func (s *MemoryHoldStore) GetHolderCurrentSeat(holderID string) (model.SeatLookupKey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.byHolder[holderID]
	return key, ok
}

// GetHeldSeats snapshots all live holds for one date/slot.
func (s *MemoryHoldStore) GetHeldSeats(reservationDate string, timeSlotID uint64) []model.SeatLookupKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]model.SeatLookupKey, 0)
	for key := range s.holds {
		if key.ReservationDate == reservationDate && key.TimeSlotID == timeSlotID {
			keys = append(keys, key)
		}
	}
	return keys
}

// Close stops every timer and clears both maps.  Further calls to
// TrySelectSeat are refused.
func (s *MemoryHoldStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.holds {
		h.timer.Stop()
	}
	s.holds = make(map[model.SeatLookupKey]*seatHold)
	s.byHolder = make(map[string]model.SeatLookupKey)
	s.closed = true
}

// removeLocked deletes the hold for key from both maps and stops its
// timer.  Caller must hold s.mu.
func (s *MemoryHoldStore) removeLocked(key model.SeatLookupKey) *seatHold {
	h, ok := s.holds[key]
	if !ok {
		return nil
	}
	h.timer.Stop()
	delete(s.holds, key)
	delete(s.byHolder, h.holderID)
	return h
}

// scheduleExpiry arms the one-shot timer for one incarnation of a
// hold.  When it fires, the hold is deleted only if it still exists
// with the same version: a refresh or a release-and-reacquire in the
// meantime leaves a newer incarnation the stale timer must not
// touch.  On a genuine expiry the release callback fires exactly
// once, as if the client had released explicitly.  Caller must hold
// s.mu.
func (s *MemoryHoldStore) scheduleExpiry(key model.SeatLookupKey, version uint64) *time.Timer {
	return time.AfterFunc(s.ttl, func() {
		s.mu.Lock()
		h, ok := s.holds[key]
		if !ok || h.version != version {
			s.mu.Unlock()
			return
		}
		expired := model.SeatHold{Key: key, HolderID: h.holderID, ExpiresAt: h.expiresAt}
		s.removeLocked(key)
		s.mu.Unlock()

		log.Printf("hold-store: hold expired seat=%d date=%s slot=%d holder=%s",
			key.SeatID, key.ReservationDate, key.TimeSlotID, expired.HolderID)
		if s.onRelease != nil {
			s.onRelease(expired)
		}
	})
}
