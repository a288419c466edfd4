// Package hub holds the in-process real-time state: live connections, the
// room registry, and the broadcaster that fans messages out to a room.
package hub

import (
	"sync"

	"github.com/ymliu/convo/pkg/log"
)

// Registry is the process-wide mapping of room id to connected
// participants. It is the only concurrently mutated shared state in the
// live core, so every access goes through the mutex. Registry never
// validates room existence; any room id may accumulate participants.
type Registry struct {
	mu    sync.RWMutex
	rooms map[uint]map[uint]Sender
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[uint]map[uint]Sender),
	}
}

// Register inserts the (room, user) entry, overwriting any previous entry
// for the same key: a second connection by the same user to the same room
// replaces the first.
func (r *Registry) Register(roomID, userID uint, s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()

	participants, ok := r.rooms[roomID]
	if !ok {
		participants = make(map[uint]Sender)
		r.rooms[roomID] = participants
	}
	participants[userID] = s

	l := log.L()
	l.Debug().Uint(log.FieldRoomID, roomID).Uint(log.FieldUserID, userID).Msg("participant registered")
}

// Deregister removes the (room, user) entry, but only when the stored
// channel is s. A reconnect overwrites the entry, and the replaced
// session's later cleanup must not evict the live one. Calling it for an
// absent key is a no-op, so double cleanup is safe.
func (r *Registry) Deregister(roomID, userID uint, s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()

	participants, ok := r.rooms[roomID]
	if !ok {
		return
	}
	if current, ok := participants[userID]; !ok || current != s {
		return
	}

	delete(participants, userID)
	if len(participants) == 0 {
		delete(r.rooms, roomID)
	}

	l := log.L()
	l.Debug().Uint(log.FieldRoomID, roomID).Uint(log.FieldUserID, userID).Msg("participant deregistered")
}

// Participants returns a snapshot of the channels currently registered for
// a room. The returned slice is a copy; concurrent register/deregister
// after the snapshot does not affect it.
func (r *Registry) Participants(roomID uint) []Sender {
	r.mu.RLock()
	defer r.mu.RUnlock()

	participants := r.rooms[roomID]
	out := make([]Sender, 0, len(participants))
	for _, s := range participants {
		out = append(out, s)
	}
	return out
}

// Registered reports whether the (room, user) key currently has an entry.
func (r *Registry) Registered(roomID, userID uint) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	participants, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	_, ok = participants[userID]
	return ok
}

// Count returns the number of participants registered for a room.
func (r *Registry) Count(roomID uint) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

// Reset clears all registrations. Test hook.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms = make(map[uint]map[uint]Sender)
}
