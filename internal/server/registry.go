// Package server keeps room membership in the Registry, the only state shared
// between connection handlers.
package server

import "sync"

// Member is a room participant that frames can be delivered to.
type Member interface {
	// ID returns the opaque connection identifier, unique per connection.
	ID() string
	// Deliver queues payload for the member without blocking. It returns
	// ErrConnectionClosed or ErrSendBufferFull when the member cannot take it.
	Deliver(payload []byte) error
}

// Room is a named set of members. Its mutex also serializes fan-out so every
// member observes the room's frames in the same order.
type Room struct {
	id      string
	mu      sync.Mutex
	members map[string]Member
}

// ID returns the room identifier.
func (r *Room) ID() string { return r.id }

// Len returns the current member count.
func (r *Room) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Registry maps room identifiers to rooms. Lock order is registry, then room.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

// EnsureRoom returns the room for roomID, creating an empty one if needed.
func (reg *Registry) EnsureRoom(roomID string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.ensureLocked(roomID)
}

func (reg *Registry) ensureLocked(roomID string) *Room {
	room, ok := reg.rooms[roomID]
	if !ok {
		room = &Room{id: roomID, members: make(map[string]Member)}
		reg.rooms[roomID] = room
	}
	return room
}

// AddMember adds m to roomID, creating the room on first use. Membership is
// keyed by m.ID(), so adding the same member twice keeps a single entry.
func (reg *Registry) AddMember(roomID string, m Member) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room := reg.ensureLocked(roomID)
	room.mu.Lock()
	room.members[m.ID()] = m
	room.mu.Unlock()
}

// RemoveMember removes m from roomID. Unknown rooms and members are ignored.
// A room left without members is dropped from the registry.
func (reg *Registry) RemoveMember(roomID string, m Member) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, ok := reg.rooms[roomID]
	if !ok {
		return
	}

	room.mu.Lock()
	delete(room.members, m.ID())
	empty := len(room.members) == 0
	room.mu.Unlock()

	if empty {
		delete(reg.rooms, roomID)
	}
}

// Members returns a snapshot of the members of roomID. The slice is empty
// for unknown rooms and is safe to use while membership changes.
func (reg *Registry) Members(roomID string) []Member {
	reg.mu.RLock()
	room, ok := reg.rooms[roomID]
	if !ok {
		reg.mu.RUnlock()
		return []Member{}
	}
	room.mu.Lock()
	reg.mu.RUnlock()
	defer room.mu.Unlock()

	members := make([]Member, 0, len(room.members))
	for _, m := range room.members {
		members = append(members, m)
	}
	return members
}

// Contains reports whether m is currently a member of roomID.
func (reg *Registry) Contains(roomID string, m Member) bool {
	reg.mu.RLock()
	room, ok := reg.rooms[roomID]
	if !ok {
		reg.mu.RUnlock()
		return false
	}
	room.mu.Lock()
	reg.mu.RUnlock()
	defer room.mu.Unlock()

	_, found := room.members[m.ID()]
	return found
}

// each calls fn for every member of roomID while holding the room lock. fn
// must not block and must not call back into the registry.
func (reg *Registry) each(roomID string, fn func(Member)) {
	reg.mu.RLock()
	room, ok := reg.rooms[roomID]
	if !ok {
		reg.mu.RUnlock()
		return
	}
	room.mu.Lock()
	reg.mu.RUnlock()
	defer room.mu.Unlock()

	for _, m := range room.members {
		fn(m)
	}
}

// Stats returns the number of rooms and the total membership across them.
func (reg *Registry) Stats() (rooms, members int) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	rooms = len(reg.rooms)
	for _, room := range reg.rooms {
		room.mu.Lock()
		members += len(room.members)
		room.mu.Unlock()
	}
	return rooms, members
}
