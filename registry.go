/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry owns every room held by the process, keyed by room ID, along
// with an index of display names so that no two held rooms share one.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*roomEntry
	names map[string]string // username -> room ID

	now     func() time.Time
	newID   func() string
	newName func() string
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:   make(map[string]*roomEntry),
		names:   make(map[string]string),
		now:     time.Now,
		newID:   uuid.NewString,
		newName: generateUsername,
	}
}

// reserveNameLocked draws names until one is not held by any room. After
// enough collisions a random suffix is appended so the loop always ends.
func (r *Registry) reserveNameLocked(roomID string) string {
	for attempt := 0; ; attempt++ {
		name := r.newName()
		if attempt >= maxNameAttempts {
			name += "-" + nameSuffix()
		}

		if _, taken := r.names[name]; !taken {
			r.names[name] = roomID
			return name
		}
	}
}

func (r *Registry) releaseName(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.names, name)
}

// Create stores a new room waiting for its second participant.
func (r *Registry) Create() Room {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	for {
		if _, exists := r.rooms[id]; !exists {
			break
		}
		id = r.newID()
	}

	e := &roomEntry{
		room: Room{
			ID:              id,
			CreatorUsername: r.reserveNameLocked(id),
			CreatedAt:       now,
			State:           StateWaitingForJoin,
			Messages:        []Message{},
		},
		lastActive: now,
	}
	r.rooms[id] = e

	return e.snapshot()
}

// Join assigns the joiner of a room. Only the first join of a room still
// waiting for one succeeds; every later attempt gets ErrRoomFull.
func (r *Registry) Join(roomID string) (Room, error) {
	e, ok := r.entry(roomID)
	if !ok {
		return Room{}, ErrRoomNotFound
	}

	r.mu.Lock()
	name := r.reserveNameLocked(roomID)
	r.mu.Unlock()

	now := r.now()

	e.mu.Lock()
	if e.room.State != StateWaitingForJoin || e.room.JoinerUsername != "" || e.room.JoinedAt != nil {
		e.mu.Unlock()
		r.releaseName(name)

		return Room{}, ErrRoomFull
	}

	e.room.JoinerUsername = name
	e.room.JoinedAt = &now
	e.room.State = StateWaitingForReady
	e.lastActive = now
	snap := e.snapshotLocked()
	e.mu.Unlock()

	return snap, nil
}

func (r *Registry) entry(roomID string) (*roomEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.rooms[roomID]
	return e, ok
}

func (r *Registry) entryByParticipant(username string) (*roomEntry, bool) {
	if username == "" {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.names[username]
	if !ok {
		return nil, false
	}

	e, ok := r.rooms[id]
	return e, ok
}

// FindByID returns a snapshot of the room with the given ID.
func (r *Registry) FindByID(roomID string) (Room, bool) {
	e, ok := r.entry(roomID)
	if !ok {
		return Room{}, false
	}

	return e.snapshot(), true
}

// FindByParticipant returns a snapshot of the room in which username is
// the creator or the joiner.
func (r *Registry) FindByParticipant(username string) (Room, bool) {
	e, ok := r.entryByParticipant(username)
	if !ok {
		return Room{}, false
	}

	snap := e.snapshot()
	if snap.CreatorUsername != username && snap.JoinerUsername != username {
		return Room{}, false
	}

	return snap, true
}

// Len returns the number of rooms currently held, closed ones included.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms)
}

// Reap evicts rooms that have been closed for at least ttl, releasing
// their display names, and returns the evicted IDs.
func (r *Registry) Reap(ttl time.Duration) []string {
	cutoff := r.now().Add(-ttl)

	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []string
	for id, e := range r.rooms {
		e.mu.Lock()
		closedAt := e.room.ClosedAt
		creator, joiner := e.room.CreatorUsername, e.room.JoinerUsername
		e.mu.Unlock()

		if closedAt == nil || closedAt.After(cutoff) {
			continue
		}

		delete(r.rooms, id)
		for _, name := range []string{creator, joiner} {
			if name != "" && r.names[name] == id {
				delete(r.names, name)
			}
		}
		evicted = append(evicted, id)
	}

	return evicted
}
