/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"sync"
)

// Messages sent to clients. Every frame carries its event name in Type.

type RoomUsers struct {
	Creator string `json:"creator"`
	Joiner  string `json:"joiner"`
}

type RoomStatusMessage struct {
	Type   string    `json:"type"` // "room_status"
	Status State     `json:"status"`
	Users  RoomUsers `json:"users"`
}

type ReadyUpdateMessage struct {
	Type      string `json:"type"` // "ready_update"
	Username  string `json:"username"`
	BothReady bool   `json:"bothReady"`
	NewState  State  `json:"newState"`
}

type ReceiveMessage struct {
	Type string `json:"type"` // "receive_message"
	Message
}

type PeerDisconnectedMessage struct {
	Type     string `json:"type"` // "peer_disconnected"
	Username string `json:"username"`
}

// Conn is a live connection that frames can be queued on. Send must not
// block; it reports false when the frame could not be queued.
type Conn interface {
	Send(msg any) bool
}

type binding struct {
	roomID   string
	username string
}

// Coordinator binds connections to rooms and drives each room through the
// ready handshake, message relay and close. Room state is only mutated
// with the room's lock held, and broadcasts for a room are queued under
// that same lock so every connection sees events in state order.
type Coordinator struct {
	cfg   *Config
	rooms *Registry

	mu    sync.Mutex
	bound map[string]map[Conn]struct{} // room ID -> connections
	conns map[Conn]binding
}

func NewCoordinator(cfg *Config, rooms *Registry) *Coordinator {
	return &Coordinator{
		cfg:   cfg,
		rooms: rooms,
		bound: make(map[string]map[Conn]struct{}),
		conns: make(map[Conn]binding),
	}
}

func (c *Coordinator) bind(conn Conn, roomID, username string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.conns[conn]; ok {
		c.removeLocked(conn, prev.roomID)
	}

	c.conns[conn] = binding{roomID: roomID, username: username}
	if c.bound[roomID] == nil {
		c.bound[roomID] = make(map[Conn]struct{})
	}
	c.bound[roomID][conn] = struct{}{}
}

func (c *Coordinator) removeLocked(conn Conn, roomID string) {
	delete(c.conns, conn)
	if set, ok := c.bound[roomID]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(c.bound, roomID)
		}
	}
}

func (c *Coordinator) unbind(conn Conn) (binding, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.conns[conn]
	if ok {
		c.removeLocked(conn, b.roomID)
	}
	return b, ok
}

// unbindUser drops every connection bound to username within roomID.
func (c *Coordinator) unbindUser(roomID, username string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for conn := range c.bound[roomID] {
		if c.conns[conn].username == username {
			c.removeLocked(conn, roomID)
		}
	}
}

// Bound returns the number of connections bound to roomID.
func (c *Coordinator) Bound(roomID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.bound[roomID])
}

// broadcast queues msg on every connection bound to roomID.
func (c *Coordinator) broadcast(roomID string, msg any) {
	c.mu.Lock()
	targets := make([]Conn, 0, len(c.bound[roomID]))
	for conn := range c.bound[roomID] {
		targets = append(targets, conn)
	}
	c.mu.Unlock()

	for _, conn := range targets {
		if !conn.Send(msg) {
			logf(c.cfg, "ROOMS: Dropped frame for a connection in %s", roomID)
		}
	}
}

// Announce binds conn to a room under username and tells everyone in the
// room about its current status.
func (c *Coordinator) Announce(conn Conn, roomID, username string) error {
	e, ok := c.rooms.entry(roomID)
	if !ok {
		return ErrRoomNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.room.State {
	case StateClosed:
		return ErrRoomClosed
	case StateChatActive:
		return ErrRoomFull
	}

	c.bind(conn, roomID, username)
	e.lastActive = c.rooms.now()

	logf(c.cfg, "ROOMS: %q announced in %s", username, roomID)

	c.broadcast(roomID, RoomStatusMessage{
		Type:   "room_status",
		Status: e.room.State,
		Users:  e.usersLocked(),
	})

	return nil
}

// SetReady records that username is ready to chat. The chat starts once
// both participants are ready, regardless of order.
func (c *Coordinator) SetReady(roomID, username string) error {
	e, ok := c.rooms.entry(roomID)
	if !ok {
		return ErrRoomNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	before := e.room.State
	if err := e.markReadyLocked(username, c.rooms.now()); err != nil {
		return err
	}

	if before != e.room.State {
		logf(c.cfg, "ROOMS: %s is now %s", roomID, e.room.State)
	}

	c.broadcast(roomID, ReadyUpdateMessage{
		Type:      "ready_update",
		Username:  username,
		BothReady: e.bothReadyLocked(),
		NewState:  e.room.State,
	})

	return nil
}

// SendMessage relays text from username to the room. Outside of an active
// chat the message is dropped without telling the sender.
func (c *Coordinator) SendMessage(roomID, username, text string) error {
	e, ok := c.rooms.entry(roomID)
	if !ok {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	msg, accepted, err := e.appendMessageLocked(username, text, c.rooms.now())
	if err != nil || !accepted {
		return err
	}

	c.broadcast(roomID, ReceiveMessage{
		Type:    "receive_message",
		Message: msg,
	})

	return nil
}

// Leave closes the room on behalf of username.
func (c *Coordinator) Leave(roomID, username string) error {
	e, ok := c.rooms.entry(roomID)
	if !ok {
		return ErrRoomNotFound
	}

	c.closeRoom(e, username)

	return nil
}

// Disconnect unbinds conn and, when its username is a participant of the
// room it was bound to, closes that room.
func (c *Coordinator) Disconnect(conn Conn) {
	b, ok := c.unbind(conn)
	if !ok {
		return
	}

	room, ok := c.rooms.FindByParticipant(b.username)
	if !ok || room.ID != b.roomID {
		return
	}

	e, ok := c.rooms.entry(room.ID)
	if !ok {
		return
	}

	c.closeRoom(e, b.username)
}

func (c *Coordinator) closeRoom(e *roomEntry, username string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.closeLocked(c.rooms.now()) {
		return
	}

	logf(c.cfg, "ROOMS: %s closed by %q", e.room.ID, username)

	c.broadcast(e.room.ID, PeerDisconnectedMessage{
		Type:     "peer_disconnected",
		Username: username,
	})
	c.unbindUser(e.room.ID, username)
}

// Forget drops all connection bindings for evicted rooms.
func (c *Coordinator) Forget(roomIDs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range roomIDs {
		for conn := range c.bound[id] {
			delete(c.conns, conn)
		}
		delete(c.bound, id)
	}
}
