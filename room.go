/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// State is a room's position in its lifecycle. Transitions only move
// forward, and StateClosed is terminal.
type State string

const (
	StateWaitingForJoin  State = "waiting_for_join"
	StateWaitingForReady State = "waiting_for_ready"
	StateChatActive      State = "chat_active"
	StateClosed          State = "closed"
)

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrRoomFull       = errors.New("room is full")
	ErrRoomClosed     = errors.New("room is closed")
	ErrNotParticipant = errors.New("user is not a participant in this room")
	ErrEmptyMessage   = errors.New("message text is empty")
)

// Message is a single chat line, stamped by the server on receipt.
type Message struct {
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Room is the public view of a two-person pairing.
type Room struct {
	ID              string     `json:"id"`
	CreatorUsername string     `json:"creator_username"`
	CreatedAt       time.Time  `json:"created_at"`
	JoinerUsername  string     `json:"joiner_username"`
	JoinedAt        *time.Time `json:"joined_at"`
	CreatorReady    bool       `json:"creator_ready"`
	JoinerReady     bool       `json:"joiner_ready"`
	State           State      `json:"state"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
	Messages        []Message  `json:"messages"`
}

type role int

const (
	roleNone role = iota
	roleCreator
	roleJoiner
)

// roomEntry is the registry's mutable copy of a room. Every read or write
// of room goes through mu; methods suffixed with Locked expect it held.
type roomEntry struct {
	mu         sync.Mutex
	room       Room
	lastActive time.Time
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func (e *roomEntry) snapshotLocked() Room {
	snap := e.room
	snap.JoinedAt = copyTime(e.room.JoinedAt)
	snap.ClosedAt = copyTime(e.room.ClosedAt)
	snap.Messages = make([]Message, len(e.room.Messages))
	copy(snap.Messages, e.room.Messages)
	return snap
}

func (e *roomEntry) snapshot() Room {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *roomEntry) roleLocked(username string) role {
	switch {
	case username == "":
		return roleNone
	case username == e.room.CreatorUsername:
		return roleCreator
	case username == e.room.JoinerUsername:
		return roleJoiner
	}
	return roleNone
}

func (e *roomEntry) usersLocked() RoomUsers {
	return RoomUsers{
		Creator: e.room.CreatorUsername,
		Joiner:  e.room.JoinerUsername,
	}
}

// markReadyLocked flips the caller's ready flag and starts the chat once
// both participants are ready. Repeated calls are harmless.
func (e *roomEntry) markReadyLocked(username string, now time.Time) error {
	if e.room.State == StateClosed {
		return ErrRoomClosed
	}

	switch e.roleLocked(username) {
	case roleCreator:
		e.room.CreatorReady = true
	case roleJoiner:
		e.room.JoinerReady = true
	default:
		return ErrNotParticipant
	}

	if e.bothReadyLocked() && e.room.State == StateWaitingForReady {
		e.room.State = StateChatActive
	}
	e.lastActive = now

	return nil
}

func (e *roomEntry) bothReadyLocked() bool {
	return e.room.CreatorReady && e.room.JoinerReady
}

// appendMessageLocked records a message if the chat is active. The boolean
// is false when the room is not accepting messages, in which case the
// message is dropped without error.
func (e *roomEntry) appendMessageLocked(username, text string, now time.Time) (Message, bool, error) {
	if e.room.State != StateChatActive {
		return Message{}, false, nil
	}
	if e.roleLocked(username) == roleNone {
		return Message{}, false, ErrNotParticipant
	}
	if strings.TrimSpace(text) == "" {
		return Message{}, false, ErrEmptyMessage
	}

	msg := Message{
		Username:  username,
		Text:      text,
		Timestamp: now,
	}
	e.room.Messages = append(e.room.Messages, msg)
	e.lastActive = now

	return msg, true, nil
}

// closeLocked moves the room to StateClosed and reports whether this call
// performed the transition.
func (e *roomEntry) closeLocked(now time.Time) bool {
	if e.room.State == StateClosed {
		return false
	}

	e.room.State = StateClosed
	e.room.ClosedAt = &now
	e.lastActive = now

	return true
}
