/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCreate(t *testing.T) {
	rooms, _, clock := newTestSessions(t, "brave-red-fox")

	room := rooms.Create()

	assert.NotEmpty(t, room.ID)
	assert.Equal(t, "brave-red-fox", room.CreatorUsername)
	assert.Equal(t, clock.Now(), room.CreatedAt)
	assert.Empty(t, room.JoinerUsername)
	assert.Nil(t, room.JoinedAt)
	assert.False(t, room.CreatorReady)
	assert.False(t, room.JoinerReady)
	assert.Equal(t, StateWaitingForJoin, room.State)
	assert.Empty(t, room.Messages)
	assert.NotNil(t, room.Messages)

	got, ok := rooms.FindByID(room.ID)
	require.True(t, ok)
	assert.Equal(t, room, got)
}

func TestRegistryCreateAssignsDistinctIDsAndNames(t *testing.T) {
	rooms := NewRegistry()

	ids := make(map[string]struct{})
	names := make(map[string]struct{})

	for range 500 {
		room := rooms.Create()

		_, dup := ids[room.ID]
		require.False(t, dup, "duplicate room id %s", room.ID)
		ids[room.ID] = struct{}{}

		_, dup = names[room.CreatorUsername]
		require.False(t, dup, "duplicate name %s", room.CreatorUsername)
		names[room.CreatorUsername] = struct{}{}
	}

	assert.Equal(t, 500, rooms.Len())
}

func TestRegistryCreateRetriesOnIDCollision(t *testing.T) {
	rooms := NewRegistry()

	ids := []string{"a", "a", "a", "b"}
	rooms.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	first := rooms.Create()
	second := rooms.Create()

	assert.Equal(t, "a", first.ID)
	assert.Equal(t, "b", second.ID)
}

func TestRegistryNameCollisionFallsBackToSuffix(t *testing.T) {
	rooms := NewRegistry()
	rooms.newName = func() string { return "brave-red-fox" }

	first := rooms.Create()
	second := rooms.Create()

	assert.Equal(t, "brave-red-fox", first.CreatorUsername)
	assert.True(t, strings.HasPrefix(second.CreatorUsername, "brave-red-fox-"), second.CreatorUsername)
	assert.NotEqual(t, first.CreatorUsername, second.CreatorUsername)
}

func TestRegistryJoin(t *testing.T) {
	rooms, _, clock := newTestSessions(t, "brave-red-fox", "calm-blue-owl")

	room := rooms.Create()

	clock.Advance(time.Second)

	joined, err := rooms.Join(room.ID)
	require.NoError(t, err)

	assert.Equal(t, room.ID, joined.ID)
	assert.Equal(t, "brave-red-fox", joined.CreatorUsername)
	assert.Equal(t, "calm-blue-owl", joined.JoinerUsername)
	require.NotNil(t, joined.JoinedAt)
	assert.Equal(t, clock.Now(), *joined.JoinedAt)
	assert.Equal(t, StateWaitingForReady, joined.State)
}

func TestRegistryJoinErrors(t *testing.T) {
	rooms, sessions, _ := newTestSessions(t)

	_, err := rooms.Join("no-such-room")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	room := rooms.Create()

	_, err = rooms.Join(room.ID)
	require.NoError(t, err)

	_, err = rooms.Join(room.ID)
	assert.ErrorIs(t, err, ErrRoomFull)

	require.NoError(t, sessions.Leave(room.ID, room.CreatorUsername))

	_, err = rooms.Join(room.ID)
	assert.ErrorIs(t, err, ErrRoomFull)
}

func TestRegistryFailedJoinReleasesName(t *testing.T) {
	rooms, _, _ := newTestSessions(t)

	room := rooms.Create()
	_, err := rooms.Join(room.ID)
	require.NoError(t, err)

	rooms.mu.RLock()
	held := len(rooms.names)
	rooms.mu.RUnlock()

	for range 10 {
		_, err = rooms.Join(room.ID)
		require.ErrorIs(t, err, ErrRoomFull)
	}

	rooms.mu.RLock()
	defer rooms.mu.RUnlock()
	assert.Equal(t, held, len(rooms.names))
}

// Only one of many simultaneous joins may claim the seat.
func TestRegistryConcurrentJoinHasOneWinner(t *testing.T) {
	rooms := NewRegistry()

	room := rooms.Create()

	const joiners = 64

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		full    int
	)

	start := make(chan struct{})

	for range joiners {
		wg.Go(func() {
			<-start

			joined, err := rooms.Join(room.ID)

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				winners = append(winners, joined.JoinerUsername)
			case errors.Is(err, ErrRoomFull):
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		})
	}

	close(start)
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, joiners-1, full)

	got, ok := rooms.FindByID(room.ID)
	require.True(t, ok)
	assert.Equal(t, winners[0], got.JoinerUsername)
}

func TestRegistryFindByParticipant(t *testing.T) {
	rooms, _, _ := newTestSessions(t, "brave-red-fox", "calm-blue-owl", "quick-teal-otter")

	first := rooms.Create()
	_, err := rooms.Join(first.ID)
	require.NoError(t, err)

	second := rooms.Create()

	for _, tc := range []struct {
		username string
		roomID   string
	}{
		{"brave-red-fox", first.ID},
		{"calm-blue-owl", first.ID},
		{"quick-teal-otter", second.ID},
	} {
		room, ok := rooms.FindByParticipant(tc.username)
		if assert.True(t, ok, tc.username) {
			assert.Equal(t, tc.roomID, room.ID, tc.username)
		}
	}

	_, ok := rooms.FindByParticipant("nobody")
	assert.False(t, ok)

	_, ok = rooms.FindByParticipant("")
	assert.False(t, ok)
}

func TestRegistrySnapshotsAreIndependent(t *testing.T) {
	rooms, sessions, _ := newTestSessions(t)

	room := rooms.Create()
	joined, err := rooms.Join(room.ID)
	require.NoError(t, err)

	require.NoError(t, sessions.SetReady(room.ID, joined.CreatorUsername))
	require.NoError(t, sessions.SetReady(room.ID, joined.JoinerUsername))
	require.NoError(t, sessions.SendMessage(room.ID, joined.CreatorUsername, "hello"))

	snap, ok := rooms.FindByID(room.ID)
	require.True(t, ok)
	require.Len(t, snap.Messages, 1)

	snap.Messages[0].Text = "tampered"
	*snap.JoinedAt = time.Time{}
	snap.State = StateClosed

	again, ok := rooms.FindByID(room.ID)
	require.True(t, ok)
	assert.Equal(t, "hello", again.Messages[0].Text)
	assert.False(t, again.JoinedAt.IsZero())
	assert.Equal(t, StateChatActive, again.State)
}

func TestRegistryReap(t *testing.T) {
	rooms, sessions, clock := newTestSessions(t, "brave-red-fox", "calm-blue-owl", "quick-teal-otter")

	closed := rooms.Create()
	_, err := rooms.Join(closed.ID)
	require.NoError(t, err)

	open := rooms.Create()

	require.NoError(t, sessions.Leave(closed.ID, "brave-red-fox"))

	clock.Advance(4 * time.Minute)
	assert.Empty(t, rooms.Reap(5*time.Minute))
	assert.Equal(t, 2, rooms.Len())

	clock.Advance(time.Minute)
	assert.Equal(t, []string{closed.ID}, rooms.Reap(5*time.Minute))
	assert.Equal(t, 1, rooms.Len())

	_, ok := rooms.FindByID(closed.ID)
	assert.False(t, ok)
	_, ok = rooms.FindByID(open.ID)
	assert.True(t, ok)

	_, ok = rooms.FindByParticipant("brave-red-fox")
	assert.False(t, ok)

	rooms.mu.RLock()
	_, held := rooms.names["calm-blue-owl"]
	rooms.mu.RUnlock()
	assert.False(t, held, "evicted names should be released")

	rooms.newName = fixedNames("brave-red-fox")
	reused := rooms.Create()
	assert.Equal(t, "brave-red-fox", reused.CreatorUsername)
}
