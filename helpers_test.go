/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestConfig(t *testing.T) *Config {
	t.Helper()

	cfg := &Config{
		allowedOrigins:    []string{"http://localhost:5173"},
		bind:              "127.0.0.1",
		closedRoomTTL:     time.Minute,
		maxMessageSize:    4096,
		port:              5001,
		rateLimitBurst:    100,
		rateLimitInterval: time.Second,
	}
	require.NoError(t, cfg.validate())

	return cfg
}

// fixedNames makes a registry hand out the given names in order, then
// fall back to random ones.
func fixedNames(names ...string) func() string {
	var mu sync.Mutex

	return func() string {
		mu.Lock()
		defer mu.Unlock()

		if len(names) == 0 {
			return generateUsername()
		}

		name := names[0]
		names = names[1:]
		return name
	}
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestSessions(t *testing.T, names ...string) (*Registry, *Coordinator, *testClock) {
	t.Helper()

	clock := newTestClock()
	rooms := NewRegistry()
	rooms.now = clock.Now
	rooms.newName = fixedNames(names...)

	return rooms, NewCoordinator(newTestConfig(t), rooms), clock
}

// fakeConn records every frame queued on it.
type fakeConn struct {
	mu     sync.Mutex
	frames []any
	full   bool
}

func (f *fakeConn) Send(msg any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.full {
		return false
	}

	f.frames = append(f.frames, msg)
	return true
}

func (f *fakeConn) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = nil
}

func (f *fakeConn) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func framesOf[T any](f *fakeConn) []T {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []T
	for _, frame := range f.frames {
		if v, ok := frame.(T); ok {
			out = append(out, v)
		}
	}
	return out
}
