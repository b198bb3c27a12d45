/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Pairchat rooms
//
// A room pairs exactly two anonymous users. The creator gets a room ID and a
// generated display name from POST /createroom and shares the ID; the second
// user claims the other seat with GET /join/:roomId. Both then open a socket
// on /ws, announce themselves with join_room, confirm with user_ready, and
// chat until either one leaves or drops, which closes the room for good.
//
// Routes:
//   - POST $prefix/createroom          → new room, 201
//   - GET  $prefix/join/:roomId        → claim the joiner seat, 200 / 403 / 404
//   - GET  $prefix/join/:roomId/qr     → PNG QR code of the invite
//   - GET  $prefix/rooms/:roomId       → read-only room snapshot
//   - GET  $prefix/ws                  → event socket
//
// Closed rooms are evicted after --closed-room-ttl.

package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"github.com/skip2/go-qrcode"
)

type chatServer struct {
	rooms    *Registry
	sessions *Coordinator
	clients  *clientSet
}

// APIError is the JSON body of every failed API request.
type APIError struct {
	Message string `json:"message"`
}

func serveCreateRoom(cfg *Config, rooms *Registry, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		securityHeaders(cfg, w)

		room := rooms.Create()

		logf(cfg, "ROOMS: Created %s for %q (requested by %s)", room.ID, room.CreatorUsername, realIP(r))

		writeJSON(w, http.StatusCreated, room, errs)
	}
}

func serveJoinRoom(cfg *Config, rooms *Registry, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		securityHeaders(cfg, w)

		room, err := rooms.Join(p.ByName("roomId"))
		switch {
		case errors.Is(err, ErrRoomNotFound):
			writeJSON(w, http.StatusNotFound, APIError{Message: "room not found"}, errs)
			return
		case errors.Is(err, ErrRoomFull):
			writeJSON(w, http.StatusForbidden, APIError{Message: "Room already filled"}, errs)
			return
		case err != nil:
			writeJSON(w, http.StatusInternalServerError, APIError{Message: "could not join room"}, errs)
			return
		}

		logf(cfg, "ROOMS: %q joined %s (requested by %s)", room.JoinerUsername, room.ID, realIP(r))

		writeJSON(w, http.StatusOK, room, errs)
	}
}

func serveRoom(cfg *Config, rooms *Registry, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		securityHeaders(cfg, w)

		room, ok := rooms.FindByID(p.ByName("roomId"))
		if !ok {
			writeJSON(w, http.StatusNotFound, APIError{Message: "room not found"}, errs)
			return
		}

		writeJSON(w, http.StatusOK, room, errs)
	}
}

// serveInviteQR renders the invite for a room as a PNG QR code. With
// --invite-url set the code holds that URL followed by the room ID,
// otherwise just the room ID.
func serveInviteQR(cfg *Config, rooms *Registry, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		securityHeaders(cfg, w)

		room, ok := rooms.FindByID(p.ByName("roomId"))
		if !ok {
			writeJSON(w, http.StatusNotFound, APIError{Message: "room not found"}, errs)
			return
		}

		const qrSize = 320

		png, err := qrcode.Encode(cfg.inviteURL+room.ID, qrcode.Medium, qrSize)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, APIError{Message: "qr generation failed"}, errs)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")

		if _, err := w.Write(png); err != nil {
			errs <- err
		}
	}
}

// reapLoop periodically evicts rooms that have been closed longer than
// the configured TTL.
func reapLoop(ctx context.Context, cfg *Config, rooms *Registry, sessions *Coordinator) {
	ticker := time.NewTicker(max(cfg.closedRoomTTL/2, time.Second))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reapRooms(cfg, rooms, sessions)
		}
	}
}

func reapRooms(cfg *Config, rooms *Registry, sessions *Coordinator) int {
	evicted := rooms.Reap(cfg.closedRoomTTL)
	if len(evicted) == 0 {
		return 0
	}

	sessions.Forget(evicted...)

	logf(cfg, "ROOMS: Evicted %d closed room(s), %d remaining", len(evicted), rooms.Len())

	return len(evicted)
}

func registerChat(ctx context.Context, cfg *Config, mux *httprouter.Router, origins *cors.Cors, errs chan<- error) *chatServer {
	rooms := NewRegistry()
	sessions := NewCoordinator(cfg, rooms)
	clients := newClientSet()

	mux.POST(cfg.prefix+"/createroom", serveCreateRoom(cfg, rooms, errs))
	mux.GET(cfg.prefix+"/join/:roomId", serveJoinRoom(cfg, rooms, errs))
	mux.GET(cfg.prefix+"/join/:roomId/qr", serveInviteQR(cfg, rooms, errs))
	mux.GET(cfg.prefix+"/rooms/:roomId", serveRoom(cfg, rooms, errs))
	mux.GET(cfg.prefix+"/ws", serveSocket(cfg, origins, sessions, clients))

	if cfg.closedRoomTTL > 0 {
		go reapLoop(ctx, cfg, rooms, sessions)
	}

	return &chatServer{
		rooms:    rooms,
		sessions: sessions,
		clients:  clients,
	}
}
