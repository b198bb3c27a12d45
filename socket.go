/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// ClientMessage is any frame a client sends. Which fields are used
// depends on Type: "join_room", "user_ready", "chat_message" or
// "user_leaving".
type ClientMessage struct {
	Type     string `json:"type"`
	ID       int64  `json:"id,omitempty"` // echoed back in the ack for join_room
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
	Text     string `json:"text,omitempty"`
}

// AckMessage answers a join_room frame.
type AckMessage struct {
	Type    string `json:"type"` // "ack"
	ID      int64  `json:"id,omitempty"`
	Success bool   `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ErrorMessage reports a rejected frame to the sender only.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}

type Client struct {
	conn    *websocket.Conn
	send    chan any
	addr    string
	limiter *rate.Limiter

	done      chan struct{}
	closeOnce sync.Once
}

func newClient(cfg *Config, conn *websocket.Conn, addr string) *Client {
	limit := rate.Limit(float64(cfg.rateLimitBurst) / cfg.rateLimitInterval.Seconds())

	return &Client{
		conn:    conn,
		send:    make(chan any, 32),
		addr:    addr,
		limiter: rate.NewLimiter(limit, cfg.rateLimitBurst),
		done:    make(chan struct{}),
	}
}

// Send queues msg for the write pump. A client whose queue is full is
// disconnected rather than allowed to stall the room.
func (c *Client) Send(msg any) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		go c.close()
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(writeWait))
		_ = c.conn.Close()
	})
}

// clientSet tracks every open socket so shutdown can close them.
type clientSet struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
}

func newClientSet() *clientSet {
	return &clientSet{clients: make(map[*Client]struct{})}
}

func (s *clientSet) add(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c] = struct{}{}
}

func (s *clientSet) remove(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c)
}

func (s *clientSet) closeAll() int {
	s.mu.Lock()
	clients := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.close()
	}

	return len(clients)
}

func newUpgrader(cfg *Config, origins *cors.Cors) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if origins.OriginAllowed(r) {
				return true
			}

			logf(cfg, "SOCKET: Blocked connection from %s with origin %q", realIP(r), r.Header.Get("Origin"))

			return false
		},
	}
}

func serveSocket(cfg *Config, origins *cors.Cors, sessions *Coordinator, clients *clientSet) httprouter.Handle {
	upgrader := newUpgrader(cfg, origins)

	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "SOCKET: Upgrade failed for %s: %v", realIP(r), err)
			return
		}

		client := newClient(cfg, conn, realIP(r))
		clients.add(client)
		defer clients.remove(client)

		logf(cfg, "SOCKET: Connected %s", client.addr)

		go client.writePump()
		client.readPump(cfg, sessions)
	}
}

func (c *Client) readPump(cfg *Config, sessions *Coordinator) {
	defer func() {
		sessions.Disconnect(c)
		c.close()
		logf(cfg, "SOCKET: Disconnected %s", c.addr)
	}()

	c.conn.SetReadLimit(cfg.maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				logf(cfg, "SOCKET: Frame from %s exceeded %s", c.addr, humanReadableSize(cfg.maxMessageSize))
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logf(cfg, "SOCKET: Read error from %s: %v", c.addr, err)
			}

			return
		}

		if !c.limiter.Allow() {
			c.Send(ErrorMessage{Type: "error", Message: "rate limit exceeded"})
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.Send(ErrorMessage{Type: "error", Message: "malformed frame"})
			continue
		}

		c.dispatch(cfg, sessions, msg)
	}
}

// ackError is the text a join_room ack carries for err.
func ackError(err error) string {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return "Room not found"
	case errors.Is(err, ErrRoomFull):
		return "Room is full"
	case errors.Is(err, ErrRoomClosed):
		return "Room is closed"
	}
	return err.Error()
}

func (c *Client) dispatch(cfg *Config, sessions *Coordinator, msg ClientMessage) {
	var err error

	switch msg.Type {
	case "join_room":
		ack := AckMessage{Type: "ack", ID: msg.ID, Success: true}
		if err := sessions.Announce(c, msg.RoomID, msg.Username); err != nil {
			ack = AckMessage{Type: "ack", ID: msg.ID, Error: ackError(err)}
		}
		c.Send(ack)

		return
	case "user_ready":
		err = sessions.SetReady(msg.RoomID, msg.Username)
	case "chat_message":
		err = sessions.SendMessage(msg.RoomID, msg.Username, msg.Text)
	case "user_leaving":
		err = sessions.Leave(msg.RoomID, msg.Username)
	default:
		err = errors.New("unknown event")
	}

	if err != nil {
		logf(cfg, "SOCKET: %s from %s rejected: %v", msg.Type, c.addr, err)

		c.Send(ErrorMessage{
			Type:    "error",
			Event:   msg.Type,
			Message: err.Error(),
		})
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
