package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mattias800/snacka-sub010/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

// Client is one websocket connection of one user.
type Client struct {
	hub    *Hub
	userID domain.UserID
	conn   *websocket.Conn
	send   chan []byte

	mu     sync.Mutex
	closed bool
}

// Serve registers an upgraded connection and runs its pumps. It
// returns when the connection dies; the hub then decides whether the
// user is fully gone.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, userID domain.UserID) {
	c := &Client{
		hub:    h,
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
	}
	h.register(c)

	ctx, cancel := context.WithCancel(ctx)
	go c.writePump(ctx)
	go func() {
		defer cancel()
		c.readPump(ctx)
	}()
}

// UserID identifies the connection's authenticated user.
func (c *Client) UserID() domain.UserID { return c.userID }

// Send queues one event frame for this connection only.
func (c *Client) Send(event string, payload any) {
	data, err := json.Marshal(Envelope{Op: event, Data: payload, Seq: c.hub.seq.Add(1)})
	if err != nil {
		log.Error().Err(err).Str("module", "hub").Str("event", event).Msg("marshal reply")
		return
	}
	_ = c.trySend(data)
}

func (c *Client) trySend(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "hub").Str("user", string(c.userID)).Msg("read error")
			}
			return
		}
		if c.hub.handler != nil {
			c.hub.handler.HandleMessage(c.userID, data, c)
		}
	}
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "hub").Str("user", string(c.userID)).Msg("write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
