// Package hub is the transport collaborator: it tracks live websocket
// connections per user and implements the core's Publisher contract.
// The core only ever addresses logical user/channel identifiers;
// resolving a channel group to its current members is injected so the
// hub never reaches back into the voice core.
package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/mattias800/snacka-sub010/internal/domain"
)

var ErrNoConnection = errors.New("user has no live connection")

// Envelope is the outbound wire frame. Seq is a monotonically
// increasing counter clients use to spot missed events.
type Envelope struct {
	Op   string `json:"op"`
	Data any    `json:"d,omitempty"`
	Seq  int64  `json:"seq,omitempty"`
}

// MemberResolver maps a channel group to the users currently in it.
type MemberResolver func(domain.ChannelID) []domain.UserID

// Replier answers the connection a frame arrived on, point-to-point.
type Replier interface {
	Send(event string, payload any)
}

// Handler consumes inbound frames from a client connection.
type Handler interface {
	HandleMessage(userID domain.UserID, data []byte, reply Replier)
}

// Hub tracks every connection. A user may hold several (multiple
// devices/tabs); events go to all of them.
type Hub struct {
	mu      sync.RWMutex
	clients map[domain.UserID]map[*Client]bool

	resolve MemberResolver
	handler Handler
	// onGone fires once a user's last connection drops; this is the
	// push-based connection-loss signal the voice core treats as Leave.
	onGone func(domain.UserID)

	seq atomic.Int64
}

func New(resolve MemberResolver) *Hub {
	return &Hub{
		clients: make(map[domain.UserID]map[*Client]bool),
		resolve: resolve,
	}
}

// SetHandler wires the inbound frame dispatcher.
func (h *Hub) SetHandler(handler Handler) { h.handler = handler }

// SetOnUserGone wires the connection-loss callback.
func (h *Hub) SetOnUserGone(fn func(domain.UserID)) { h.onGone = fn }

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*Client]bool)
		h.clients[c.userID] = set
	}
	set[c] = true
	log.Info().Str("module", "hub").Str("user", string(c.userID)).Int("conns", len(set)).Msg("client connected")
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	set, ok := h.clients[c.userID]
	gone := false
	if ok && set[c] {
		delete(set, c)
		c.closeSend()
		if len(set) == 0 {
			delete(h.clients, c.userID)
			gone = true
		}
	}
	h.mu.Unlock()

	if gone {
		log.Info().Str("module", "hub").Str("user", string(c.userID)).Msg("user fully disconnected")
		if h.onGone != nil {
			h.onGone(c.userID)
		}
	}
}

// PublishToChannel fans an event out to every current member of the
// channel. A slow member gets dropped, never blocks the rest.
func (h *Hub) PublishToChannel(channelID domain.ChannelID, event string, payload any) error {
	data, err := h.marshal(event, payload)
	if err != nil {
		return err
	}
	for _, userID := range h.resolve(channelID) {
		h.sendToUser(userID, data)
	}
	return nil
}

// PublishToUser delivers point-to-point. It reports ErrNoConnection
// when the user has no live connection at all, so callers like the
// signaling relay can surface delivery failure to the sender.
func (h *Hub) PublishToUser(userID domain.UserID, event string, payload any) error {
	data, err := h.marshal(event, payload)
	if err != nil {
		return err
	}
	if !h.sendToUser(userID, data) {
		return ErrNoConnection
	}
	return nil
}

// OnlineUserIDs lists users with at least one live connection.
func (h *Hub) OnlineUserIDs() []domain.UserID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]domain.UserID, 0, len(h.clients))
	for id := range h.clients {
		out = append(out, id)
	}
	return out
}

func (h *Hub) marshal(event string, payload any) ([]byte, error) {
	return json.Marshal(Envelope{Op: event, Data: payload, Seq: h.seq.Add(1)})
}

func (h *Hub) sendToUser(userID domain.UserID, data []byte) bool {
	h.mu.RLock()
	set := h.clients[userID]
	targets := make([]*Client, 0, len(set))
	for c := range set {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := false
	for _, c := range targets {
		if err := c.trySend(data); err != nil {
			// Backpressure or closed: this client is beyond saving.
			log.Warn().Str("module", "hub").Str("user", string(userID)).Err(err).Msg("dropping slow client")
			go h.unregister(c)
			continue
		}
		delivered = true
	}
	return delivered
}

// Shutdown closes every connection (graceful server stop).
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.clients {
		for c := range set {
			c.closeSend()
		}
	}
	h.clients = make(map[domain.UserID]map[*Client]bool)
	log.Info().Str("module", "hub").Msg("hub shut down")
}
