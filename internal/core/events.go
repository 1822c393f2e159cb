package core

import (
	"encoding/json"

	"github.com/mattias800/snacka-sub010/internal/domain"
)

// Event names crossing the transport boundary. These are stable:
// clients key on them.
const (
	EvParticipantJoined  = "participant_joined"
	EvParticipantLeft    = "participant_left"
	EvStateChanged       = "voice_state_changed"
	EvServerStateChanged = "server_state_changed"
	EvChannelState       = "channel_state" // point-to-point catch-up on join

	EvStreamDiscovered = "stream_discovered"
	EvStreamCleared    = "stream_cleared"

	EvPortShared       = "port_shared"
	EvPortShareStopped = "port_share_stopped"
	EvTunnelConnect    = "tunnel_connect" // server → owner: dial back for a proxy leg

	EvSignal = "signal" // relayed offer/answer/candidate, point-to-point
)

// ParticipantEvent announces a join or leave to the channel group.
type ParticipantEvent struct {
	Participant domain.VoiceParticipant `json:"participant"`
}

// StateEvent carries the full resulting participant state, never a
// delta, so clients replace instead of merge.
type StateEvent struct {
	Participant domain.VoiceParticipant `json:"participant"`
}

// ServerStateEvent carries both the target's resulting state and the
// acting admin, for audit/UI attribution.
type ServerStateEvent struct {
	Participant domain.VoiceParticipant `json:"participant"`
	ActorID     domain.UserID           `json:"actor_id"`
}

// ChannelStateEvent is the snapshot-then-delta catch-up delivered
// point-to-point to a joining client: everyone already present plus
// every stream identity assigned so far.
type ChannelStateEvent struct {
	ChannelID    domain.ChannelID          `json:"channel_id"`
	Participants []domain.VoiceParticipant `json:"participants"`
	Streams      []domain.StreamMapping    `json:"streams"`
}

// StreamEvent announces one discovered or cleared stream identity.
type StreamEvent struct {
	ChannelID domain.ChannelID  `json:"channel_id"`
	UserID    domain.UserID     `json:"user_id"`
	Kind      domain.StreamKind `json:"kind"`
	StreamID  string            `json:"stream_id,omitempty"`
}

// TunnelEvent announces a shared or stopped port. It never carries the
// owner's network address.
type TunnelEvent struct {
	Share domain.TunnelShare `json:"share"`
}

// TunnelConnectEvent asks the owner's client to dial back the serve
// leg of a proxied connection.
type TunnelConnectEvent struct {
	TunnelID domain.TunnelID `json:"tunnel_id"`
	Port     int             `json:"port"`
	ServeURL string          `json:"serve_url"`
}

// SignalKind discriminates relayed negotiation messages.
type SignalKind string

const (
	SignalOffer     SignalKind = "offer"
	SignalAnswer    SignalKind = "answer"
	SignalCandidate SignalKind = "iceCandidate"
)

func (k SignalKind) Valid() bool {
	switch k {
	case SignalOffer, SignalAnswer, SignalCandidate:
		return true
	}
	return false
}

// SignalMessage is a transient store-and-forward hop. Payload is
// relayed verbatim; the core never interprets it.
type SignalMessage struct {
	SenderID domain.UserID   `json:"sender_id"`
	TargetID domain.UserID   `json:"target_id"`
	Kind     SignalKind      `json:"kind"`
	Payload  json.RawMessage `json:"payload"`
}
