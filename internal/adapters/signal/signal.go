// Package signal dispatches inbound client frames to the voice core.
// Frames are small typed JSON messages; every rejected operation goes
// back to the sender as an error frame with a stable code.
package signal

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/mattias800/snacka-sub010/internal/adapters/hub"
	"github.com/mattias800/snacka-sub010/internal/domain"
	"github.com/mattias800/snacka-sub010/internal/voice"
)

type Controller struct {
	Voice *voice.Service
}

func NewController(svc *voice.Service) *Controller {
	return &Controller{Voice: svc}
}

// HandleMessage implements hub.Handler.
func (ctl *Controller) HandleMessage(userID domain.UserID, data []byte, reply hub.Replier) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendError(reply, env.Type, errors.New("bad_payload"))
		return
	}

	switch env.Type {
	case "join":
		ctl.handleJoin(userID, reply, data)
	case "leave":
		ctl.handleLeave(userID, reply, data)
	case "state":
		ctl.handleState(userID, reply, data)
	case "server_state":
		ctl.handleServerState(userID, reply, data)
	case "move":
		ctl.handleMove(userID, reply, data)
	case "offer", "answer", "candidate":
		ctl.handleSignal(userID, reply, env.Type, data)
	case "tunnel_share":
		ctl.handleTunnelShare(userID, reply, data)
	case "tunnel_stop":
		ctl.handleTunnelStop(userID, reply, data)
	case "tunnel_access":
		ctl.handleTunnelAccess(userID, reply, data)
	case "ping":
		reply.Send("pong", nil)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown frame")
	}
}

// errorFrame is the rejection payload for a failed operation.
type errorFrame struct {
	Op   string `json:"op,omitempty"`
	Code string `json:"code"`
}

func (ctl *Controller) sendError(reply hub.Replier, op string, err error) {
	reply.Send("error", errorFrame{Op: op, Code: errCode(err)})
}

// errCode maps the core's error taxonomy onto stable wire codes.
func errCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotAMember):
		return "not_a_member"
	case errors.Is(err, domain.ErrForbidden):
		return "forbidden"
	case errors.Is(err, domain.ErrNotCoChannel):
		return "not_co_channel"
	case errors.Is(err, domain.ErrAlreadyJoined):
		return "already_joined"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrChannelNotVoice):
		return "channel_not_voice"
	case errors.Is(err, domain.ErrChannelFull):
		return "channel_full"
	case errors.Is(err, domain.ErrInvalidPort):
		return "invalid_port"
	case errors.Is(err, domain.ErrTooManyShares):
		return "too_many_shares"
	case errors.Is(err, domain.ErrDeliveryFailed):
		return "delivery_failed"
	default:
		return "bad_payload"
	}
}

func unmarshalOrReject[T any](ctl *Controller, reply hub.Replier, op string, data []byte) (T, bool) {
	var p T
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("op", op).Msg("bad payload")
		ctl.sendError(reply, op, errors.New("bad_payload"))
		return p, false
	}
	return p, true
}
