package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/mattias800/snacka-sub010/internal/adapters/hub"
	"github.com/mattias800/snacka-sub010/internal/domain"
)

func (ctl *Controller) handleJoin(userID domain.UserID, reply hub.Replier, data []byte) {
	type joinPayload struct {
		Type    string `json:"type"`
		Channel string `json:"channel"`
	}
	p, ok := unmarshalOrReject[joinPayload](ctl, reply, "join", data)
	if !ok {
		return
	}

	participant, err := ctl.Voice.Join(domain.ChannelID(p.Channel), userID)
	if err != nil {
		ctl.sendError(reply, "join", err)
		return
	}
	reply.Send("joined", participant)
}

func (ctl *Controller) handleLeave(userID domain.UserID, reply hub.Replier, data []byte) {
	type leavePayload struct {
		Type    string `json:"type"`
		Channel string `json:"channel"`
	}
	p, ok := unmarshalOrReject[leavePayload](ctl, reply, "leave", data)
	if !ok {
		return
	}

	log.Info().Str("module", "signal").Str("user", string(userID)).Str("channel", p.Channel).Msg("leave")
	ctl.Voice.Leave(domain.ChannelID(p.Channel), userID)
	reply.Send("left", nil)
}

func (ctl *Controller) handleState(userID domain.UserID, reply hub.Replier, data []byte) {
	type statePayload struct {
		Type    string `json:"type"`
		Channel string `json:"channel"`
		domain.SelfState
	}
	p, ok := unmarshalOrReject[statePayload](ctl, reply, "state", data)
	if !ok {
		return
	}
	// Server flags arriving here are simply not representable in
	// SelfState; nothing to strip, nothing to reject.
	ctl.Voice.UpdateSelfState(domain.ChannelID(p.Channel), userID, p.SelfState)
}

func (ctl *Controller) handleServerState(userID domain.UserID, reply hub.Replier, data []byte) {
	type serverStatePayload struct {
		Type           string `json:"type"`
		Channel        string `json:"channel"`
		Target         string `json:"target"`
		ServerMuted    *bool  `json:"server_muted,omitempty"`
		ServerDeafened *bool  `json:"server_deafened,omitempty"`
	}
	p, ok := unmarshalOrReject[serverStatePayload](ctl, reply, "server_state", data)
	if !ok {
		return
	}

	err := ctl.Voice.AdminSetServerState(
		domain.ChannelID(p.Channel),
		domain.UserID(p.Target),
		userID,
		p.ServerMuted,
		p.ServerDeafened,
	)
	if err != nil {
		ctl.sendError(reply, "server_state", err)
	}
}

func (ctl *Controller) handleMove(userID domain.UserID, reply hub.Replier, data []byte) {
	type movePayload struct {
		Type    string `json:"type"`
		Channel string `json:"channel"`
		Target  string `json:"target"`
		Dest    string `json:"dest"`
	}
	p, ok := unmarshalOrReject[movePayload](ctl, reply, "move", data)
	if !ok {
		return
	}

	err := ctl.Voice.MoveParticipant(
		domain.ChannelID(p.Channel),
		domain.UserID(p.Target),
		domain.ChannelID(p.Dest),
		userID,
	)
	if err != nil {
		ctl.sendError(reply, "move", err)
	}
}
