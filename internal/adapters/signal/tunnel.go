package signal

import (
	"github.com/mattias800/snacka-sub010/internal/adapters/hub"
	"github.com/mattias800/snacka-sub010/internal/domain"
)

func (ctl *Controller) handleTunnelShare(userID domain.UserID, reply hub.Replier, data []byte) {
	type sharePayload struct {
		Type    string `json:"type"`
		Channel string `json:"channel"`
		Port    int    `json:"port"`
		Label   string `json:"label,omitempty"`
	}
	p, ok := unmarshalOrReject[sharePayload](ctl, reply, "tunnel_share", data)
	if !ok {
		return
	}

	share, err := ctl.Voice.Share(domain.ChannelID(p.Channel), userID, p.Port, p.Label)
	if err != nil {
		ctl.sendError(reply, "tunnel_share", err)
		return
	}
	reply.Send("tunnel_shared", share)
}

func (ctl *Controller) handleTunnelStop(userID domain.UserID, reply hub.Replier, data []byte) {
	type stopPayload struct {
		Type    string `json:"type"`
		Channel string `json:"channel"`
		Tunnel  string `json:"tunnel_id"`
	}
	p, ok := unmarshalOrReject[stopPayload](ctl, reply, "tunnel_stop", data)
	if !ok {
		return
	}

	if err := ctl.Voice.StopShare(domain.ChannelID(p.Channel), domain.TunnelID(p.Tunnel), userID); err != nil {
		ctl.sendError(reply, "tunnel_stop", err)
	}
}

func (ctl *Controller) handleTunnelAccess(userID domain.UserID, reply hub.Replier, data []byte) {
	type accessPayload struct {
		Type   string `json:"type"`
		Tunnel string `json:"tunnel_id"`
	}
	p, ok := unmarshalOrReject[accessPayload](ctl, reply, "tunnel_access", data)
	if !ok {
		return
	}

	url, err := ctl.Voice.RequestAccess(domain.TunnelID(p.Tunnel), userID)
	if err != nil {
		ctl.sendError(reply, "tunnel_access", err)
		return
	}
	reply.Send("tunnel_access_granted", map[string]string{
		"tunnel_id":  p.Tunnel,
		"access_url": url,
	})
}
