package signal

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/mattias800/snacka-sub010/internal/adapters/hub"
	"github.com/mattias800/snacka-sub010/internal/core"
	"github.com/mattias800/snacka-sub010/internal/domain"
)

// handleSignal relays one negotiation frame to a co-channel target.
// The payload shape is validated against the pion types before relay
// so a target never receives a frame its own stack cannot parse; the
// validated payload is forwarded as-is.
func (ctl *Controller) handleSignal(userID domain.UserID, reply hub.Replier, op string, data []byte) {
	type signalPayload struct {
		Type    string          `json:"type"`
		Channel string          `json:"channel"`
		Target  string          `json:"target"`
		Payload json.RawMessage `json:"payload"`
	}
	p, ok := unmarshalOrReject[signalPayload](ctl, reply, op, data)
	if !ok {
		return
	}

	var kind core.SignalKind
	switch op {
	case "offer":
		kind = core.SignalOffer
		if !validSDP(p.Payload, webrtc.SDPTypeOffer) {
			ctl.sendError(reply, op, errBadSignal)
			return
		}
	case "answer":
		kind = core.SignalAnswer
		if !validSDP(p.Payload, webrtc.SDPTypeAnswer) {
			ctl.sendError(reply, op, errBadSignal)
			return
		}
	case "candidate":
		kind = core.SignalCandidate
		var cand webrtc.ICECandidateInit
		if err := json.Unmarshal(p.Payload, &cand); err != nil || cand.Candidate == "" {
			ctl.sendError(reply, op, errBadSignal)
			return
		}
	}

	err := ctl.Voice.Relay(domain.ChannelID(p.Channel), core.SignalMessage{
		SenderID: userID,
		TargetID: domain.UserID(p.Target),
		Kind:     kind,
		Payload:  p.Payload,
	})
	if err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("sender", string(userID)).Str("target", p.Target).Msg("relay rejected")
		ctl.sendError(reply, op, err)
	}
}

var errBadSignal = errBadPayload("bad signal payload")

type errBadPayload string

func (e errBadPayload) Error() string { return string(e) }

func validSDP(raw json.RawMessage, want webrtc.SDPType) bool {
	var sd webrtc.SessionDescription
	if err := json.Unmarshal(raw, &sd); err != nil {
		return false
	}
	return sd.Type == want && sd.SDP != ""
}
