package voice

import (
	"fmt"

	"github.com/mattias800/snacka-sub010/internal/core"
	"github.com/mattias800/snacka-sub010/internal/domain"
)

// Relay forwards one connection-negotiation message between two
// co-channel participants, point-to-point. The co-channel check is
// re-evaluated on every message because membership can change mid
// negotiation. The relay holds no state across calls: no buffering,
// no retry. An unreachable target surfaces as ErrDeliveryFailed and
// the sender's own signaling state machine decides what to do.
func (s *Service) Relay(channelID domain.ChannelID, msg core.SignalMessage) error {
	if !msg.Kind.Valid() {
		return fmt.Errorf("%w: unknown signal kind %q", domain.ErrNotFound, msg.Kind)
	}

	r, ok := s.get(channelID)
	if !ok {
		return domain.ErrNotCoChannel
	}

	r.mu.Lock()
	_, senderIn := r.participants[msg.SenderID]
	_, targetIn := r.participants[msg.TargetID]
	r.mu.Unlock()

	if !senderIn || !targetIn {
		return domain.ErrNotCoChannel
	}

	if err := s.pub.PublishToUser(msg.TargetID, core.EvSignal, msg); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDeliveryFailed, err)
	}
	return nil
}
