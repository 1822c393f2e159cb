package voice

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/mattias800/snacka-sub010/internal/core"
	"github.com/mattias800/snacka-sub010/internal/domain"
)

// Share exposes one of the owner's local TCP ports to the channel.
// The share gets a fresh unguessable tunnel id; re-sharing a port the
// owner already shares replaces the old share, broadcasting a stop for
// the old id before the share for the new one, so an invalidated id is
// never reachable again.
func (s *Service) Share(channelID domain.ChannelID, ownerID domain.UserID, port int, label string) (domain.TunnelShare, error) {
	if !domain.ValidPort(port) {
		return domain.TunnelShare{}, domain.ErrInvalidPort
	}
	if len(label) > domain.MaxTunnelLabelLen {
		label = label[:domain.MaxTunnelLabelLen]
	}

	r, ok := s.get(channelID)
	if !ok {
		return domain.TunnelShare{}, domain.ErrNotAMember
	}

	r.mu.Lock()
	if _, ok := r.participants[ownerID]; !ok {
		r.mu.Unlock()
		return domain.TunnelShare{}, domain.ErrNotAMember
	}

	var events []outEvent
	var replaced []domain.TunnelID
	owned := 0
	for id, old := range r.tunnels {
		if old.OwnerID != ownerID {
			continue
		}
		if old.Port == port {
			delete(r.tunnels, id)
			replaced = append(replaced, id)
			events = append(events, outEvent{channel: channelID, name: core.EvPortShareStopped, payload: core.TunnelEvent{Share: *old}})
			continue
		}
		owned++
	}
	if owned >= MaxSharesPerChannel {
		r.mu.Unlock()
		return domain.TunnelShare{}, domain.ErrTooManyShares
	}

	share := &domain.TunnelShare{
		ID:        domain.NewTunnelID(),
		OwnerID:   ownerID,
		ChannelID: channelID,
		Port:      port,
		Label:     label,
		SharedAt:  s.now(),
	}
	r.tunnels[share.ID] = share
	out := *share
	events = append(events, outEvent{channel: channelID, name: core.EvPortShared, payload: core.TunnelEvent{Share: out}})
	r.mu.Unlock()

	s.releaseTunnels(replaced)
	s.mu.Lock()
	s.tunnelIndex[out.ID] = channelID
	s.mu.Unlock()
	if s.proxy != nil {
		s.proxy.OpenTunnel(out.ID)
	}

	// An owner leave can interleave before the index entry and proxy
	// registration exist, and its cascade would miss them. Re-check
	// and release so nothing stale survives the race.
	r.mu.Lock()
	_, alive := r.tunnels[out.ID]
	r.mu.Unlock()
	if !alive {
		s.releaseTunnels([]domain.TunnelID{out.ID})
		s.publish(events[:len(events)-1])
		return domain.TunnelShare{}, domain.ErrNotAMember
	}

	s.publish(events)
	log.Info().Str("module", "voice").Str("owner", string(ownerID)).Str("channel", string(channelID)).Int("port", port).Str("tunnel", string(out.ID)).Msg("port shared")
	return out, nil
}

// StopShare retires a share. Only the owner may stop it.
func (s *Service) StopShare(channelID domain.ChannelID, tunnelID domain.TunnelID, requesterID domain.UserID) error {
	r, ok := s.get(channelID)
	if !ok {
		return domain.ErrNotFound
	}

	r.mu.Lock()
	share, ok := r.tunnels[tunnelID]
	if !ok {
		r.mu.Unlock()
		return domain.ErrNotFound
	}
	if share.OwnerID != requesterID {
		r.mu.Unlock()
		return domain.ErrForbidden
	}
	delete(r.tunnels, tunnelID)
	ev := outEvent{channel: channelID, name: core.EvPortShareStopped, payload: core.TunnelEvent{Share: *share}}
	r.mu.Unlock()

	s.releaseTunnels([]domain.TunnelID{tunnelID})
	s.publish([]outEvent{ev})
	log.Info().Str("module", "voice").Str("tunnel", string(tunnelID)).Msg("port share stopped")
	return nil
}

// LookupShare resolves a live tunnel id. Invalidated ids resolve to
// nothing, whoever still holds them.
func (s *Service) LookupShare(tunnelID domain.TunnelID) (domain.TunnelShare, error) {
	s.mu.RLock()
	channelID, ok := s.tunnelIndex[tunnelID]
	s.mu.RUnlock()
	if !ok {
		return domain.TunnelShare{}, domain.ErrNotFound
	}

	r, ok := s.get(channelID)
	if !ok {
		return domain.TunnelShare{}, domain.ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	share, ok := r.tunnels[tunnelID]
	if !ok {
		return domain.TunnelShare{}, domain.ErrNotFound
	}
	return *share, nil
}

// AuthorizeAccess checks, fresh, that the tunnel is still alive and
// the requester is still a participant of its owning channel. Used at
// URL issuance and again at redemption.
func (s *Service) AuthorizeAccess(tunnelID domain.TunnelID, requesterID domain.UserID) (domain.TunnelShare, error) {
	share, err := s.LookupShare(tunnelID)
	if err != nil {
		return domain.TunnelShare{}, err
	}

	r, ok := s.get(share.ChannelID)
	if !ok {
		return domain.TunnelShare{}, domain.ErrNotFound
	}
	r.mu.Lock()
	_, member := r.participants[requesterID]
	r.mu.Unlock()
	if !member {
		return domain.TunnelShare{}, domain.ErrForbidden
	}
	return share, nil
}

// RequestAccess authorizes a channel member to connect through a
// tunnel and returns the time-scoped URL that opens the byte proxy.
// Only authorization and URL issuance happen here; the bytes flow
// through the proxy once the requester connects.
func (s *Service) RequestAccess(tunnelID domain.TunnelID, requesterID domain.UserID) (string, error) {
	share, err := s.AuthorizeAccess(tunnelID, requesterID)
	if err != nil {
		return "", err
	}
	if s.urls == nil {
		return "", errors.New("tunnel access is not configured")
	}
	return s.urls.AccessURL(share, requesterID)
}

// Shares lists the live shares in a channel, for the ops surface.
func (s *Service) Shares(channelID domain.ChannelID) []domain.TunnelShare {
	r, ok := s.get(channelID)
	if !ok {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.TunnelShare, 0, len(r.tunnels))
	for _, share := range r.tunnels {
		out = append(out, *share)
	}
	return out
}

// NotifyTunnelConnect asks the owner's client to dial back the serve
// leg for one accepted proxy connection.
func (s *Service) NotifyTunnelConnect(share domain.TunnelShare, serveURL string) error {
	ev := core.TunnelConnectEvent{
		TunnelID: share.ID,
		Port:     share.Port,
		ServeURL: serveURL,
	}
	return s.pub.PublishToUser(share.OwnerID, core.EvTunnelConnect, ev)
}
