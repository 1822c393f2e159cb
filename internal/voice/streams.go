package voice

import (
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/mattias800/snacka-sub010/internal/core"
	"github.com/mattias800/snacka-sub010/internal/domain"
)

// Discover records the transport stream id the media fabric learned
// for one of a participant's capabilities. Re-discovery with the same
// id is a no-op; a different id overwrites and re-broadcasts, which
// covers reconnection re-negotiation. A discovery racing a disconnect
// is expected and swallowed.
func (s *Service) Discover(channelID domain.ChannelID, userID domain.UserID, kind domain.StreamKind, streamID string) {
	if !kind.Valid() || streamID == "" {
		log.Warn().Str("module", "voice").Str("kind", string(kind)).Msg("discover: bad stream kind or id")
		return
	}

	r, ok := s.get(channelID)
	if !ok {
		log.Debug().Str("module", "voice").Str("user", string(userID)).Str("channel", string(channelID)).Msg("discover: no such room, dropping")
		return
	}

	r.mu.Lock()
	if _, ok := r.participants[userID]; !ok {
		r.mu.Unlock()
		log.Debug().Str("module", "voice").Str("user", string(userID)).Str("channel", string(channelID)).Msg("discover: participant gone, dropping")
		return
	}

	m, ok := r.streams[userID]
	if !ok {
		m = &domain.StreamMapping{UserID: userID, ChannelID: channelID}
		r.streams[userID] = m
	}
	if m.Get(kind) == streamID {
		r.mu.Unlock()
		return
	}
	m.Set(kind, streamID)
	ev := outEvent{channel: channelID, name: core.EvStreamDiscovered, payload: core.StreamEvent{
		ChannelID: channelID,
		UserID:    userID,
		Kind:      kind,
		StreamID:  streamID,
	}}
	r.mu.Unlock()

	s.publish([]outEvent{ev})
}

// Clear drops the recorded stream id for one capability, typically
// because it stopped (screen share ended, camera off).
func (s *Service) Clear(channelID domain.ChannelID, userID domain.UserID, kind domain.StreamKind) {
	r, ok := s.get(channelID)
	if !ok {
		return
	}
	r.mu.Lock()
	events := clearStreamLocked(r, channelID, userID, kind)
	r.mu.Unlock()
	s.publish(events)
}

// clearStreamLocked unsets one stream id and queues the cleared event.
// Caller holds r.mu. Unset ids clear silently.
func clearStreamLocked(r *room, channelID domain.ChannelID, userID domain.UserID, kind domain.StreamKind) []outEvent {
	m, ok := r.streams[userID]
	if !ok || m.Get(kind) == "" {
		return nil
	}
	m.Set(kind, "")
	if m.Empty() {
		delete(r.streams, userID)
	}
	return []outEvent{{channel: channelID, name: core.EvStreamCleared, payload: core.StreamEvent{
		ChannelID: channelID,
		UserID:    userID,
		Kind:      kind,
	}}}
}

// StreamSnapshot returns every current mapping in the channel, ordered
// by the owning participant's join time so newer entries sort last.
func (s *Service) StreamSnapshot(channelID domain.ChannelID) []domain.StreamMapping {
	r, ok := s.get(channelID)
	if !ok {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return snapshotStreamsLocked(r)
}

func snapshotStreamsLocked(r *room) []domain.StreamMapping {
	out := make([]domain.StreamMapping, 0, len(r.streams))
	for _, m := range r.streams {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		pi, iok := r.participants[out[i].UserID]
		pj, jok := r.participants[out[j].UserID]
		if !iok || !jok {
			return iok
		}
		return pi.JoinedAt.Before(pj.JoinedAt)
	})
	return out
}
