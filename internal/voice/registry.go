package voice

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/mattias800/snacka-sub010/internal/core"
	"github.com/mattias800/snacka-sub010/internal/domain"
)

// Join admits a user into a voice channel. On success the channel
// group hears participant_joined and the joiner alone receives the
// full channel state (participants + stream identities) so they start
// consistent with everyone already present.
func (s *Service) Join(channelID domain.ChannelID, userID domain.UserID) (domain.VoiceParticipant, error) {
	ch, err := s.dir.Channel(channelID)
	if err != nil {
		return domain.VoiceParticipant{}, fmt.Errorf("%w: channel %s", domain.ErrNotFound, channelID)
	}
	if !ch.IsVoice() {
		return domain.VoiceParticipant{}, domain.ErrChannelNotVoice
	}
	if !s.dir.IsMember(ch.CommunityID, userID) {
		return domain.VoiceParticipant{}, domain.ErrNotAMember
	}

	r := s.getOrCreate(channelID)
	r.mu.Lock()
	for r.dead {
		// Dropped between lookup and lock; a row inserted here would
		// be invisible to the registry.
		r.mu.Unlock()
		r = s.getOrCreate(channelID)
		r.mu.Lock()
	}
	if _, ok := r.participants[userID]; ok {
		r.mu.Unlock()
		return domain.VoiceParticipant{}, domain.ErrAlreadyJoined
	}
	if ch.UserLimit > 0 && len(r.participants) >= ch.UserLimit {
		r.mu.Unlock()
		return domain.VoiceParticipant{}, domain.ErrChannelFull
	}

	p := &domain.VoiceParticipant{
		UserID:    userID,
		ChannelID: channelID,
		JoinedAt:  s.now(),
	}
	r.participants[userID] = p

	joined := *p
	events := []outEvent{
		{channel: channelID, name: core.EvParticipantJoined, payload: core.ParticipantEvent{Participant: joined}},
		{user: userID, name: core.EvChannelState, payload: core.ChannelStateEvent{
			ChannelID:    channelID,
			Participants: snapshotParticipantsLocked(r),
			Streams:      snapshotStreamsLocked(r),
		}},
	}
	r.mu.Unlock()

	s.trackPresence(userID, channelID)
	s.publish(events)
	log.Info().Str("module", "voice").Str("user", string(userID)).Str("channel", string(channelID)).Msg("joined")
	return joined, nil
}

// Leave removes a user from a channel. It is the single exit path:
// explicit leave, connection loss and admin moves all run through it,
// so the stream and tunnel cascades cannot drift apart. Absent rows
// are a silent no-op.
func (s *Service) Leave(channelID domain.ChannelID, userID domain.UserID) {
	r, ok := s.get(channelID)
	if !ok {
		return
	}

	r.mu.Lock()
	events, tunnels, found := leaveLocked(r, channelID, userID)
	r.mu.Unlock()
	if !found {
		return
	}

	s.untrackPresence(userID, channelID)
	s.releaseTunnels(tunnels)
	s.publish(events)
	s.dropIfEmpty(channelID)
	log.Info().Str("module", "voice").Str("user", string(userID)).Str("channel", string(channelID)).Msg("left")
}

// Disconnect treats connection loss exactly like an explicit leave for
// every channel the user occupied. This is the dominant failure path.
func (s *Service) Disconnect(userID domain.UserID) {
	for _, ch := range s.channelsOf(userID) {
		s.Leave(ch, userID)
	}
}

// leaveLocked removes the row and cascades stream mappings and owned
// tunnel shares. Caller holds r.mu and handles the returned events and
// tunnel ids after releasing it.
func leaveLocked(r *room, channelID domain.ChannelID, userID domain.UserID) (events []outEvent, tunnels []domain.TunnelID, found bool) {
	p, ok := r.participants[userID]
	if !ok {
		return nil, nil, false
	}
	delete(r.participants, userID)

	if m, ok := r.streams[userID]; ok {
		delete(r.streams, userID)
		for _, kind := range []domain.StreamKind{domain.StreamMicrophone, domain.StreamScreenAudio, domain.StreamCamera} {
			if m.Get(kind) == "" {
				continue
			}
			events = append(events, outEvent{channel: channelID, name: core.EvStreamCleared, payload: core.StreamEvent{
				ChannelID: channelID,
				UserID:    userID,
				Kind:      kind,
			}})
		}
	}

	for id, share := range r.tunnels {
		if share.OwnerID != userID {
			continue
		}
		delete(r.tunnels, id)
		tunnels = append(tunnels, id)
		events = append(events, outEvent{channel: channelID, name: core.EvPortShareStopped, payload: core.TunnelEvent{Share: *share}})
	}

	events = append(events, outEvent{channel: channelID, name: core.EvParticipantLeft, payload: core.ParticipantEvent{Participant: *p}})
	return events, tunnels, true
}

// UpdateSelfState applies the participant's own flags and broadcasts
// the resulting full state. Server overrides are not settable through
// this path; a participant who is server-muted stays effectively muted
// no matter what they set here. Absent rows are a silent no-op.
func (s *Service) UpdateSelfState(channelID domain.ChannelID, userID domain.UserID, st domain.SelfState) {
	r, ok := s.get(channelID)
	if !ok {
		return
	}

	r.mu.Lock()
	p, ok := r.participants[userID]
	if !ok {
		r.mu.Unlock()
		return
	}

	var events []outEvent
	if st.Muted != nil {
		p.Muted = *st.Muted
	}
	if st.Deafened != nil {
		p.Deafened = *st.Deafened
	}
	if st.ScreenSharing != nil {
		p.ScreenSharing = *st.ScreenSharing
		if !p.ScreenSharing {
			p.ScreenShareHasAudio = false
			events = append(events, clearStreamLocked(r, channelID, userID, domain.StreamScreenAudio)...)
		}
	}
	if st.ScreenShareHasAudio != nil && p.ScreenSharing {
		p.ScreenShareHasAudio = *st.ScreenShareHasAudio
	}
	if st.CameraOn != nil {
		p.CameraOn = *st.CameraOn
		if !p.CameraOn {
			events = append(events, clearStreamLocked(r, channelID, userID, domain.StreamCamera)...)
		}
	}

	events = append(events, outEvent{channel: channelID, name: core.EvStateChanged, payload: core.StateEvent{Participant: *p}})
	r.mu.Unlock()

	s.publish(events)
}

// AdminSetServerState sets the admin-imposed mute/deafen overrides on
// a target participant. Nil leaves a flag as is.
func (s *Service) AdminSetServerState(channelID domain.ChannelID, targetID, actorID domain.UserID, serverMuted, serverDeafened *bool) error {
	ch, err := s.dir.Channel(channelID)
	if err != nil {
		return fmt.Errorf("%w: channel %s", domain.ErrNotFound, channelID)
	}
	if !s.dir.HasAdminCapability(ch.CommunityID, actorID) {
		return domain.ErrForbidden
	}

	r, ok := s.get(channelID)
	if !ok {
		return domain.ErrNotFound
	}

	r.mu.Lock()
	p, ok := r.participants[targetID]
	if !ok {
		r.mu.Unlock()
		return domain.ErrNotFound
	}
	if serverMuted != nil {
		p.ServerMuted = *serverMuted
	}
	if serverDeafened != nil {
		p.ServerDeafened = *serverDeafened
	}
	ev := outEvent{channel: channelID, name: core.EvServerStateChanged, payload: core.ServerStateEvent{
		Participant: *p,
		ActorID:     actorID,
	}}
	r.mu.Unlock()

	s.publish([]outEvent{ev})
	log.Info().Str("module", "voice").Str("target", string(targetID)).Str("actor", string(actorID)).Str("channel", string(channelID)).Msg("server state changed")
	return nil
}

// MoveParticipant atomically relocates a target between two voice
// channels. If the destination rejects the join the source membership
// is untouched; there is no partial move.
func (s *Service) MoveParticipant(channelID domain.ChannelID, targetID domain.UserID, destID domain.ChannelID, actorID domain.UserID) error {
	src, err := s.dir.Channel(channelID)
	if err != nil {
		return fmt.Errorf("%w: channel %s", domain.ErrNotFound, channelID)
	}
	if !s.dir.HasAdminCapability(src.CommunityID, actorID) {
		return domain.ErrForbidden
	}
	if destID == channelID {
		return nil
	}

	dst, err := s.dir.Channel(destID)
	if err != nil {
		return fmt.Errorf("%w: channel %s", domain.ErrNotFound, destID)
	}
	if !dst.IsVoice() {
		return domain.ErrChannelNotVoice
	}
	if !s.dir.IsMember(dst.CommunityID, targetID) {
		return domain.ErrNotAMember
	}

	// Both rooms lock in ChannelID order so concurrent moves in
	// opposite directions cannot deadlock. A room dropped between
	// lookup and lock is re-fetched.
	var srcRoom, dstRoom, first, second *room
	for {
		var ok bool
		srcRoom, ok = s.get(channelID)
		if !ok {
			return domain.ErrNotFound
		}
		dstRoom = s.getOrCreate(destID)

		first, second = srcRoom, dstRoom
		if destID < channelID {
			first, second = dstRoom, srcRoom
		}
		first.mu.Lock()
		second.mu.Lock()
		if !srcRoom.dead && !dstRoom.dead {
			break
		}
		second.mu.Unlock()
		first.mu.Unlock()
	}

	if _, ok := srcRoom.participants[targetID]; !ok {
		second.mu.Unlock()
		first.mu.Unlock()
		return domain.ErrNotFound
	}
	if _, ok := dstRoom.participants[targetID]; ok {
		second.mu.Unlock()
		first.mu.Unlock()
		return domain.ErrAlreadyJoined
	}
	if dst.UserLimit > 0 && len(dstRoom.participants) >= dst.UserLimit {
		second.mu.Unlock()
		first.mu.Unlock()
		return domain.ErrChannelFull
	}

	events, tunnels, _ := leaveLocked(srcRoom, channelID, targetID)

	p := &domain.VoiceParticipant{
		UserID:    targetID,
		ChannelID: destID,
		JoinedAt:  s.now(),
	}
	dstRoom.participants[targetID] = p
	events = append(events,
		outEvent{channel: destID, name: core.EvParticipantJoined, payload: core.ParticipantEvent{Participant: *p}},
		outEvent{user: targetID, name: core.EvChannelState, payload: core.ChannelStateEvent{
			ChannelID:    destID,
			Participants: snapshotParticipantsLocked(dstRoom),
			Streams:      snapshotStreamsLocked(dstRoom),
		}},
	)

	second.mu.Unlock()
	first.mu.Unlock()

	s.untrackPresence(targetID, channelID)
	s.trackPresence(targetID, destID)
	s.releaseTunnels(tunnels)
	s.publish(events)
	s.dropIfEmpty(channelID)
	log.Info().Str("module", "voice").Str("target", string(targetID)).Str("from", string(channelID)).Str("to", string(destID)).Msg("moved")
	return nil
}

// Participants returns a point-in-time copy of a channel's rows,
// ordered by join time.
func (s *Service) Participants(channelID domain.ChannelID) []domain.VoiceParticipant {
	r, ok := s.get(channelID)
	if !ok {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return snapshotParticipantsLocked(r)
}

func snapshotParticipantsLocked(r *room) []domain.VoiceParticipant {
	out := make([]domain.VoiceParticipant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out
}

// releaseTunnels drops index entries and tears down any in-flight
// proxied connections for tunnels that just died. Local cleanup always
// runs; only notifications can be lost.
func (s *Service) releaseTunnels(ids []domain.TunnelID) {
	if len(ids) == 0 {
		return
	}
	s.mu.Lock()
	for _, id := range ids {
		delete(s.tunnelIndex, id)
	}
	s.mu.Unlock()
	if s.proxy == nil {
		return
	}
	for _, id := range ids {
		s.proxy.CloseTunnel(id)
	}
}
