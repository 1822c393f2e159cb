// Package voice is the real-time coordination core: participant state,
// stream identity mapping, signaling relay and tunnel lifecycle. Each
// channel's state is one serialization domain; operations on different
// channels proceed independently.
package voice

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mattias800/snacka-sub010/internal/core"
	"github.com/mattias800/snacka-sub010/internal/domain"
)

// MaxSharesPerChannel caps how many ports one owner can expose in one
// channel at a time.
const MaxSharesPerChannel = 8

// ProxyControl mirrors the tunnel lifecycle into the byte proxy: a
// share opens its tunnel, a stop or cascade closes it along with any
// in-flight proxied connections. Implemented by the tunnel proxy;
// optional.
type ProxyControl interface {
	OpenTunnel(id domain.TunnelID)
	CloseTunnel(id domain.TunnelID)
}

// AccessIssuer mints the time-scoped URL returned by RequestAccess.
type AccessIssuer interface {
	AccessURL(share domain.TunnelShare, requester domain.UserID) (string, error)
}

// room is the per-channel shared-mutable unit. Everything inside is
// guarded by mu; nothing under mu ever touches the network.
type room struct {
	mu           sync.Mutex
	participants map[domain.UserID]*domain.VoiceParticipant
	streams      map[domain.UserID]*domain.StreamMapping
	tunnels      map[domain.TunnelID]*domain.TunnelShare
	// dead marks a room removed from the store. A writer that fetched
	// the pointer before the removal must not insert into it.
	dead bool
}

func newRoom() *room {
	return &room{
		participants: make(map[domain.UserID]*domain.VoiceParticipant),
		streams:      make(map[domain.UserID]*domain.StreamMapping),
		tunnels:      make(map[domain.TunnelID]*domain.TunnelShare),
	}
}

func (r *room) empty() bool {
	return len(r.participants) == 0 && len(r.tunnels) == 0
}

// Service owns the room store and implements the four core components
// against it. Mutations collect events under the room lock and publish
// them only after it is released.
type Service struct {
	dir   core.Directory
	pub   core.Publisher
	proxy ProxyControl // may be nil
	urls  AccessIssuer // may be nil until tunnel access is wired

	mu       sync.RWMutex
	rooms    map[domain.ChannelID]*room
	presence map[domain.UserID]map[domain.ChannelID]struct{}
	// tunnelIndex resolves a tunnel id to its owning channel, since
	// RequestAccess arrives with an id only.
	tunnelIndex map[domain.TunnelID]domain.ChannelID

	now func() time.Time
}

func NewService(dir core.Directory, pub core.Publisher) *Service {
	return &Service{
		dir:         dir,
		pub:         pub,
		rooms:       make(map[domain.ChannelID]*room),
		presence:    make(map[domain.UserID]map[domain.ChannelID]struct{}),
		tunnelIndex: make(map[domain.TunnelID]domain.ChannelID),
		now:         time.Now,
	}
}

// SetProxyControl wires the byte-proxy teardown hook.
func (s *Service) SetProxyControl(p ProxyControl) { s.proxy = p }

// SetAccessIssuer wires the tunnel access URL signer.
func (s *Service) SetAccessIssuer(a AccessIssuer) { s.urls = a }

// getOrCreate returns the room for a channel, creating it on first use.
func (s *Service) getOrCreate(ch domain.ChannelID) *room {
	s.mu.RLock()
	r, ok := s.rooms[ch]
	s.mu.RUnlock()
	if ok {
		return r
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok = s.rooms[ch]; !ok {
		r = newRoom()
		s.rooms[ch] = r
	}
	return r
}

// get returns an existing room without creating one.
func (s *Service) get(ch domain.ChannelID) (*room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[ch]
	return r, ok
}

// dropIfEmpty removes a fully vacated room from the store.
// Callers must not hold the room lock.
func (s *Service) dropIfEmpty(ch domain.ChannelID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[ch]
	if !ok {
		return
	}
	r.mu.Lock()
	if r.empty() {
		r.dead = true
		delete(s.rooms, ch)
	}
	r.mu.Unlock()
}

func (s *Service) trackPresence(user domain.UserID, ch domain.ChannelID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.presence[user]
	if !ok {
		set = make(map[domain.ChannelID]struct{})
		s.presence[user] = set
	}
	set[ch] = struct{}{}
}

func (s *Service) untrackPresence(user domain.UserID, ch domain.ChannelID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.presence[user]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(s.presence, user)
		}
	}
}

// channelsOf snapshots every channel the user currently occupies.
func (s *Service) channelsOf(user domain.UserID) []domain.ChannelID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ChannelID, 0, len(s.presence[user]))
	for ch := range s.presence[user] {
		out = append(out, ch)
	}
	return out
}

// outEvent is one pending broadcast, built under a room lock and
// published after release.
type outEvent struct {
	channel domain.ChannelID // group target, empty when user is set
	user    domain.UserID    // point-to-point target
	name    string
	payload any
}

// publish flushes pending events. Delivery failure never rolls back
// the mutation that produced the event; it is logged and dropped.
func (s *Service) publish(events []outEvent) {
	for _, ev := range events {
		var err error
		if ev.user != "" {
			err = s.pub.PublishToUser(ev.user, ev.name, ev.payload)
		} else {
			err = s.pub.PublishToChannel(ev.channel, ev.name, ev.payload)
		}
		if err != nil {
			log.Warn().Err(err).Str("module", "voice").Str("event", ev.name).Msg("publish failed")
		}
	}
}
