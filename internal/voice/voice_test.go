package voice

import (
	"sync"
	"time"

	"github.com/mattias800/snacka-sub010/internal/domain"
)

// testDir is a canned membership predicate:
// community "acme" with members alice, bob, carol and admin adm;
// voice channels general/gaming, a text channel, and a 1-seat booth.
type testDir struct{}

func (testDir) IsMember(c domain.CommunityID, u domain.UserID) bool {
	if c != "acme" {
		return false
	}
	switch u {
	case "alice", "bob", "carol", "adm":
		return true
	}
	return false
}

func (testDir) HasAdminCapability(c domain.CommunityID, u domain.UserID) bool {
	return c == "acme" && u == "adm"
}

func (testDir) Channel(id domain.ChannelID) (domain.Channel, error) {
	switch id {
	case "general", "gaming":
		return domain.Channel{ID: id, CommunityID: "acme", Kind: domain.ChannelVoice}, nil
	case "booth":
		return domain.Channel{ID: id, CommunityID: "acme", Kind: domain.ChannelVoice, UserLimit: 1}, nil
	case "lobby":
		return domain.Channel{ID: id, CommunityID: "acme", Kind: domain.ChannelText}, nil
	}
	return domain.Channel{}, domain.ErrNotFound
}

// pubEvent is one recorded publish call.
type pubEvent struct {
	Channel domain.ChannelID
	User    domain.UserID
	Name    string
	Payload any
}

// fakePub records everything and can simulate unreachable users.
type fakePub struct {
	mu        sync.Mutex
	events    []pubEvent
	failUsers map[domain.UserID]bool
}

func (p *fakePub) PublishToChannel(ch domain.ChannelID, name string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, pubEvent{Channel: ch, Name: name, Payload: payload})
	return nil
}

func (p *fakePub) PublishToUser(u domain.UserID, name string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failUsers[u] {
		return domain.ErrDeliveryFailed
	}
	p.events = append(p.events, pubEvent{User: u, Name: name, Payload: payload})
	return nil
}

func (p *fakePub) named(name string) []pubEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []pubEvent
	for _, ev := range p.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func (p *fakePub) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

// fakeProxy records tunnel lifecycle calls.
type fakeProxy struct {
	mu     sync.Mutex
	opened []domain.TunnelID
	closed []domain.TunnelID
}

func (p *fakeProxy) OpenTunnel(id domain.TunnelID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opened = append(p.opened, id)
}

func (p *fakeProxy) CloseTunnel(id domain.TunnelID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = append(p.closed, id)
}

// fakeIssuer mints predictable URLs.
type fakeIssuer struct{}

func (fakeIssuer) AccessURL(share domain.TunnelShare, requester domain.UserID) (string, error) {
	return "http://test/api/tunnel/" + string(share.ID), nil
}

func newTestService() (*Service, *fakePub) {
	pub := &fakePub{failUsers: make(map[domain.UserID]bool)}
	svc := NewService(testDir{}, pub)
	svc.SetAccessIssuer(fakeIssuer{})

	// Deterministic, strictly increasing join times.
	var tick int64
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	svc.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return svc, pub
}
