// Package directory is an in-memory stand-in for the CRUD service's
// membership predicate. The real community/channel store lives in a
// separate service; the voice core only needs these lookups to answer
// authorization checks, so a seeded map is enough to run and test the
// core end to end.
package directory

import (
	"sync"

	"github.com/mattias800/snacka-sub010/internal/domain"
)

type community struct {
	members map[domain.UserID]bool
	admins  map[domain.UserID]bool
}

type Directory struct {
	mu          sync.RWMutex
	communities map[domain.CommunityID]*community
	channels    map[domain.ChannelID]domain.Channel
}

func New() *Directory {
	return &Directory{
		communities: make(map[domain.CommunityID]*community),
		channels:    make(map[domain.ChannelID]domain.Channel),
	}
}

func (d *Directory) IsMember(communityID domain.CommunityID, userID domain.UserID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.communities[communityID]
	return ok && c.members[userID]
}

func (d *Directory) HasAdminCapability(communityID domain.CommunityID, userID domain.UserID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.communities[communityID]
	return ok && c.admins[userID]
}

func (d *Directory) Channel(channelID domain.ChannelID) (domain.Channel, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ch, ok := d.channels[channelID]
	if !ok {
		return domain.Channel{}, domain.ErrNotFound
	}
	return ch, nil
}

// AddChannel registers or replaces a channel.
func (d *Directory) AddChannel(ch domain.Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels[ch.ID] = ch
	d.ensureCommunityLocked(ch.CommunityID)
}

// AddMember adds a community member, creating the community row on
// first use.
func (d *Directory) AddMember(communityID domain.CommunityID, userID domain.UserID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensureCommunityLocked(communityID).members[userID] = true
}

// SetAdmin grants or revokes admin capability. Admins are members too.
func (d *Directory) SetAdmin(communityID domain.CommunityID, userID domain.UserID, admin bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.ensureCommunityLocked(communityID)
	if admin {
		c.members[userID] = true
	}
	c.admins[userID] = admin
}

// RemoveMember drops a user from the community entirely.
func (d *Directory) RemoveMember(communityID domain.CommunityID, userID domain.UserID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.communities[communityID]; ok {
		delete(c.members, userID)
		delete(c.admins, userID)
	}
}

func (d *Directory) ensureCommunityLocked(id domain.CommunityID) *community {
	c, ok := d.communities[id]
	if !ok {
		c = &community{
			members: make(map[domain.UserID]bool),
			admins:  make(map[domain.UserID]bool),
		}
		d.communities[id] = c
	}
	return c
}

// Seed describes the static membership data loaded at startup.
type Seed struct {
	Communities []SeedCommunity `mapstructure:"communities"`
	Channels    []SeedChannel   `mapstructure:"channels"`
}

type SeedCommunity struct {
	ID      string   `mapstructure:"id"`
	Members []string `mapstructure:"members"`
	Admins  []string `mapstructure:"admins"`
}

type SeedChannel struct {
	ID        string `mapstructure:"id"`
	Community string `mapstructure:"community"`
	Kind      string `mapstructure:"kind"`
	UserLimit int    `mapstructure:"user_limit"`
}

// Load populates the directory from a seed.
func (d *Directory) Load(seed Seed) {
	for _, c := range seed.Communities {
		for _, m := range c.Members {
			d.AddMember(domain.CommunityID(c.ID), domain.UserID(m))
		}
		for _, a := range c.Admins {
			d.SetAdmin(domain.CommunityID(c.ID), domain.UserID(a), true)
		}
	}
	for _, ch := range seed.Channels {
		kind := domain.ChannelKind(ch.Kind)
		if kind == "" {
			kind = domain.ChannelVoice
		}
		d.AddChannel(domain.Channel{
			ID:          domain.ChannelID(ch.ID),
			CommunityID: domain.CommunityID(ch.Community),
			Kind:        kind,
			UserLimit:   ch.UserLimit,
		})
	}
}
