// Package core defines the contracts between the voice core and its
// external collaborators: the CRUD/authorization service and the
// connection transport. The core never addresses network connections
// directly, only logical user and channel identifiers.
package core

import "github.com/mattias800/snacka-sub010/internal/domain"

// Directory is the membership predicate supplied by the CRUD service.
// It is consulted synchronously on every authorization-sensitive
// operation; results are never cached by the core.
type Directory interface {
	IsMember(communityID domain.CommunityID, userID domain.UserID) bool
	HasAdminCapability(communityID domain.CommunityID, userID domain.UserID) bool
	Channel(channelID domain.ChannelID) (domain.Channel, error)
}

// Publisher is the broadcast primitive supplied by the transport.
// PublishToChannel fans an event out to every current member of the
// channel group; PublishToUser delivers point-to-point. A returned
// error is a soft delivery failure: the mutation that produced the
// event stands either way.
type Publisher interface {
	PublishToChannel(channelID domain.ChannelID, event string, payload any) error
	PublishToUser(userID domain.UserID, event string, payload any) error
}
