package domain

import "errors"

// Error taxonomy for the voice core. Authorization and precondition
// failures are surfaced to the caller and never mutate shared state.
var (
	// Authorization failures, always checked fresh per operation.
	ErrNotAMember   = errors.New("not a member")
	ErrForbidden    = errors.New("forbidden")
	ErrNotCoChannel = errors.New("sender and target are not in the same channel")

	// State preconditions.
	ErrAlreadyJoined = errors.New("already joined")
	ErrNotFound      = errors.New("not found")

	// Input validation.
	ErrChannelNotVoice = errors.New("channel is not voice capable")
	ErrChannelFull     = errors.New("channel is full")
	ErrInvalidPort     = errors.New("port outside valid TCP range")
	ErrTooManyShares   = errors.New("too many concurrent shares")

	// Soft failure: the target was not reachable. The mutation (if any)
	// stands; the caller decides whether to retry.
	ErrDeliveryFailed = errors.New("delivery failed")
)
