package domain

import (
	"time"

	"github.com/google/uuid"
)

const MaxTunnelLabelLen = 64

type TunnelID string

// NewTunnelID returns a fresh unguessable tunnel id. Ids are never
// reused, even when the same owner re-shares the same port, so a stale
// client can never address a tunnel that has since been replaced.
func NewTunnelID() TunnelID {
	return TunnelID(uuid.NewString())
}

// TunnelShare is one currently-shared local TCP port, scoped to the
// membership of one voice channel. The owner's network address stays
// server-side and is never part of this struct.
type TunnelShare struct {
	ID        TunnelID  `json:"tunnel_id"`
	OwnerID   UserID    `json:"owner_id"`
	ChannelID ChannelID `json:"channel_id"`
	Port      int       `json:"port"`
	Label     string    `json:"label,omitempty"`
	SharedAt  time.Time `json:"shared_at"`
}

// ValidPort reports whether p is inside the usable TCP port range.
func ValidPort(p int) bool { return p >= 1 && p <= 65535 }
