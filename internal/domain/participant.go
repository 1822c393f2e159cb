package domain

import "time"

// VoiceParticipant is one row per (user, voice channel) while the user
// is connected. Self flags and server flags are independent booleans
// combined by OR at read time; clearing one never clears the other.
type VoiceParticipant struct {
	UserID    UserID    `json:"user_id"`
	ChannelID ChannelID `json:"channel_id"`

	Muted          bool `json:"muted"`
	ServerMuted    bool `json:"server_muted"`
	Deafened       bool `json:"deafened"`
	ServerDeafened bool `json:"server_deafened"`

	ScreenSharing bool `json:"screen_sharing"`
	// ScreenShareHasAudio is meaningless unless ScreenSharing is true.
	ScreenShareHasAudio bool `json:"screen_share_has_audio"`
	CameraOn            bool `json:"camera_on"`

	JoinedAt time.Time `json:"joined_at"`
}

func (p *VoiceParticipant) EffectiveMuted() bool    { return p.Muted || p.ServerMuted }
func (p *VoiceParticipant) EffectiveDeafened() bool { return p.Deafened || p.ServerDeafened }

// SelfState carries a participant's own partial update. Nil means
// "leave as is". Server flags are deliberately not representable here;
// they only move through the admin path.
type SelfState struct {
	Muted               *bool `json:"muted,omitempty"`
	Deafened            *bool `json:"deafened,omitempty"`
	ScreenSharing       *bool `json:"screen_sharing,omitempty"`
	ScreenShareHasAudio *bool `json:"screen_share_has_audio,omitempty"`
	CameraOn            *bool `json:"camera_on,omitempty"`
}
