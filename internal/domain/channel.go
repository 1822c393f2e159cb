package domain

type (
	ChannelID   string
	CommunityID string
)

type ChannelKind string

const (
	ChannelText  ChannelKind = "text"
	ChannelVoice ChannelKind = "voice"
)

// Channel is the slice of channel meta-data the voice core needs:
// which community owns it, whether it can host participants at all,
// and how many. Everything else (name, topic, ordering) belongs to
// the CRUD service.
type Channel struct {
	ID          ChannelID   `json:"id"`
	CommunityID CommunityID `json:"community_id"`
	Kind        ChannelKind `json:"kind"`
	// UserLimit caps concurrent participants; 0 means unbounded.
	UserLimit int `json:"user_limit,omitempty"`
}

func (c Channel) IsVoice() bool { return c.Kind == ChannelVoice }
