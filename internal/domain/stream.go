package domain

// StreamKind names one of a participant's outbound media streams.
type StreamKind string

const (
	StreamMicrophone  StreamKind = "microphone"
	StreamScreenAudio StreamKind = "screen_audio"
	StreamCamera      StreamKind = "camera"
)

func (k StreamKind) Valid() bool {
	switch k {
	case StreamMicrophone, StreamScreenAudio, StreamCamera:
		return true
	}
	return false
}

// StreamMapping binds a participant's capabilities to the transport
// stream identifiers the media fabric discovered for them. Empty
// string means the fabric has not reported that stream yet.
type StreamMapping struct {
	UserID    UserID    `json:"user_id"`
	ChannelID ChannelID `json:"channel_id"`

	Microphone  string `json:"microphone,omitempty"`
	ScreenAudio string `json:"screen_audio,omitempty"`
	Camera      string `json:"camera,omitempty"`
}

// Get returns the stream id recorded for kind, empty if unset.
func (m *StreamMapping) Get(kind StreamKind) string {
	switch kind {
	case StreamMicrophone:
		return m.Microphone
	case StreamScreenAudio:
		return m.ScreenAudio
	case StreamCamera:
		return m.Camera
	}
	return ""
}

func (m *StreamMapping) Set(kind StreamKind, id string) {
	switch kind {
	case StreamMicrophone:
		m.Microphone = id
	case StreamScreenAudio:
		m.ScreenAudio = id
	case StreamCamera:
		m.Camera = id
	}
}

func (m *StreamMapping) Empty() bool {
	return m.Microphone == "" && m.ScreenAudio == "" && m.Camera == ""
}
