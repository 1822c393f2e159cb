package voice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattias800/snacka-sub010/internal/core"
	"github.com/mattias800/snacka-sub010/internal/domain"
)

func TestDiscoverBroadcastsOnce(t *testing.T) {
	svc, pub := newTestService()

	_, err := svc.Join("general", "alice")
	require.NoError(t, err)
	pub.reset()

	svc.Discover("general", "alice", domain.StreamMicrophone, "ssrc-1")
	svc.Discover("general", "alice", domain.StreamMicrophone, "ssrc-1") // re-discovery, same id

	events := pub.named(core.EvStreamDiscovered)
	require.Len(t, events, 1)
	ev := events[0].Payload.(core.StreamEvent)
	assert.Equal(t, domain.StreamMicrophone, ev.Kind)
	assert.Equal(t, "ssrc-1", ev.StreamID)
}

func TestDiscoverOverwriteRebroadcasts(t *testing.T) {
	svc, pub := newTestService()

	_, err := svc.Join("general", "alice")
	require.NoError(t, err)
	svc.Discover("general", "alice", domain.StreamMicrophone, "ssrc-1")
	pub.reset()

	// Reconnection renegotiated a fresh transport id.
	svc.Discover("general", "alice", domain.StreamMicrophone, "ssrc-2")

	events := pub.named(core.EvStreamDiscovered)
	require.Len(t, events, 1)
	assert.Equal(t, "ssrc-2", events[0].Payload.(core.StreamEvent).StreamID)

	snap := svc.StreamSnapshot("general")
	require.Len(t, snap, 1)
	assert.Equal(t, "ssrc-2", snap[0].Get(domain.StreamMicrophone))
}

func TestDiscoverInvalidInputDropped(t *testing.T) {
	svc, pub := newTestService()

	_, err := svc.Join("general", "alice")
	require.NoError(t, err)
	pub.reset()

	svc.Discover("general", "alice", domain.StreamKind("subwoofer"), "ssrc-1")
	svc.Discover("general", "alice", domain.StreamMicrophone, "")

	assert.Empty(t, pub.events)
	assert.Empty(t, svc.StreamSnapshot("general"))
}

func TestLateDiscoverAfterLeaveIsSwallowed(t *testing.T) {
	svc, pub := newTestService()

	_, err := svc.Join("general", "alice")
	require.NoError(t, err)
	_, err = svc.Join("general", "bob")
	require.NoError(t, err)
	svc.Leave("general", "alice")
	pub.reset()

	// The media fabric races the disconnect; the report arrives after
	// the row is gone and must not resurrect anything.
	svc.Discover("general", "alice", domain.StreamMicrophone, "ssrc-9")

	assert.Empty(t, pub.events)
	assert.Empty(t, svc.StreamSnapshot("general"))
}

func TestClearUnsetIsSilent(t *testing.T) {
	svc, pub := newTestService()

	_, err := svc.Join("general", "alice")
	require.NoError(t, err)
	pub.reset()

	svc.Clear("general", "alice", domain.StreamCamera)
	assert.Empty(t, pub.events)
}

func TestClearDropsMappingWhenLastKindGoes(t *testing.T) {
	svc, pub := newTestService()

	_, err := svc.Join("general", "alice")
	require.NoError(t, err)
	svc.Discover("general", "alice", domain.StreamMicrophone, "ssrc-1")
	svc.Discover("general", "alice", domain.StreamCamera, "ssrc-2")
	pub.reset()

	svc.Clear("general", "alice", domain.StreamCamera)
	require.Len(t, pub.named(core.EvStreamCleared), 1)
	require.Len(t, svc.StreamSnapshot("general"), 1)

	svc.Clear("general", "alice", domain.StreamMicrophone)
	assert.Len(t, pub.named(core.EvStreamCleared), 2)
	assert.Empty(t, svc.StreamSnapshot("general"))
}

func TestLeaveCascadesStreamClears(t *testing.T) {
	svc, pub := newTestService()

	_, err := svc.Join("general", "alice")
	require.NoError(t, err)
	svc.Discover("general", "alice", domain.StreamMicrophone, "ssrc-1")
	svc.Discover("general", "alice", domain.StreamCamera, "ssrc-2")
	pub.reset()

	svc.Leave("general", "alice")

	cleared := pub.named(core.EvStreamCleared)
	require.Len(t, cleared, 2)
	kinds := map[domain.StreamKind]bool{}
	for _, ev := range cleared {
		kinds[ev.Payload.(core.StreamEvent).Kind] = true
	}
	assert.True(t, kinds[domain.StreamMicrophone])
	assert.True(t, kinds[domain.StreamCamera])
	assert.Empty(t, svc.StreamSnapshot("general"))
}

func TestJoinSnapshotCarriesStreams(t *testing.T) {
	svc, pub := newTestService()

	_, err := svc.Join("general", "alice")
	require.NoError(t, err)
	svc.Discover("general", "alice", domain.StreamMicrophone, "ssrc-1")
	pub.reset()

	_, err = svc.Join("general", "bob")
	require.NoError(t, err)

	states := pub.named(core.EvChannelState)
	require.Len(t, states, 1)
	snap := states[0].Payload.(core.ChannelStateEvent)
	require.Len(t, snap.Streams, 1)
	assert.Equal(t, domain.UserID("alice"), snap.Streams[0].UserID)
	assert.Equal(t, "ssrc-1", snap.Streams[0].Get(domain.StreamMicrophone))
}
