package voice

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattias800/snacka-sub010/internal/core"
	"github.com/mattias800/snacka-sub010/internal/domain"
)

func TestShareValidation(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Join("general", "alice")
	require.NoError(t, err)

	_, err = svc.Share("general", "alice", 0, "")
	assert.ErrorIs(t, err, domain.ErrInvalidPort)
	_, err = svc.Share("general", "alice", 70000, "")
	assert.ErrorIs(t, err, domain.ErrInvalidPort)

	_, err = svc.Share("general", "bob", 8080, "")
	assert.ErrorIs(t, err, domain.ErrNotAMember)
}

func TestShareBroadcastsWithoutAddress(t *testing.T) {
	svc, pub := newTestService()

	_, err := svc.Join("general", "alice")
	require.NoError(t, err)
	pub.reset()

	share, err := svc.Share("general", "alice", 8080, "dev server")
	require.NoError(t, err)
	assert.NotEmpty(t, share.ID)
	assert.Equal(t, 8080, share.Port)
	assert.Equal(t, "dev server", share.Label)

	events := pub.named(core.EvPortShared)
	require.Len(t, events, 1)
	assert.Equal(t, share.ID, events[0].Payload.(core.TunnelEvent).Share.ID)
}

func TestShareTruncatesLabel(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Join("general", "alice")
	require.NoError(t, err)

	share, err := svc.Share("general", "alice", 8080, strings.Repeat("x", 200))
	require.NoError(t, err)
	assert.Len(t, share.Label, domain.MaxTunnelLabelLen)
}

func TestReshareSamePortReplaces(t *testing.T) {
	svc, pub := newTestService()
	proxy := &fakeProxy{}
	svc.SetProxyControl(proxy)

	_, err := svc.Join("general", "alice")
	require.NoError(t, err)
	old, err := svc.Share("general", "alice", 8080, "v1")
	require.NoError(t, err)
	pub.reset()

	next, err := svc.Share("general", "alice", 8080, "v2")
	require.NoError(t, err)
	assert.NotEqual(t, old.ID, next.ID)

	// Stop for the old id precedes the share for the new one.
	require.Len(t, pub.events, 2)
	assert.Equal(t, core.EvPortShareStopped, pub.events[0].Name)
	assert.Equal(t, old.ID, pub.events[0].Payload.(core.TunnelEvent).Share.ID)
	assert.Equal(t, core.EvPortShared, pub.events[1].Name)

	// The replaced id is dead in every lookup path.
	_, err = svc.LookupShare(old.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, proxy.closed, old.ID)
	assert.Contains(t, proxy.opened, next.ID)

	got, err := svc.LookupShare(next.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Label)
}

func TestShareLimit(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Join("general", "alice")
	require.NoError(t, err)
	for i := 0; i < MaxSharesPerChannel; i++ {
		_, err = svc.Share("general", "alice", 8000+i, fmt.Sprintf("svc-%d", i))
		require.NoError(t, err)
	}

	_, err = svc.Share("general", "alice", 9000, "one too many")
	assert.ErrorIs(t, err, domain.ErrTooManyShares)

	// Re-sharing an already shared port is a replacement, not a new
	// slot, so it still succeeds at the limit.
	_, err = svc.Share("general", "alice", 8000, "replaced")
	assert.NoError(t, err)
}

func TestStopShareOwnership(t *testing.T) {
	svc, pub := newTestService()

	_, err := svc.Join("general", "alice")
	require.NoError(t, err)
	_, err = svc.Join("general", "bob")
	require.NoError(t, err)
	share, err := svc.Share("general", "alice", 8080, "")
	require.NoError(t, err)
	pub.reset()

	err = svc.StopShare("general", share.ID, "bob")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Empty(t, pub.events)

	require.NoError(t, svc.StopShare("general", share.ID, "alice"))
	assert.Len(t, pub.named(core.EvPortShareStopped), 1)

	err = svc.StopShare("general", share.ID, "alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStoppedShareRejectsAccess(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Join("general", "alice")
	require.NoError(t, err)
	_, err = svc.Join("general", "bob")
	require.NoError(t, err)
	share, err := svc.Share("general", "alice", 8080, "")
	require.NoError(t, err)

	url, err := svc.RequestAccess(share.ID, "bob")
	require.NoError(t, err)
	assert.Contains(t, url, string(share.ID))

	require.NoError(t, svc.StopShare("general", share.ID, "alice"))

	_, err = svc.RequestAccess(share.ID, "bob")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAccessRequiresCoChannelPresence(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Join("general", "alice")
	require.NoError(t, err)
	_, err = svc.Join("gaming", "bob")
	require.NoError(t, err)
	share, err := svc.Share("general", "alice", 8080, "")
	require.NoError(t, err)

	// Bob is a community member but not in the sharing channel.
	_, err = svc.RequestAccess(share.ID, "bob")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	// Joining the channel is what grants access.
	_, err = svc.Join("general", "bob")
	require.NoError(t, err)
	_, err = svc.RequestAccess(share.ID, "bob")
	assert.NoError(t, err)

	// Leaving revokes it again, even mid-session.
	svc.Leave("general", "bob")
	_, err = svc.AuthorizeAccess(share.ID, "bob")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestOwnerDisconnectStopsAllShares(t *testing.T) {
	svc, pub := newTestService()
	proxy := &fakeProxy{}
	svc.SetProxyControl(proxy)

	_, err := svc.Join("general", "alice")
	require.NoError(t, err)
	_, err = svc.Join("general", "bob")
	require.NoError(t, err)
	s1, err := svc.Share("general", "alice", 8080, "web")
	require.NoError(t, err)
	s2, err := svc.Share("general", "alice", 5432, "db")
	require.NoError(t, err)
	pub.reset()

	svc.Disconnect("alice")

	stopped := pub.named(core.EvPortShareStopped)
	require.Len(t, stopped, 2)
	assert.ElementsMatch(t, []domain.TunnelID{s1.ID, s2.ID}, proxy.closed)
	assert.Empty(t, svc.Shares("general"))

	_, err = svc.RequestAccess(s1.ID, "bob")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestShareSurvivesOtherParticipantsLeaving(t *testing.T) {
	svc, pub := newTestService()

	_, err := svc.Join("general", "alice")
	require.NoError(t, err)
	_, err = svc.Join("general", "bob")
	require.NoError(t, err)
	share, err := svc.Share("general", "alice", 8080, "")
	require.NoError(t, err)
	pub.reset()

	svc.Leave("general", "bob")

	assert.Empty(t, pub.named(core.EvPortShareStopped))
	_, err = svc.LookupShare(share.ID)
	assert.NoError(t, err)
}

func TestSamePortDifferentOwnersCoexist(t *testing.T) {
	svc, pub := newTestService()
	proxy := &fakeProxy{}
	svc.SetProxyControl(proxy)

	_, err := svc.Join("general", "alice")
	require.NoError(t, err)
	_, err = svc.Join("general", "bob")
	require.NoError(t, err)

	sa, err := svc.Share("general", "alice", 8080, "alice's")
	require.NoError(t, err)
	sb, err := svc.Share("general", "bob", 8080, "bob's")
	require.NoError(t, err)
	assert.NotEqual(t, sa.ID, sb.ID)
	assert.Len(t, svc.Shares("general"), 2)
	pub.reset()

	// Bob sharing the same port number is not a replacement of
	// alice's share; only alice's own shares fall with her.
	svc.Disconnect("alice")

	stopped := pub.named(core.EvPortShareStopped)
	require.Len(t, stopped, 1)
	assert.Equal(t, sa.ID, stopped[0].Payload.(core.TunnelEvent).Share.ID)

	_, err = svc.LookupShare(sb.ID)
	assert.NoError(t, err)
	_, err = svc.RequestAccess(sb.ID, "bob")
	assert.NoError(t, err)
}

func TestShareRacingOwnerLeaveLeavesNoResidue(t *testing.T) {
	svc, _ := newTestService()
	proxy := &fakeProxy{}
	svc.SetProxyControl(proxy)

	for i := 0; i < 300; i++ {
		_, err := svc.Join("general", "alice")
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = svc.Share("general", "alice", 8080, "")
		}()
		go func() {
			defer wg.Done()
			svc.Leave("general", "alice")
		}()
		wg.Wait()
		svc.Disconnect("alice")

		// Whichever side won, no share and no index entry survives.
		assert.Empty(t, svc.Shares("general"))
		svc.mu.RLock()
		stale := len(svc.tunnelIndex)
		svc.mu.RUnlock()
		require.Zero(t, stale, "tunnel index must not leak entries")
	}
}

func TestNotifyTunnelConnectTargetsOwner(t *testing.T) {
	svc, pub := newTestService()

	_, err := svc.Join("general", "alice")
	require.NoError(t, err)
	share, err := svc.Share("general", "alice", 8080, "")
	require.NoError(t, err)
	pub.reset()

	require.NoError(t, svc.NotifyTunnelConnect(share, "ws://test/serve"))

	events := pub.named(core.EvTunnelConnect)
	require.Len(t, events, 1)
	assert.Equal(t, domain.UserID("alice"), events[0].User)
	ev := events[0].Payload.(core.TunnelConnectEvent)
	assert.Equal(t, share.ID, ev.TunnelID)
	assert.Equal(t, 8080, ev.Port)
	assert.Equal(t, "ws://test/serve", ev.ServeURL)

	pub.failUsers["alice"] = true
	assert.Error(t, svc.NotifyTunnelConnect(share, "ws://test/serve"))
}
