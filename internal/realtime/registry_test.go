package realtime_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/chirpline/backend/internal/realtime"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn is a minimal realtime.Connection double for registry/router
// tests — it records enqueued payloads instead of writing to a socket.
type fakeConn struct {
	id     uuid.UUID
	closed atomic.Bool
	sent   [][]byte
	full   bool
}

func newFakeConn() *fakeConn { return &fakeConn{id: uuid.New()} }

func (c *fakeConn) Enqueue(payload []byte) bool {
	if c.closed.Load() || c.full {
		return false
	}
	c.sent = append(c.sent, payload)
	return true
}
func (c *fakeConn) Closed() bool   { return c.closed.Load() }
func (c *fakeConn) ID() uuid.UUID  { return c.id }
func (c *fakeConn) close()         { c.closed.Store(true) }

type fakePeers struct {
	peers map[uuid.UUID][]uuid.UUID
}

func (f *fakePeers) PeersOf(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	return f.peers[userID], nil
}

func TestRegistry_AddConnection_FirstConnectionTransition(t *testing.T) {
	reg := realtime.NewRegistry(&fakePeers{})
	userID := uuid.New()

	c1 := newFakeConn()
	first := reg.AddConnection(userID, c1)
	assert.True(t, first, "first connection for a user should report the 0->1 transition")

	c2 := newFakeConn()
	first = reg.AddConnection(userID, c2)
	assert.False(t, first, "second concurrent connection should not re-trigger the transition")

	assert.True(t, reg.IsUserOnline(userID))
	assert.Len(t, reg.ConnectionsOf(userID), 2)
}

func TestRegistry_RemoveConnection_LastConnectionTransition(t *testing.T) {
	reg := realtime.NewRegistry(&fakePeers{})
	userID := uuid.New()
	c1 := newFakeConn()
	c2 := newFakeConn()
	reg.AddConnection(userID, c1)
	reg.AddConnection(userID, c2)

	_, wentOffline := reg.RemoveConnection(c1)
	assert.False(t, wentOffline, "user still has c2 connected")
	assert.True(t, reg.IsUserOnline(userID))

	gotUserID, wentOffline := reg.RemoveConnection(c2)
	assert.True(t, wentOffline)
	assert.Equal(t, userID, gotUserID)
	assert.False(t, reg.IsUserOnline(userID))
}

func TestRegistry_RemoveConnection_IdempotentOnUnknownConnection(t *testing.T) {
	reg := realtime.NewRegistry(&fakePeers{})
	c1 := newFakeConn()

	gotUserID, wentOffline := reg.RemoveConnection(c1)
	assert.Equal(t, uuid.Nil, gotUserID)
	assert.False(t, wentOffline)
}

func TestRegistry_SubscribeUnsubscribe(t *testing.T) {
	reg := realtime.NewRegistry(&fakePeers{})
	userID := uuid.New()
	c1 := newFakeConn()
	reg.AddConnection(userID, c1)

	reg.Subscribe(c1, "post:abc")
	require.Len(t, reg.SubscribersOf("post:abc"), 1)

	// Re-subscribing is idempotent.
	reg.Subscribe(c1, "post:abc")
	require.Len(t, reg.SubscribersOf("post:abc"), 1)

	reg.Unsubscribe(c1, "post:abc")
	assert.Empty(t, reg.SubscribersOf("post:abc"))

	// Unsubscribing an already-unsubscribed connection is a no-op.
	reg.Unsubscribe(c1, "post:abc")
	assert.Empty(t, reg.SubscribersOf("post:abc"))
}

func TestRegistry_RemoveConnection_ClearsTopicSubscriptions(t *testing.T) {
	reg := realtime.NewRegistry(&fakePeers{})
	userID := uuid.New()
	c1 := newFakeConn()
	reg.AddConnection(userID, c1)
	reg.Subscribe(c1, "post:abc")

	reg.RemoveConnection(c1)
	assert.Empty(t, reg.SubscribersOf("post:abc"))
}

func TestRegistry_PeerIDsForUser(t *testing.T) {
	userID := uuid.New()
	peerID := uuid.New()
	reg := realtime.NewRegistry(&fakePeers{peers: map[uuid.UUID][]uuid.UUID{userID: {peerID}}})

	peers, err := reg.PeerIDsForUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{peerID}, peers)
}
