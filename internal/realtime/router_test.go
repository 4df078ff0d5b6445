package realtime_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/chirpline/backend/internal/realtime"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// sharedTestMetrics avoids calling realtime.NewMetrics more than once:
// it registers its collectors with the global Prometheus registry, and a
// second call in the same test binary would panic on duplicate
// registration.
var (
	testMetricsOnce sync.Once
	testMetrics     *realtime.Metrics
)

func sharedTestMetrics() *realtime.Metrics {
	testMetricsOnce.Do(func() { testMetrics = realtime.NewMetrics() })
	return testMetrics
}

// runRouterAndPublish starts the router, publishes ev, waits for delivery
// (polling the fake connections) and stops the router.
func runRouterAndPublish(t *testing.T, router *realtime.Router, ev realtime.Event, conns ...*fakeConn) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go router.Run(ctx)

	router.Publish(ev)

	deadline := time.After(time.Second)
	for {
		delivered := true
		for _, c := range conns {
			if len(c.sent) == 0 {
				delivered = false
			}
		}
		if delivered {
			return
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for router delivery")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestRouter_DeliversToUserTarget(t *testing.T) {
	reg := realtime.NewRegistry(&fakePeers{})
	router := realtime.NewRouter(reg, sharedTestMetrics(), discardLogger())

	userID := uuid.New()
	conn := newFakeConn()
	reg.AddConnection(userID, conn)

	ev := realtime.NewUserEvent(userID, "test_event", map[string]string{"hello": "world"})
	runRouterAndPublish(t, router, ev, conn)

	require.Len(t, conn.sent, 1)
	var frame struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(conn.sent[0], &frame))
	assert.Equal(t, "test_event", frame.Type)
}

func TestRouter_DeliversToTopicSubscribers(t *testing.T) {
	reg := realtime.NewRegistry(&fakePeers{})
	router := realtime.NewRouter(reg, sharedTestMetrics(), discardLogger())

	userID := uuid.New()
	conn := newFakeConn()
	reg.AddConnection(userID, conn)

	postID := uuid.New()
	reg.Subscribe(conn, realtime.PostTopic(postID))

	ev := realtime.NewTopicEvent(realtime.PostTopic(postID), "post_liked", map[string]string{})
	runRouterAndPublish(t, router, ev, conn)

	require.NotEmpty(t, conn.sent)
}

func TestRouter_BroadcastReachesAllConnections(t *testing.T) {
	reg := realtime.NewRegistry(&fakePeers{})
	router := realtime.NewRouter(reg, sharedTestMetrics(), discardLogger())

	connA := newFakeConn()
	connB := newFakeConn()
	reg.AddConnection(uuid.New(), connA)
	reg.AddConnection(uuid.New(), connB)

	ev := realtime.NewBroadcastEvent("new_post", map[string]string{})
	runRouterAndPublish(t, router, ev, connA, connB)
}

func TestRouter_DeadConnectionIsRemovedFromRegistryAfterDelivery(t *testing.T) {
	reg := realtime.NewRegistry(&fakePeers{})
	router := realtime.NewRouter(reg, sharedTestMetrics(), discardLogger())

	userID := uuid.New()
	conn := newFakeConn()
	reg.AddConnection(userID, conn)
	conn.close() // simulate the connection having already torn down

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go router.Run(ctx)

	router.Publish(realtime.NewUserEvent(userID, "test_event", nil))

	deadline := time.After(time.Second)
	for reg.IsUserOnline(userID) {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for stale connection cleanup")
		case <-time.After(time.Millisecond):
		}
	}
}
