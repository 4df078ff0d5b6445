package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chirpline/backend/internal/auth"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPingPeriod  = 60 * time.Second
	defaultReadTimeout = 15 * time.Second
	maxInboundFrame    = 1 << 20 // 1 MiB
	writerBufferSize   = 32
	maxOverflowBurst   = 8
)

// ConversationLookup is the other half of the messaging collaborator (spec
// §6.1): finding the conversation between two users for typing indicators.
type ConversationLookup interface {
	Between(ctx context.Context, a, b uuid.UUID) (conversationID uuid.UUID, ok bool, err error)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Endpoint wires the websocket handshake (component G) to the registry (E)
// and router (F).
type Endpoint struct {
	registry      *Registry
	router        *Router
	conversations ConversationLookup
	metrics       *Metrics
	logger        *slog.Logger
	pingPeriod    time.Duration
	readTimeout   time.Duration
}

func NewEndpoint(registry *Registry, router *Router, conversations ConversationLookup, metrics *Metrics, logger *slog.Logger) *Endpoint {
	return &Endpoint{
		registry:      registry,
		router:        router,
		conversations: conversations,
		metrics:       metrics,
		logger:        logger,
		pingPeriod:    defaultPingPeriod,
		readTimeout:   defaultReadTimeout,
	}
}

// WithTimeouts overrides the keepalive ping period and read deadline,
// letting deployments tune them (e.g. a more aggressive read timeout
// behind a load balancer with its own idle-connection limit) without
// touching the defaults every other caller gets.
func (e *Endpoint) WithTimeouts(pingPeriod, readTimeout time.Duration) *Endpoint {
	if pingPeriod > 0 {
		e.pingPeriod = pingPeriod
	}
	if readTimeout > 0 {
		e.readTimeout = readTimeout
	}
	return e
}

// wsConnection implements Connection over a single gorilla/websocket
// connection: one reader goroutine, one writer goroutine, paired via
// errgroup under a connection-scoped context (spec.md §5).
type wsConnection struct {
	id        uuid.UUID
	userID    uuid.UUID
	conn      *websocket.Conn
	send      chan []byte
	closed    atomic.Bool
	overflows atomic.Int32

	closeOnce sync.Once
	cancel    context.CancelFunc
}

func (c *wsConnection) ID() uuid.UUID { return c.id }
func (c *wsConnection) Closed() bool  { return c.closed.Load() }

func (c *wsConnection) Enqueue(payload []byte) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.send <- payload:
		c.overflows.Store(0)
		return true
	default:
		if c.overflows.Add(1) >= maxOverflowBurst {
			c.forceClose()
		}
		return false
	}
}

func (c *wsConnection) forceClose() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.cancel()
	})
}

// ServeHTTP upgrades the request to a websocket connection for a principal
// already resolved in D's strong mode by the route's middleware, and drives
// its lifecycle until teardown.
func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request, principal *auth.Principal) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.logger.Warn("realtime_upgrade_failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	ws := &wsConnection{
		id:     uuid.New(),
		userID: principal.UserID,
		conn:   conn,
		send:   make(chan []byte, writerBufferSize),
		cancel: cancel,
	}

	e.handshake(ctx, ws, principal)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.writeLoop(gctx, ws) })
	g.Go(func() error { return e.readLoop(gctx, ws, principal) })

	_ = g.Wait()
	e.teardown(ws)
}

func (e *Endpoint) handshake(ctx context.Context, ws *wsConnection, principal *auth.Principal) {
	first := e.registry.AddConnection(ws.userID, ws)
	if e.metrics != nil {
		e.metrics.connectionsActive.Inc()
	}

	ws.Enqueue(mustFrame("connected", ConnectedPayload{UserID: principal.UserID}))

	peers, err := e.registry.PeerIDsForUser(ctx, principal.UserID)
	if err != nil {
		e.logger.Warn("realtime_peer_lookup_failed", "user_id", principal.UserID, "error", err)
		peers = nil
	}

	now := time.Now().UTC()
	users := make([]PresenceUser, 0, len(peers))
	for _, peerID := range peers {
		users = append(users, PresenceUser{
			UserID:    peerID,
			IsOnline:  e.registry.IsUserOnline(peerID),
			Timestamp: now.UnixMilli(),
		})
	}
	// Always sent, even when empty (spec.md §4.7 step 5).
	ws.Enqueue(mustFrame("presence_snapshot", PresenceSnapshotPayload{Users: users}))

	if first && len(peers) > 0 {
		e.router.Publish(NewUserSetEvent(peers, "user_presence_changed", UserPresenceChangedPayload{
			UserID:    principal.UserID,
			IsOnline:  true,
			Timestamp: now.UnixMilli(),
		}))
	}
}

func (e *Endpoint) teardown(ws *wsConnection) {
	userID, wentOffline := e.registry.RemoveConnection(ws)
	if e.metrics != nil {
		e.metrics.connectionsActive.Dec()
	}
	ws.closed.Store(true)
	_ = ws.conn.Close()

	if wentOffline {
		peers, err := e.registry.PeerIDsForUser(context.Background(), userID)
		if err != nil {
			e.logger.Warn("realtime_peer_lookup_failed", "user_id", userID, "error", err)
			return
		}
		if len(peers) > 0 {
			e.router.Publish(NewUserSetEvent(peers, "user_presence_changed", UserPresenceChangedPayload{
				UserID:    userID,
				IsOnline:  false,
				Timestamp: time.Now().UTC().UnixMilli(),
			}))
		}
	}
}

func (e *Endpoint) writeLoop(ctx context.Context, ws *wsConnection) error {
	ticker := time.NewTicker(e.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload := <-ws.send:
			if err := ws.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				ws.forceClose()
				return err
			}
		case <-ticker.C:
			if err := ws.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				ws.forceClose()
				return err
			}
		}
	}
}

type inboundFrame struct {
	Type           string     `json:"type"`
	PostID         *uuid.UUID `json:"postId,omitempty"`
	ConversationID *uuid.UUID `json:"conversationId,omitempty"`
}

func (e *Endpoint) readLoop(ctx context.Context, ws *wsConnection, principal *auth.Principal) error {
	ws.conn.SetReadLimit(maxInboundFrame)
	_ = ws.conn.SetReadDeadline(time.Now().Add(e.readTimeout + e.pingPeriod))
	ws.conn.SetPongHandler(func(string) error {
		return ws.conn.SetReadDeadline(time.Now().Add(e.readTimeout + e.pingPeriod))
	})

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_, raw, err := ws.conn.ReadMessage()
		if err != nil {
			ws.forceClose()
			return err
		}

		var in inboundFrame
		if err := json.Unmarshal(raw, &in); err != nil {
			e.logger.Debug("realtime_malformed_frame", "user_id", principal.UserID, "error", err)
			ws.Enqueue(mustFrame("error", ErrorPayload{Message: "malformed frame"}))
			continue
		}

		e.handleInbound(ctx, ws, principal, in)
	}
}

func (e *Endpoint) handleInbound(ctx context.Context, ws *wsConnection, principal *auth.Principal, in inboundFrame) {
	switch in.Type {
	case "ping":
		ws.Enqueue(mustFrame("pong", nil))

	case "subscribe_post":
		if in.PostID == nil {
			ws.Enqueue(mustFrame("error", ErrorPayload{Message: "subscribe_post requires postId"}))
			return
		}
		e.registry.Subscribe(ws, PostTopic(*in.PostID))
		ws.Enqueue(mustFrame("subscribed", SubscribedPayload{PostID: *in.PostID}))

	case "unsubscribe_post":
		if in.PostID == nil {
			ws.Enqueue(mustFrame("error", ErrorPayload{Message: "unsubscribe_post requires postId"}))
			return
		}
		e.registry.Unsubscribe(ws, PostTopic(*in.PostID))
		ws.Enqueue(mustFrame("unsubscribed", UnsubscribedPayload{PostID: *in.PostID}))

	case "typing", "stop_typing":
		e.handleTyping(ctx, ws, principal, in)

	default:
		e.logger.Debug("realtime_unknown_frame", "user_id", principal.UserID, "frame_type", in.Type)
		ws.Enqueue(mustFrame("error", ErrorPayload{Message: "unknown frame type"}))
	}
}

func (e *Endpoint) handleTyping(ctx context.Context, ws *wsConnection, principal *auth.Principal, in inboundFrame) {
	if in.ConversationID == nil {
		ws.Enqueue(mustFrame("error", ErrorPayload{Message: in.Type + " requires conversationId"}))
		return
	}

	// The conversation lookup tells us the other participant; if the
	// caller isn't actually a participant, the typing event is dropped
	// rather than guessed at.
	other, ok, err := e.findOtherParticipant(ctx, principal.UserID, *in.ConversationID)
	if err != nil || !ok {
		return
	}

	e.router.Publish(NewTypingIndicatorEvent(other, *in.ConversationID, principal.UserID, in.Type == "typing", time.Now().UTC()))
}

// findOtherParticipant resolves the peer of the conversation from the
// perspective of the caller. The registry's ConversationPeers collaborator
// only hands back peer lists, not a direct conversation→participants
// lookup, so the endpoint additionally depends on ConversationLookup.
func (e *Endpoint) findOtherParticipant(ctx context.Context, self, conversationID uuid.UUID) (uuid.UUID, bool, error) {
	peers, err := e.registry.PeerIDsForUser(ctx, self)
	if err != nil {
		return uuid.Nil, false, err
	}
	for _, peer := range peers {
		convID, ok, err := e.conversations.Between(ctx, self, peer)
		if err != nil {
			continue
		}
		if ok && convID == conversationID {
			return peer, true, nil
		}
	}
	return uuid.Nil, false, errors.New("conversation not found for caller")
}

func mustFrame(typ string, data any) []byte {
	payload, err := json.Marshal(frame{Type: typ, Data: data})
	if err != nil {
		// Only ever fails for a programmer error in a payload type; these
		// payloads are all static structs under our control.
		return []byte(`{"type":"error","data":{"message":"internal encoding error"}}`)
	}
	return payload
}
