// Package realtime holds the notification/presence fabric: an in-memory
// connection registry, an event router that fans events out to connections,
// and the websocket endpoint that ties both to the session core.
package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Connection is anything the registry and router can address. The
// websocket endpoint implements this; tests use a lightweight fake.
type Connection interface {
	// Enqueue attempts a non-blocking send of a framed payload to this
	// connection's writer. Returns false if the connection's buffer is
	// full or already closed; the connection tracks its own overflow
	// count and closes itself after sustained overflow (spec.md §4.6).
	Enqueue(payload []byte) bool
	// Closed reports whether the connection has already torn down, so the
	// router can tell a transient buffer-full drop from a dead connection
	// that needs removing from the registry.
	Closed() bool
	// ID uniquely identifies this connection for registry bookkeeping.
	ID() uuid.UUID
}

// Registry is the connection registry, component E: userConnections,
// connectionUser and topicSubscribers, all guarded by one RWMutex: lookups
// share the read lock, and every mutation takes the write lock for the
// whole registry.
type Registry struct {
	mu               sync.RWMutex
	userConnections  map[uuid.UUID]map[uuid.UUID]Connection
	connectionUser   map[uuid.UUID]uuid.UUID
	topicSubscribers map[string]map[uuid.UUID]Connection
	conversations    ConversationPeers
}

// ConversationPeers is the subset of the messaging collaborator (spec §6.1)
// the registry needs to compute presence fan-out targets.
type ConversationPeers interface {
	PeersOf(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

func NewRegistry(peers ConversationPeers) *Registry {
	return &Registry{
		userConnections:  make(map[uuid.UUID]map[uuid.UUID]Connection),
		connectionUser:   make(map[uuid.UUID]uuid.UUID),
		topicSubscribers: make(map[string]map[uuid.UUID]Connection),
		conversations:    peers,
	}
}

// AddConnection registers conn under userID. Returns true if this is the
// user's first connection (the set transitioned 0→1), signalling the
// caller to publish a presence-online event to the user's conversation peers.
func (r *Registry) AddConnection(userID uuid.UUID, conn Connection) (firstConnection bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.userConnections[userID]
	if !ok {
		set = make(map[uuid.UUID]Connection)
		r.userConnections[userID] = set
	}
	firstConnection = len(set) == 0
	set[conn.ID()] = conn
	r.connectionUser[conn.ID()] = userID
	return firstConnection
}

// RemoveConnection removes conn from every map it may appear in. Idempotent:
// calling it twice for the same connection is a harmless no-op the second
// time. Returns the owning userID and whether that user is now fully
// offline (the set emptied).
func (r *Registry) RemoveConnection(conn Connection) (userID uuid.UUID, wentOffline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.connectionUser[conn.ID()]
	if !ok {
		return uuid.Nil, false
	}
	delete(r.connectionUser, conn.ID())

	if set, ok := r.userConnections[userID]; ok {
		delete(set, conn.ID())
		if len(set) == 0 {
			delete(r.userConnections, userID)
			wentOffline = true
		}
	}

	for topic, subs := range r.topicSubscribers {
		if _, ok := subs[conn.ID()]; ok {
			delete(subs, conn.ID())
			if len(subs) == 0 {
				delete(r.topicSubscribers, topic)
			}
		}
	}

	return userID, wentOffline
}

func (r *Registry) Subscribe(conn Connection, topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.topicSubscribers[topic]
	if !ok {
		subs = make(map[uuid.UUID]Connection)
		r.topicSubscribers[topic] = subs
	}
	subs[conn.ID()] = conn
}

func (r *Registry) Unsubscribe(conn Connection, topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.topicSubscribers[topic]
	if !ok {
		return
	}
	delete(subs, conn.ID())
	if len(subs) == 0 {
		delete(r.topicSubscribers, topic)
	}
}

// ConnectionsOf returns a snapshot of the connections belonging to userID.
func (r *Registry) ConnectionsOf(userID uuid.UUID) []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return valuesOf(r.userConnections[userID])
}

// SubscribersOf returns a snapshot of the connections subscribed to topic.
func (r *Registry) SubscribersOf(topic string) []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return valuesOf(r.topicSubscribers[topic])
}

// AllConnections returns a snapshot of every registered connection.
func (r *Registry) AllConnections() []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Connection, 0, len(r.connectionUser))
	for _, set := range r.userConnections {
		for _, c := range set {
			out = append(out, c)
		}
	}
	return out
}

// IsUserOnline reports whether userID has at least one live connection.
func (r *Registry) IsUserOnline(userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.userConnections[userID]) > 0
}

// PeerIDsForUser asks the messaging collaborator for userID's conversation
// peers — the audience for that user's presence transitions and the seed
// list for the presence snapshot sent at handshake.
func (r *Registry) PeerIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	return r.conversations.PeersOf(ctx, userID)
}

func valuesOf(set map[uuid.UUID]Connection) []Connection {
	out := make([]Connection, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}
