package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
)

// intakeBufferSize is generous because the intake channel is meant never to
// fill in a single-process deployment; per-connection writer buffers are
// where real backpressure happens (spec.md §5).
const intakeBufferSize = 256

// frame is the wire envelope every server-to-client message is serialized
// into: {"type": "...", "data": {...}}.
type frame struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Router is the event router, component F: a dedicated goroutine draining a
// buffered intake channel, serializing each event once and fanning it out
// to its target's connections.
type Router struct {
	registry *Registry
	intake   chan Event
	metrics  *Metrics
	logger   *slog.Logger
}

func NewRouter(registry *Registry, metrics *Metrics, logger *slog.Logger) *Router {
	return &Router{
		registry: registry,
		intake:   make(chan Event, intakeBufferSize),
		metrics:  metrics,
		logger:   logger,
	}
}

// Publish enqueues ev for asynchronous delivery. Handlers call this and
// return without waiting for delivery (spec.md §5); a full intake channel
// is logged and the event dropped rather than blocking the caller.
func (r *Router) Publish(ev Event) {
	select {
	case r.intake <- ev:
	default:
		r.logger.Warn("realtime_intake_full", "type", ev.Type())
	}
}

// Run drains the intake channel until ctx is cancelled. Intended to run as
// a single long-lived goroutine for the process lifetime.
func (r *Router) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.intake:
			r.deliver(ev)
		}
	}
}

func (r *Router) deliver(ev Event) {
	payload, err := json.Marshal(frame{Type: ev.Type(), Data: ev.Data()})
	if err != nil {
		r.logger.Error("realtime_event_marshal_failed", "type", ev.Type(), "error", err)
		return
	}

	var conns []Connection
	switch t := ev.Target().(type) {
	case userTarget:
		conns = r.registry.ConnectionsOf(t.userID)
	case topicTarget:
		conns = r.registry.SubscribersOf(t.topic)
	case userSetTarget:
		seen := make(map[Connection]struct{})
		for _, uid := range t.userIDs {
			for _, c := range r.registry.ConnectionsOf(uid) {
				seen[c] = struct{}{}
			}
		}
		conns = make([]Connection, 0, len(seen))
		for c := range seen {
			conns = append(conns, c)
		}
	case broadcastTarget:
		conns = r.registry.AllConnections()
	}

	var stale []Connection
	for _, c := range conns {
		if c.Enqueue(payload) {
			if r.metrics != nil {
				r.metrics.eventsRoutedTotal.WithLabelValues(ev.Type()).Inc()
			}
			continue
		}
		if r.metrics != nil {
			r.metrics.eventsDroppedTotal.WithLabelValues(ev.Type()).Inc()
		}
		// A buffer-full drop on a still-live connection is transient: the
		// connection tracks its own overflow count and will close itself
		// on sustained overflow. Only a connection that has already torn
		// down goes into the staleSet for eager removal here.
		if c.Closed() {
			stale = append(stale, c)
		}
	}

	// Router failures never propagate to the domain call path (spec.md
	// §4.6); stale connections are cleaned up best-effort after the pass.
	for _, c := range stale {
		r.registry.RemoveConnection(c)
	}
}
