// Package events fans pipeline progress events out to per-session queues
// consumed by SSE, an optionally attached WebSocket, and a durable event log.
package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/c360studio/thinker/agent"
	"github.com/c360studio/thinker/metrics"
)

// Appender is the durable event log slice the bus needs.
type Appender interface {
	Append(ctx context.Context, sessionID string, ev *agent.Event) error
}

// Sink receives best-effort JSON pushes. *websocket.Conn satisfies it.
type Sink interface {
	WriteJSON(v any) error
}

// Bus routes events for all live sessions.
type Bus struct {
	mu      sync.RWMutex
	queues  map[string]*Queue
	sockets map[string]Sink

	log    Appender
	logger *slog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the bus logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// New creates a bus. The appender may be nil when no durable log is wanted.
func New(log Appender, opts ...Option) *Bus {
	b := &Bus{
		queues:  make(map[string]*Queue),
		sockets: make(map[string]Sink),
		log:     log,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// EnsureQueue registers (or returns) the session's queue. The execute
// handler calls this before spawning the pipeline task so events emitted
// before the SSE consumer attaches are buffered, not dropped.
func (b *Bus) EnsureQueue(sessionID string) *Queue {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[sessionID]
	if !ok {
		q = newQueue()
		b.queues[sessionID] = q
	}
	return q
}

// Queue returns the session's queue if one is registered.
func (b *Bus) Queue(sessionID string) (*Queue, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.queues[sessionID]
	return q, ok
}

// Release closes and removes the session's queue and socket.
func (b *Bus) Release(sessionID string) {
	b.mu.Lock()
	q := b.queues[sessionID]
	delete(b.queues, sessionID)
	delete(b.sockets, sessionID)
	b.mu.Unlock()

	if q != nil {
		q.Close()
	}
}

// AttachSocket binds a WebSocket sink to the session. Only one socket per
// session; a new one replaces the old.
func (b *Bus) AttachSocket(sessionID string, s Sink) {
	b.mu.Lock()
	b.sockets[sessionID] = s
	b.mu.Unlock()
}

// DetachSocket removes the session's socket.
func (b *Bus) DetachSocket(sessionID string) {
	b.mu.Lock()
	delete(b.sockets, sessionID)
	b.mu.Unlock()
}

// Emit routes one event: queue push, best-effort WebSocket forward, durable
// append. Forward and append failures are logged, never propagated.
func (b *Bus) Emit(ctx context.Context, sessionID string, ev *agent.Event) {
	b.EnsureQueue(sessionID).push(ev)

	b.mu.RLock()
	sock := b.sockets[sessionID]
	b.mu.RUnlock()
	if sock != nil {
		if err := sock.WriteJSON(ev); err != nil {
			b.logger.Debug("WebSocket forward failed", "session_id", sessionID, "error", err)
		}
	}

	if b.log != nil {
		if err := b.log.Append(ctx, sessionID, ev); err != nil {
			b.logger.Warn("Failed to append event to log", "session_id", sessionID, "error", err)
		}
	}

	metrics.EventsEmitted.WithLabelValues(string(ev.Agent), string(ev.Kind)).Inc()
}

// Emitter returns an agent.Emitter bound to one session.
func (b *Bus) Emitter(sessionID string) agent.Emitter {
	return agent.EmitterFunc(func(ctx context.Context, ev *agent.Event) {
		b.Emit(ctx, sessionID, ev)
	})
}
