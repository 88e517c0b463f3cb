package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/c360studio/thinker/agent"
)

// EventLog is the durable append-only copy of every event emitted for a
// session. Keys are "<session_id>.<seq>" with a zero-padded sequence so
// lexical key order is emission order.
type EventLog struct {
	store DurableStore

	mu  sync.Mutex
	seq map[string]int
}

// NewEventLog creates an event log over the given durable tier.
func NewEventLog(store DurableStore) *EventLog {
	return &EventLog{store: store, seq: make(map[string]int)}
}

// Append stores the event at the next sequence number for the session.
func (l *EventLog) Append(ctx context.Context, sessionID string, ev *agent.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	n, err := l.next(ctx, sessionID)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s.%08d", sessionID, n)
	if err := l.store.Put(ctx, key, data); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// History returns the session's events in emission order as raw JSON, ready
// for replay to a client.
func (l *EventLog) History(ctx context.Context, sessionID string) ([]json.RawMessage, error) {
	keys, err := l.store.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list event keys: %w", err)
	}

	prefix := sessionID + "."
	matched := make([]string, 0, len(keys))
	for _, key := range keys {
		if strings.HasPrefix(key, prefix) {
			matched = append(matched, key)
		}
	}
	sort.Strings(matched)

	events := make([]json.RawMessage, 0, len(matched))
	for _, key := range matched {
		data, err := l.store.Get(ctx, key)
		if err != nil {
			continue // Skip entries that fail to load
		}
		events = append(events, json.RawMessage(data))
	}
	return events, nil
}

// next returns the next sequence number for a session. The counter survives
// restarts by scanning existing keys on first use.
func (l *EventLog) next(ctx context.Context, sessionID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n, ok := l.seq[sessionID]; ok {
		l.seq[sessionID] = n + 1
		return n + 1, nil
	}

	keys, err := l.store.Keys(ctx)
	if err != nil {
		return 0, fmt.Errorf("list event keys: %w", err)
	}
	prefix := sessionID + "."
	high := -1
	for _, key := range keys {
		rest, ok := strings.CutPrefix(key, prefix)
		if !ok {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(rest, "%d", &n); err == nil && n > high {
			high = n
		}
	}
	l.seq[sessionID] = high + 1
	return high + 1, nil
}
