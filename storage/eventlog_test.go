package storage

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/thinker/agent"
)

func TestEventLogAppendAndHistory(t *testing.T) {
	log := NewEventLog(newFakeDurable())
	ctx := context.Background()

	contents := []string{"first", "second", "third"}
	for _, c := range contents {
		require.NoError(t, log.Append(ctx, "s1", agent.NewEvent(agent.AgentPlanner, agent.EventStatus, c)))
	}
	require.NoError(t, log.Append(ctx, "s2", agent.NewEvent(agent.AgentSystem, agent.EventComplete, "other session")))

	history, err := log.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 3)

	// Emission order is preserved and other sessions are excluded.
	for i, raw := range history {
		var ev agent.Event
		require.NoError(t, json.Unmarshal(raw, &ev))
		assert.Equal(t, contents[i], ev.Content)
	}
}

func TestEventLogHistoryEmpty(t *testing.T) {
	log := NewEventLog(newFakeDurable())
	history, err := log.History(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestEventLogSequenceSurvivesRestart(t *testing.T) {
	durable := newFakeDurable()
	ctx := context.Background()

	log := NewEventLog(durable)
	require.NoError(t, log.Append(ctx, "s1", agent.NewEvent(agent.AgentPlanner, agent.EventStatus, "one")))
	require.NoError(t, log.Append(ctx, "s1", agent.NewEvent(agent.AgentPlanner, agent.EventStatus, "two")))

	// A fresh log over the same durable tier continues the sequence instead
	// of overwriting earlier events.
	restarted := NewEventLog(durable)
	require.NoError(t, restarted.Append(ctx, "s1", agent.NewEvent(agent.AgentPlanner, agent.EventStatus, "three")))

	history, err := restarted.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 3)

	var last agent.Event
	require.NoError(t, json.Unmarshal(history[2], &last))
	assert.Equal(t, "three", last.Content)
}
