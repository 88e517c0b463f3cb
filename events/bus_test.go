package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/thinker/agent"
)

type fakeAppender struct {
	mu     sync.Mutex
	events map[string][]*agent.Event
	err    error
}

func newFakeAppender() *fakeAppender {
	return &fakeAppender{events: make(map[string][]*agent.Event)}
}

func (f *fakeAppender) Append(_ context.Context, sessionID string, ev *agent.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events[sessionID] = append(f.events[sessionID], ev)
	return nil
}

func (f *fakeAppender) count(sessionID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events[sessionID])
}

type fakeSink struct {
	mu     sync.Mutex
	frames []any
	err    error
}

func (f *fakeSink) WriteJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.frames = append(f.frames, v)
	return nil
}

func TestBusBuffersBeforeConsumerAttaches(t *testing.T) {
	bus := New(nil)
	ctx := context.Background()

	// Queue registered first, then events flow before anyone reads.
	bus.EnsureQueue("s1")
	bus.Emit(ctx, "s1", agent.NewEvent(agent.AgentPlanner, agent.EventStatus, "one"))
	bus.Emit(ctx, "s1", agent.NewEvent(agent.AgentPlanner, agent.EventStatus, "two"))

	q, ok := bus.Queue("s1")
	require.True(t, ok)
	assert.Equal(t, 2, q.Len())

	ev, ok := q.Next(time.Second)
	require.True(t, ok)
	assert.Equal(t, "one", ev.Content)
	ev, ok = q.Next(time.Second)
	require.True(t, ok)
	assert.Equal(t, "two", ev.Content)
}

func TestQueueNextTimesOut(t *testing.T) {
	q := newQueue()
	start := time.Now()
	ev, ok := q.Next(20 * time.Millisecond)
	assert.Nil(t, ev)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestQueueNextWakesOnPush(t *testing.T) {
	q := newQueue()
	go func() {
		time.Sleep(10 * time.Millisecond)
		q.push(agent.NewEvent(agent.AgentExecutor, agent.EventThought, "late"))
	}()

	ev, ok := q.Next(time.Second)
	require.True(t, ok)
	assert.Equal(t, "late", ev.Content)
}

func TestQueueCloseDrains(t *testing.T) {
	q := newQueue()
	q.push(agent.NewEvent(agent.AgentSystem, agent.EventComplete, "done"))
	q.Close()

	// Pending events remain readable after close.
	ev, ok := q.Next(time.Second)
	require.True(t, ok)
	assert.Equal(t, "done", ev.Content)

	_, ok = q.Next(time.Second)
	assert.False(t, ok)

	// Pushes after close are dropped.
	q.push(agent.NewEvent(agent.AgentSystem, agent.EventStatus, "late"))
	_, ok = q.Next(10 * time.Millisecond)
	assert.False(t, ok)
}

func TestBusForwardsToSocket(t *testing.T) {
	bus := New(nil)
	sink := &fakeSink{}
	bus.AttachSocket("s1", sink)

	bus.Emit(context.Background(), "s1", agent.NewEvent(agent.AgentExecutor, agent.EventAction, "x"))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.frames, 1)
	ev, ok := sink.frames[0].(*agent.Event)
	require.True(t, ok)
	assert.Equal(t, agent.EventAction, ev.Kind)
}

func TestBusSocketFailureIsBestEffort(t *testing.T) {
	log := newFakeAppender()
	bus := New(log)
	bus.AttachSocket("s1", &fakeSink{err: errors.New("peer gone")})

	bus.Emit(context.Background(), "s1", agent.NewEvent(agent.AgentExecutor, agent.EventThought, "x"))

	// The queue and the durable log still got the event.
	q, _ := bus.Queue("s1")
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, 1, log.count("s1"))
}

func TestBusAppendFailureIsBestEffort(t *testing.T) {
	log := newFakeAppender()
	log.err = errors.New("nats down")
	bus := New(log)

	bus.Emit(context.Background(), "s1", agent.NewEvent(agent.AgentPlanner, agent.EventStatus, "x"))

	q, _ := bus.Queue("s1")
	assert.Equal(t, 1, q.Len())
}

func TestBusAppendsDurableCopy(t *testing.T) {
	log := newFakeAppender()
	bus := New(log)
	ctx := context.Background()

	emitter := bus.Emitter("s1")
	emitter.Emit(ctx, agent.NewEvent(agent.AgentPlanner, agent.EventStatus, "a"))
	emitter.Emit(ctx, agent.NewEvent(agent.AgentSystem, agent.EventComplete, "b"))

	assert.Equal(t, 2, log.count("s1"))
}

func TestBusRelease(t *testing.T) {
	bus := New(nil)
	q := bus.EnsureQueue("s1")
	bus.AttachSocket("s1", &fakeSink{})

	bus.Release("s1")

	_, ok := bus.Queue("s1")
	assert.False(t, ok)
	_, ok = q.Next(10 * time.Millisecond)
	assert.False(t, ok)

	// Emitting after release re-registers a fresh queue rather than
	// panicking.
	bus.Emit(context.Background(), "s1", agent.NewEvent(agent.AgentSystem, agent.EventStatus, "x"))
	q2, ok := bus.Queue("s1")
	require.True(t, ok)
	assert.Equal(t, 1, q2.Len())
}
