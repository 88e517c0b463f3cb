package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/thinker/agent"
	"github.com/c360studio/thinker/events"
	"github.com/c360studio/thinker/llm"
	"github.com/c360studio/thinker/llm/testutil"
	"github.com/c360studio/thinker/storage"
)

const pipelinePlanJSON = `{
  "title": "Short Guide",
  "detected_domain": "education",
  "task_understanding": "Write a short guide",
  "approach": "One pass",
  "domain_skills": ["Instructional Designer", "Curriculum Designer"],
  "domain_capabilities": ["learning_objectives"],
  "steps": [
    {"step_number": 1, "title": "Draft", "description": "d", "expected_output": "o", "estimated_effort": "15min"}
  ],
  "estimated_complexity": "simple"
}`

type harness struct {
	driver        *Driver
	bus           *events.Bus
	sessions      *storage.SessionStore
	pending       *storage.PendingPlans
	plannerMock   *testutil.MockLLMClient
	executorMock  *testutil.MockLLMClient
	validatorMock *testutil.MockLLMClient
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	plannerMock := &testutil.MockLLMClient{Responses: scripted(
		"not json",        // analysis: heuristics take over
		pipelinePlanJSON,  // plan
		pipelinePlanJSON,  // refine 1
		pipelinePlanJSON,  // refine 2
	)}
	executorMock := &testutil.MockLLMClient{Responses: scripted(
		"THOUGHT: writing\nACTION: FINAL_ANSWER - # Guide\nThe finished guide.",
	)}
	validatorMock := &testutil.MockLLMClient{Responses: scripted(
		"Overall Score: 9\nNeeds Improvement: no",
	)}

	sessions := storage.NewSessionStore(storage.NewMemory())
	pending := storage.NewPendingPlans(storage.NewMemory(), nil)
	bus := events.New(nil)

	driver := New(
		agent.NewPlanner(plannerMock),
		agent.NewExecutor(executorMock),
		agent.NewValidator(validatorMock),
		sessions, pending, bus,
	)
	return &harness{
		driver:        driver,
		bus:           bus,
		sessions:      sessions,
		pending:       pending,
		plannerMock:   plannerMock,
		executorMock:  executorMock,
		validatorMock: validatorMock,
	}
}

func scripted(contents ...string) []*llm.Response {
	out := make([]*llm.Response, len(contents))
	for i, c := range contents {
		out[i] = &llm.Response{Content: c, Model: "test-model"}
	}
	return out
}

// queueFor grabs the session queue registered by Plan. Held as a handle so
// events stay readable even after the driver releases the queue.
func queueFor(t *testing.T, bus *events.Bus, sessionID string) *events.Queue {
	t.Helper()
	q, ok := bus.Queue(sessionID)
	require.True(t, ok, "queue must be registered")
	return q
}

// drain consumes the queue until a terminal event or the deadline.
func drain(t *testing.T, q *events.Queue) []*agent.Event {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	var seen []*agent.Event
	for time.Now().Before(deadline) {
		ev, ok := q.Next(200 * time.Millisecond)
		if !ok {
			continue
		}
		seen = append(seen, ev)
		if ev.Terminal() {
			return seen
		}
	}
	t.Fatalf("no terminal event within deadline; saw %d events", len(seen))
	return nil
}

func TestPlanStoresPendingRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.driver.Plan(ctx, "Write a short guide to Go testing", "")
	require.NoError(t, err)
	require.NotNil(t, res.Session)
	assert.Equal(t, agent.SessionCreated, res.Session.Status)
	assert.Equal(t, agent.LeadSkill, res.Plan.DomainSkills[0])

	rec, err := h.pending.Get(ctx, res.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Plan.Title, rec.Plan.Title)
	assert.Equal(t, 0, rec.RefinementCount)
	assert.NotNil(t, rec.StateSnapshot)

	// Planning events were buffered for the session.
	q, ok := h.bus.Queue(res.Session.ID)
	require.True(t, ok)
	assert.Greater(t, q.Len(), 0)
}

func TestPlanLLMFailure(t *testing.T) {
	h := newHarness(t)
	h.plannerMock.Reset()
	h.plannerMock.Err = errors.New("backend down")

	_, err := h.driver.Plan(context.Background(), "query", "")
	require.Error(t, err)
}

func TestRejectDeletesPendingWithoutRunning(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.driver.Plan(ctx, "Write a guide", "")
	require.NoError(t, err)

	status, err := h.driver.Execute(ctx, res.Session.ID, false)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, status)

	// The executor never ran and the record is gone.
	assert.Zero(t, h.executorMock.CallCount())
	_, err = h.pending.Get(ctx, res.Session.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// A second execute for the same session is a 404-equivalent.
	_, err = h.driver.Execute(ctx, res.Session.ID, true)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRefineTwiceCountsTwo(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.driver.Plan(ctx, "Write a guide", "")
	require.NoError(t, err)

	r1, err := h.driver.Refine(ctx, res.Session.ID, map[string]string{"q_skill_level": "Beginner"}, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, r1.RefinementCount)

	r2, err := h.driver.Refine(ctx, res.Session.ID, nil, "shorter please", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, r2.RefinementCount)

	rec, err := h.pending.Get(ctx, res.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.RefinementCount)
}

func TestRefineWithoutPendingPlan(t *testing.T) {
	h := newHarness(t)
	_, err := h.driver.Refine(context.Background(), "no-such-session", nil, "", nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestExecuteRunsFullPipeline(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.driver.Plan(ctx, "Write a guide", "")
	require.NoError(t, err)

	q := queueFor(t, h.bus, res.Session.ID)
	status, err := h.driver.Execute(ctx, res.Session.ID, true)
	require.NoError(t, err)
	assert.Equal(t, StatusExecuting, status)

	seen := drain(t, q)
	last := seen[len(seen)-1]
	assert.Equal(t, agent.EventComplete, last.Kind)
	assert.Equal(t, agent.AgentSystem, last.Agent)

	payload, ok := last.Payload.(agent.CompletePayload)
	require.True(t, ok)
	assert.Contains(t, payload.FinalOutput, "The finished guide")
	assert.Equal(t, 9, payload.QualityScore)

	require.NoError(t, h.driver.Shutdown(ctx))

	session, err := h.sessions.Get(ctx, res.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, agent.SessionComplete, session.Status)

	_, err = h.pending.Get(ctx, res.Session.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestExecutorFailureEmitsErrorAndCleansUp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.driver.Plan(ctx, "Write a guide", "")
	require.NoError(t, err)

	h.executorMock.Err = errors.New("llm unreachable")

	q := queueFor(t, h.bus, res.Session.ID)
	_, err = h.driver.Execute(ctx, res.Session.ID, true)
	require.NoError(t, err)

	seen := drain(t, q)
	last := seen[len(seen)-1]
	assert.Equal(t, agent.EventError, last.Kind)
	payload, ok := last.Payload.(agent.ErrorPayload)
	require.True(t, ok)
	assert.Equal(t, "executor", payload.Phase)

	require.NoError(t, h.driver.Shutdown(ctx))

	session, err := h.sessions.Get(ctx, res.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, agent.SessionError, session.Status)

	// Cleanup still deleted the pending record.
	_, err = h.pending.Get(ctx, res.Session.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// gatedClient blocks Complete until the gate opens so a task can be held
// mid-run. Cancellation wins over the gate.
type gatedClient struct {
	inner *testutil.MockLLMClient
	gate  chan struct{}
}

func (g *gatedClient) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	select {
	case <-g.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.inner.Complete(ctx, req)
}

func TestReplacedTaskYieldsToSuccessor(t *testing.T) {
	plannerMock := &testutil.MockLLMClient{Responses: scripted("not json", pipelinePlanJSON)}
	gate := make(chan struct{})
	execInner := &testutil.MockLLMClient{Responses: scripted(
		"THOUGHT: writing\nACTION: FINAL_ANSWER - # Guide\nThe finished guide.",
	)}
	validatorMock := &testutil.MockLLMClient{Responses: scripted(
		"Overall Score: 9\nNeeds Improvement: no",
	)}

	sessions := storage.NewSessionStore(storage.NewMemory())
	pending := storage.NewPendingPlans(storage.NewMemory(), nil)
	bus := events.New(nil)
	driver := New(
		agent.NewPlanner(plannerMock),
		agent.NewExecutor(&gatedClient{inner: execInner, gate: gate}),
		agent.NewValidator(validatorMock),
		sessions, pending, bus,
	)
	ctx := context.Background()

	res, err := driver.Plan(ctx, "Write a guide", "")
	require.NoError(t, err)
	q := queueFor(t, bus, res.Session.ID)

	_, err = driver.Execute(ctx, res.Session.ID, true)
	require.NoError(t, err)

	// The first task is still blocked on its LLM call, so the pending
	// record survives and a second approval replaces the running task.
	_, err = driver.Execute(ctx, res.Session.ID, true)
	require.NoError(t, err)

	close(gate)

	seen := drain(t, q)
	last := seen[len(seen)-1]
	assert.Equal(t, agent.EventComplete, last.Kind)
	assert.Equal(t, agent.AgentSystem, last.Agent)

	require.NoError(t, driver.Shutdown(ctx))

	// The replaced task neither errored the session nor cleaned up under
	// the successor; the successor finished the pipeline and cleaned up.
	session, err := sessions.Get(ctx, res.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, agent.SessionComplete, session.Status)

	_, err = pending.Get(ctx, res.Session.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestExecuteRegistersQueueBeforeTask(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.driver.Plan(ctx, "Write a guide", "")
	require.NoError(t, err)

	// The queue exists before the background task spawns, so no event from
	// the task can be lost while a consumer attaches.
	q := queueFor(t, h.bus, res.Session.ID)

	_, err = h.driver.Execute(ctx, res.Session.ID, true)
	require.NoError(t, err)

	drain(t, q)
	require.NoError(t, h.driver.Shutdown(ctx))
}
