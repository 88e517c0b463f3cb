// Package pipeline drives the plan → approve → execute → validate lifecycle
// for sessions.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360studio/thinker/agent"
	"github.com/c360studio/thinker/events"
	"github.com/c360studio/thinker/metrics"
	"github.com/c360studio/thinker/storage"
)

// ExecuteStatus is the immediate answer to an execute request.
type ExecuteStatus string

const (
	StatusExecuting ExecuteStatus = "executing"
	StatusCancelled ExecuteStatus = "cancelled"
)

// PlanResult is what a plan or refine call hands back to the transport.
type PlanResult struct {
	Session         *agent.Session
	Plan            *agent.ReasoningPlan
	RefinementCount int
}

// Driver owns session lifecycle and the background pipeline tasks.
type Driver struct {
	planner   *agent.Planner
	executor  *agent.Executor
	validator *agent.Validator
	sessions  *storage.SessionStore
	pending   *storage.PendingPlans
	bus       *events.Bus
	logger    *slog.Logger

	mu    sync.Mutex
	tasks map[string]*pipelineTask
	wg    sync.WaitGroup
}

// pipelineTask identifies one background run. The identity matters when a
// second execute replaces a running task: only the task still registered for
// the session may clean up or report the session outcome.
type pipelineTask struct {
	cancel context.CancelFunc
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// New wires the three phase engines to the stores and the event bus.
func New(planner *agent.Planner, executor *agent.Executor, validator *agent.Validator,
	sessions *storage.SessionStore, pending *storage.PendingPlans, bus *events.Bus, opts ...Option) *Driver {
	d := &Driver{
		planner:   planner,
		executor:  executor,
		validator: validator,
		sessions:  sessions,
		pending:   pending,
		bus:       bus,
		logger:    slog.Default(),
		tasks:     make(map[string]*pipelineTask),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Plan creates a session, runs the planning phase and stores the pending
// record awaiting approval.
func (d *Driver) Plan(ctx context.Context, query, domain string) (*PlanResult, error) {
	if domain == "" {
		domain = "default"
	}
	session, err := d.sessions.Create(ctx, domain, query)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	// Register the queue up front so planning events buffer for late
	// consumers.
	d.bus.EnsureQueue(session.ID)
	emit := d.bus.Emitter(session.ID)

	tc := agent.NewContext(session.ID, domain, query)
	plan, err := d.planner.Plan(ctx, tc, emit)
	if err != nil {
		emit.Emit(ctx, agent.NewEvent(agent.AgentSystem, agent.EventError, err.Error()).
			WithPayload(agent.ErrorPayload{Phase: "planner", Message: err.Error()}))
		if serr := d.sessions.SetStatus(ctx, session.ID, agent.SessionError); serr != nil {
			d.logger.Warn("Failed to mark session errored", "session_id", session.ID, "error", serr)
		}
		return nil, err
	}

	rec := &storage.PendingPlanRecord{
		SessionID:     session.ID,
		Plan:          plan,
		StateSnapshot: tc.State,
		Query:         query,
		Domain:        plan.Domain,
		CreatedAt:     time.Now().UTC(),
	}
	if err := d.pending.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("store pending plan: %w", err)
	}

	metrics.PlansGenerated.WithLabelValues(plan.Domain).Inc()
	return &PlanResult{Session: session, Plan: plan}, nil
}

// Refine reworks the pending plan from the user's clarification responses
// and free-text feedback, overwriting the pending record. A non-nil history
// replaces the stored conversation, letting clients resume with their own
// transcript.
func (d *Driver) Refine(ctx context.Context, sessionID string, responses map[string]string, chatMessage string, history []agent.ChatTurn) (*PlanResult, error) {
	rec, err := d.pending.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if history != nil {
		rec.Plan.ChatHistory = history
	}

	tc := agent.NewContext(sessionID, rec.Domain, rec.Query)
	if rec.StateSnapshot != nil {
		tc.State = rec.StateSnapshot
	}

	refined, err := d.planner.Refine(ctx, tc, rec.Plan, responses, chatMessage, d.bus.Emitter(sessionID))
	if err != nil {
		return nil, err
	}

	updated := &storage.PendingPlanRecord{
		SessionID:       sessionID,
		Plan:            refined,
		StateSnapshot:   tc.State,
		Query:           rec.Query,
		Domain:          refined.Domain,
		CreatedAt:       rec.CreatedAt,
		RefinementCount: rec.RefinementCount + 1,
	}
	if err := d.pending.Put(ctx, updated); err != nil {
		return nil, fmt.Errorf("store refined plan: %w", err)
	}

	metrics.PlanRefinements.Inc()
	session, err := d.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &PlanResult{Session: session, Plan: refined, RefinementCount: updated.RefinementCount}, nil
}

// Execute approves or rejects the pending plan. Approval registers the
// session queue, then spawns the background pipeline task; rejection deletes
// the pending record without running anything.
func (d *Driver) Execute(ctx context.Context, sessionID string, approved bool) (ExecuteStatus, error) {
	rec, err := d.pending.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}

	if !approved {
		d.pending.Delete(ctx, sessionID)
		d.bus.Release(sessionID)
		return StatusCancelled, nil
	}

	// Queue registration happens before the task starts so no event can be
	// emitted into the void while the SSE consumer attaches.
	d.bus.EnsureQueue(sessionID)

	if err := d.sessions.SetStatus(ctx, sessionID, agent.SessionRunning); err != nil {
		return "", fmt.Errorf("mark session running: %w", err)
	}

	taskCtx, cancel := context.WithCancel(context.Background())
	task := &pipelineTask{cancel: cancel}
	d.mu.Lock()
	if prev, ok := d.tasks[sessionID]; ok {
		// A second execute for a running session cancels the old task
		// and replaces the tracked handle.
		d.logger.Warn("Replacing running task handle", "session_id", sessionID)
		prev.cancel()
	}
	d.tasks[sessionID] = task
	d.mu.Unlock()

	d.wg.Add(1)
	go d.run(taskCtx, rec, task)

	return StatusExecuting, nil
}

// run is the background pipeline task: execute, validate, resolve. Any
// failure or panic becomes an error event plus an error session status; the
// pending record is deleted no matter how the run ends. A task that was
// replaced by a second execute leaves cleanup and the session outcome to
// its successor.
func (d *Driver) run(ctx context.Context, rec *storage.PendingPlanRecord, task *pipelineTask) {
	sessionID := rec.SessionID
	emit := d.bus.Emitter(sessionID)

	defer d.wg.Done()
	defer func() {
		d.mu.Lock()
		current := d.tasks[sessionID] == task
		if current {
			delete(d.tasks, sessionID)
		}
		d.mu.Unlock()
		if !current {
			// The successor owns the pending record and the queue.
			return
		}

		// Cleanup must run even on panic or cancellation.
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		d.pending.Delete(cleanupCtx, sessionID)

		// The terminal event is already queued; closing lets an attached
		// consumer drain it and stop.
		d.bus.Release(sessionID)
	}()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Pipeline task panicked", "session_id", sessionID, "panic", r)
			if d.owns(sessionID, task) {
				d.fail(sessionID, "pipeline", fmt.Sprintf("internal error: %v", r))
			}
		}
	}()

	tc := agent.NewContext(sessionID, rec.Domain, rec.Query)
	tc.Plan = rec.Plan
	if rec.StateSnapshot != nil {
		tc.State = rec.StateSnapshot
	}

	emit.Emit(ctx, agent.NewEvent(agent.AgentSystem, agent.EventStatus, "Execution started"))

	if _, err := d.executor.Run(ctx, tc, emit); err != nil {
		if d.owns(sessionID, task) {
			d.fail(sessionID, "executor", err.Error())
		}
		return
	}
	metrics.LoopIterations.Observe(float64(tc.State.Iterations))

	if _, err := d.validator.Run(ctx, tc, emit); err != nil {
		if d.owns(sessionID, task) {
			d.fail(sessionID, "validator", err.Error())
		}
		return
	}

	if !d.owns(sessionID, task) {
		// Superseded mid-run; the successor reports the session outcome.
		return
	}

	if err := d.sessions.SetStatus(context.Background(), sessionID, agent.SessionComplete); err != nil {
		d.logger.Warn("Failed to mark session complete", "session_id", sessionID, "error", err)
	}

	quality := 0
	if tc.State.Scores != nil {
		quality = tc.State.Scores.Overall
	}
	emit.Emit(ctx, agent.NewEvent(agent.AgentSystem, agent.EventComplete, "Pipeline complete").
		WithPayload(agent.CompletePayload{
			Iterations:   tc.State.Iterations,
			OutputLength: len(tc.State.FinalOutput),
			QualityScore: quality,
			Domain:       tc.EffectiveDomain(),
			FinalOutput:  tc.State.FinalOutput,
			Sections:     len(tc.State.Sections),
			Skills:       tc.Plan.DomainSkills,
		}))

	metrics.Executions.WithLabelValues("success").Inc()
}

// fail records a phase failure: error event, error status, outcome metric.
func (d *Driver) fail(sessionID, phase, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	d.bus.Emit(ctx, sessionID, agent.NewEvent(agent.AgentSystem, agent.EventError,
		fmt.Sprintf("%s failed: %s", phase, message)).
		WithPayload(agent.ErrorPayload{Phase: phase, Message: message}))

	if err := d.sessions.SetStatus(ctx, sessionID, agent.SessionError); err != nil {
		d.logger.Warn("Failed to mark session errored", "session_id", sessionID, "error", err)
	}
	metrics.Executions.WithLabelValues("error").Inc()
}

// owns reports whether task is still the registered task for the session.
func (d *Driver) owns(sessionID string, task *pipelineTask) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tasks[sessionID] == task
}

// Cancel stops the session's background task if one is running.
func (d *Driver) Cancel(sessionID string) {
	d.mu.Lock()
	task, ok := d.tasks[sessionID]
	d.mu.Unlock()
	if ok {
		task.cancel()
	}
}

// Shutdown cancels all running tasks and waits for them to finish or for
// the context to expire.
func (d *Driver) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	for _, task := range d.tasks {
		task.cancel()
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
