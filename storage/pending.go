package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360studio/thinker/agent"
)

// PendingPlanRecord holds a plan awaiting user approval. One record per
// session, overwritten on each refinement, deleted when execution starts or
// the user rejects the plan.
type PendingPlanRecord struct {
	SessionID       string               `json:"session_id"`
	Plan            *agent.ReasoningPlan `json:"reasoning_plan"`
	StateSnapshot   *agent.PipelineState `json:"context_state_snapshot,omitempty"`
	Query           string               `json:"query"`
	Domain          string               `json:"domain"`
	CreatedAt       time.Time            `json:"created_at"`
	RefinementCount int                  `json:"refinement_count"`
}

// PendingPlans is a write-through in-memory store over a durable tier. The
// memory tier serves the live process; the durable tier exists so a fresh
// process can recover records after a crash. A durable outage degrades
// recovery but never blocks the approval flow.
type PendingPlans struct {
	mu      sync.RWMutex
	cache   map[string]*PendingPlanRecord
	durable DurableStore
	logger  *slog.Logger
}

// NewPendingPlans creates the pending-plan store over a durable tier.
func NewPendingPlans(durable DurableStore, logger *slog.Logger) *PendingPlans {
	if logger == nil {
		logger = slog.Default()
	}
	return &PendingPlans{
		cache:   make(map[string]*PendingPlanRecord),
		durable: durable,
		logger:  logger,
	}
}

// Put stores a record in both tiers. The memory write comes first and is
// what the call's success means; a durable-write failure is logged, not
// returned, so a durable outage cannot discard a freshly generated plan.
func (p *PendingPlans) Put(ctx context.Context, rec *PendingPlanRecord) error {
	if rec.SessionID == "" {
		return fmt.Errorf("pending plan record missing session id")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal pending plan: %w", err)
	}

	p.mu.Lock()
	p.cache[rec.SessionID] = rec
	p.mu.Unlock()

	if err := p.durable.Put(ctx, rec.SessionID, data); err != nil {
		p.logger.Warn("Failed to persist pending plan to durable store",
			"session_id", rec.SessionID, "error", err)
	}
	return nil
}

// Get returns the pending record for a session: cache first, then a
// read-through fill from the durable tier. Returns ErrNotFound when neither
// tier has it.
func (p *PendingPlans) Get(ctx context.Context, sessionID string) (*PendingPlanRecord, error) {
	p.mu.RLock()
	rec, ok := p.cache[sessionID]
	p.mu.RUnlock()
	if ok {
		return rec, nil
	}

	data, err := p.durable.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var recovered PendingPlanRecord
	if err := json.Unmarshal(data, &recovered); err != nil {
		return nil, fmt.Errorf("unmarshal pending plan: %w", err)
	}

	p.mu.Lock()
	p.cache[sessionID] = &recovered
	p.mu.Unlock()
	return &recovered, nil
}

// Delete removes the record from both tiers. A durable-tier failure is
// logged, not returned: delete runs during cleanup and must be idempotent
// and non-fatal.
func (p *PendingPlans) Delete(ctx context.Context, sessionID string) {
	p.mu.Lock()
	delete(p.cache, sessionID)
	p.mu.Unlock()

	if err := p.durable.Delete(ctx, sessionID); err != nil {
		p.logger.Warn("Failed to delete pending plan from durable store",
			"session_id", sessionID, "error", err)
	}
}

// ClearCache drops the in-memory tier. Used to simulate a process restart.
func (p *PendingPlans) ClearCache() {
	p.mu.Lock()
	p.cache = make(map[string]*PendingPlanRecord)
	p.mu.Unlock()
}
