package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/thinker/agent"
)

// SessionStore persists session records keyed by session id.
type SessionStore struct {
	store DurableStore
}

// NewSessionStore creates a session store over the given durable tier.
func NewSessionStore(store DurableStore) *SessionStore {
	return &SessionStore{store: store}
}

// Create stores a new session record and returns it.
func (s *SessionStore) Create(ctx context.Context, domain, query string) (*agent.Session, error) {
	now := time.Now().UTC()
	session := &agent.Session{
		ID:            uuid.New().String(),
		Domain:        domain,
		OriginalQuery: query,
		Status:        agent.SessionCreated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	data, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}
	if err := s.store.Put(ctx, session.ID, data); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return session, nil
}

// Get retrieves a session by id.
func (s *SessionStore) Get(ctx context.Context, id string) (*agent.Session, error) {
	data, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	var session agent.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &session, nil
}

// SetStatus updates a session's status and timestamp.
func (s *SessionStore) SetStatus(ctx context.Context, id string, status agent.SessionStatus) error {
	session, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	session.Status = status
	session.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.store.Put(ctx, id, data); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// List returns all session records.
func (s *SessionStore) List(ctx context.Context) ([]*agent.Session, error) {
	keys, err := s.store.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list session keys: %w", err)
	}

	sessions := make([]*agent.Session, 0, len(keys))
	for _, key := range keys {
		data, err := s.store.Get(ctx, key)
		if err != nil {
			continue // Skip entries that fail to load
		}
		var session agent.Session
		if err := json.Unmarshal(data, &session); err != nil {
			continue
		}
		sessions = append(sessions, &session)
	}
	return sessions, nil
}
