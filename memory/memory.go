// Package memory stores per-session task memories with embedding-ranked
// recall, persisted in the durable store.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"github.com/c360studio/thinker/storage"
)

// Embedder produces an embedding vector for a text. The llm client
// satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Entry is one stored memory.
type Entry struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Content   string    `json:"content"`
	Kind      string    `json:"kind"`
	Tags      []string  `json:"tags,omitempty"`
	Embedding []float64 `json:"embedding,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the session memory engine. It satisfies agent.MemoryWriter.
type Store struct {
	durable  storage.DurableStore
	embedder Embedder
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a memory store. The embedder may be nil; entries then rank by
// keyword overlap instead of cosine similarity.
func New(durable storage.DurableStore, embedder Embedder, opts ...Option) *Store {
	s := &Store{
		durable:  durable,
		embedder: embedder,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Remember stores one memory for a session. Embedding failures degrade to an
// unembedded entry rather than losing the memory.
func (s *Store) Remember(ctx context.Context, sessionID, content, kind string, tags []string) error {
	entry := &Entry{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Content:   content,
		Kind:      kind,
		Tags:      tags,
		CreatedAt: time.Now().UTC(),
	}

	if s.embedder != nil {
		vec, err := s.embedder.Embed(ctx, content)
		if err != nil {
			s.logger.Warn("Failed to embed memory, storing without vector", "error", err)
		} else {
			entry.Embedding = vec
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal memory entry: %w", err)
	}
	if err := s.durable.Put(ctx, sessionID+"."+entry.ID, data); err != nil {
		return fmt.Errorf("store memory entry: %w", err)
	}
	return nil
}

// List returns all memories for a session, oldest first.
func (s *Store) List(ctx context.Context, sessionID string) ([]*Entry, error) {
	entries, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, nil
}

// Query returns up to k memories ranked by relevance to the text. tagPattern
// is an optional doublestar glob matched against each entry's tags
// ("plan_*", "react/**"); empty matches everything.
func (s *Store) Query(ctx context.Context, sessionID, text, tagPattern string, k int) ([]*Entry, error) {
	entries, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if tagPattern != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if matchesTag(e, tagPattern) {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	if len(entries) == 0 {
		return nil, nil
	}

	var queryVec []float64
	if s.embedder != nil {
		if vec, err := s.embedder.Embed(ctx, text); err == nil {
			queryVec = vec
		} else {
			s.logger.Warn("Failed to embed query, ranking by keyword overlap", "error", err)
		}
	}

	type scored struct {
		entry *Entry
		score float64
	}
	ranked := make([]scored, 0, len(entries))
	for _, e := range entries {
		var score float64
		if queryVec != nil && len(e.Embedding) > 0 {
			score = cosine(queryVec, e.Embedding)
		} else {
			score = keywordScore(text, e.Content)
		}
		ranked = append(ranked, scored{entry: e, score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if k <= 0 || k > len(ranked) {
		k = len(ranked)
	}
	out := make([]*Entry, k)
	for i := 0; i < k; i++ {
		out[i] = ranked[i].entry
	}
	return out, nil
}

func (s *Store) load(ctx context.Context, sessionID string) ([]*Entry, error) {
	keys, err := s.durable.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list memory keys: %w", err)
	}

	prefix := sessionID + "."
	entries := make([]*Entry, 0)
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		data, err := s.durable.Get(ctx, key)
		if err != nil {
			continue // Skip entries that fail to load
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			continue
		}
		entries = append(entries, &e)
	}
	return entries, nil
}

func matchesTag(e *Entry, pattern string) bool {
	for _, tag := range e.Tags {
		if ok, err := doublestar.Match(pattern, tag); err == nil && ok {
			return true
		}
	}
	return false
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// keywordScore counts query terms present in the content, normalized by term
// count. Fallback ranking when no embeddings are available.
func keywordScore(query, content string) float64 {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return 0
	}
	c := strings.ToLower(content)
	hits := 0
	for _, term := range terms {
		if strings.Contains(c, term) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}
