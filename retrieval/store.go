// Package retrieval serves domain reference lookups: a seeded document
// corpus ranked by embedding similarity, plus web-page ingestion.
package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/thinker/agent"
	"github.com/c360studio/thinker/storage"
)

// Embedder produces an embedding vector for a text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Document is one reference document in the corpus.
type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Source    string    `json:"source,omitempty"`
	Domain    string    `json:"domain,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Embedding []float64 `json:"embedding,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the retrieval engine. It satisfies agent.Retriever.
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

// New creates a retrieval store. The embedder may be nil; documents then
// rank by keyword overlap.
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

// Add embeds and persists a document. A zero ID gets a fresh UUID.
func (s *Store) Add(ctx context.Context, doc *Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if s.embedder != nil && len(doc.Embedding) == 0 {
		vec, err := s.embedder.Embed(ctx, doc.Title+"\n"+doc.Content)
		if err != nil {
			s.logger.Warn("Failed to embed document, storing without vector", "id", doc.ID, "error", err)
		} else {
			doc.Embedding = vec
		}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if err := s.durable.Put(ctx, doc.ID, data); err != nil {
		return fmt.Errorf("store document: %w", err)
	}
	return nil
}

// Seed loads the built-in reference corpus. Documents already present (by
// id) are overwritten, so seeding is idempotent.
func (s *Store) Seed(ctx context.Context) error {
	for _, doc := range seedDocuments() {
		if err := s.Add(ctx, doc); err != nil {
			return fmt.Errorf("seed %s: %w", doc.ID, err)
		}
	}
	return nil
}

// Search returns up to limit documents relevant to the query, preferring
// documents in the given domain. Satisfies agent.Retriever.
func (s *Store) Search(ctx context.Context, query, domain string, limit int) ([]agent.SearchResult, error) {
	docs, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if domain != "" && domain != "default" {
		filtered := make([]*Document, 0, len(docs))
		for _, d := range docs {
			if d.Domain == "" || d.Domain == domain {
				filtered = append(filtered, d)
			}
		}
		if len(filtered) > 0 {
			docs = filtered
		}
	}
	if len(docs) == 0 {
		return nil, nil
	}

	var queryVec []float64
	if s.embedder != nil {
		if vec, err := s.embedder.Embed(ctx, query); err == nil {
			queryVec = vec
		} else {
			s.logger.Warn("Failed to embed query, ranking by keyword overlap", "error", err)
		}
	}

	results := make([]agent.SearchResult, 0, len(docs))
	for _, d := range docs {
		var score float64
		if queryVec != nil && len(d.Embedding) > 0 {
			score = cosine(queryVec, d.Embedding)
		} else {
			score = keywordScore(query, d.Title+" "+d.Content)
		}
		results = append(results, agent.SearchResult{
			ID:      d.ID,
			Title:   d.Title,
			Content: d.Content,
			Source:  d.Source,
			Domain:  d.Domain,
			Score:   score,
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	if limit <= 0 || limit > len(results) {
		limit = len(results)
	}
	return results[:limit], nil
}

func (s *Store) load(ctx context.Context) ([]*Document, error) {
	keys, err := s.durable.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list document keys: %w", err)
	}
	docs := make([]*Document, 0, len(keys))
	for _, key := range keys {
		data, err := s.durable.Get(ctx, key)
		if err != nil {
			continue // Skip entries that fail to load
		}
		var d Document
		if err := json.Unmarshal(data, &d); err != nil {
			continue
		}
		docs = append(docs, &d)
	}
	return docs, nil
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
