// Package server exposes the pipeline over HTTP: JSON APIs for planning and
// execution, SSE and WebSocket event streams, and Prometheus metrics.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/c360studio/thinker/events"
	"github.com/c360studio/thinker/memory"
	"github.com/c360studio/thinker/metrics"
	"github.com/c360studio/thinker/pipeline"
	"github.com/c360studio/thinker/retrieval"
	"github.com/c360studio/thinker/storage"
)

// maxRequestBodySize limits POST body sizes to prevent DoS.
const maxRequestBodySize = 1 << 20 // 1 MB

// defaultHeartbeat is the SSE/WS idle interval before a heartbeat frame.
const defaultHeartbeat = 15 * time.Second

// Server holds the handler dependencies.
type Server struct {
	driver    *pipeline.Driver
	sessions  *storage.SessionStore
	eventLog  *storage.EventLog
	memories  *memory.Store
	retriever *retrieval.Store
	ingester  *retrieval.Ingester
	bus       *events.Bus
	logger    *slog.Logger
	heartbeat time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithHeartbeat overrides the idle heartbeat interval.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) { s.heartbeat = d }
}

// WithIngester enables the document ingestion endpoint.
func WithIngester(i *retrieval.Ingester) Option {
	return func(s *Server) { s.ingester = i }
}

// New creates the server.
func New(driver *pipeline.Driver, sessions *storage.SessionStore, eventLog *storage.EventLog,
	memories *memory.Store, retriever *retrieval.Store, bus *events.Bus, opts ...Option) *Server {
	s := &Server{
		driver:    driver,
		sessions:  sessions,
		eventLog:  eventLog,
		memories:  memories,
		retriever: retriever,
		bus:       bus,
		logger:    slog.Default(),
		heartbeat: defaultHeartbeat,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the HTTP mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/plan", s.handlePlan)
	mux.HandleFunc("POST /api/plan/refine", s.handleRefine)
	mux.HandleFunc("POST /api/execute", s.handleExecute)
	mux.HandleFunc("GET /api/sessions", s.handleSessions)
	mux.HandleFunc("GET /api/session/{session_id}", s.handleSession)
	mux.HandleFunc("GET /api/history/{session_id}", s.handleHistory)
	mux.HandleFunc("GET /api/memory/{session_id}", s.handleMemory)
	mux.HandleFunc("POST /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/domains", s.handleDomains)
	mux.HandleFunc("POST /api/ingest", s.handleIngest)
	mux.HandleFunc("GET /api/events/{session_id}", s.handleEventStream)
	mux.HandleFunc("/ws/{session_id}", s.handleWebSocket)
	mux.Handle("GET /metrics", metrics.Handler())

	return mux
}
