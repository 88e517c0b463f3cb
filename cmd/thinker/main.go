// Package main provides the thinker binary entry point. Thinker is an LLM
// orchestration service: it plans, executes and validates content-generation
// tasks behind a user-approval gate, streaming progress over SSE and
// WebSocket.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/spf13/cobra"

	// Register LLM providers via init()
	_ "github.com/c360studio/thinker/llm/providers"

	"github.com/c360studio/thinker/agent"
	"github.com/c360studio/thinker/config"
	"github.com/c360studio/thinker/events"
	"github.com/c360studio/thinker/llm"
	"github.com/c360studio/thinker/memory"
	"github.com/c360studio/thinker/model"
	"github.com/c360studio/thinker/pipeline"
	"github.com/c360studio/thinker/retrieval"
	"github.com/c360studio/thinker/server"
	"github.com/c360studio/thinker/storage"
)

const (
	Version = "0.1.0"
	appName = "thinker"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   appName,
		Short: "LLM orchestration pipeline service",
		Long: `Thinker runs a three-phase LLM pipeline: a planning engine produces a
reasoning plan for user approval, an execution loop carries the approved plan
out, and a validation engine critiques and improves the result.

Progress is streamed over SSE and WebSocket; sessions, pending plans and
event history are kept in NATS JetStream KV when a NATS URL is configured.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, logLevel)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "thinker.yaml", "Config file path (YAML)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, Version)
		},
	})

	return cmd
}

func run(ctx context.Context, configPath, logLevel string) error {
	logger := newLogger(logLevel)
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	registry := model.NewDefaultRegistry()
	registry.Merge(&cfg.Models)

	client := llm.NewClient(registry, llm.WithLogger(logger))

	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	stores, closeStores, err := openStores(signalCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	sessions := storage.NewSessionStore(stores.sessions)
	pending := storage.NewPendingPlans(stores.pending, logger)
	eventLog := storage.NewEventLog(stores.events)
	bus := events.New(eventLog, events.WithLogger(logger))

	memories := memory.New(stores.memory, client, memory.WithLogger(logger))
	retriever := retrieval.New(stores.documents, client, retrieval.WithLogger(logger))
	if err := retriever.Seed(signalCtx); err != nil {
		logger.Warn("Failed to seed retrieval corpus", "error", err)
	}

	planner := agent.NewPlanner(client,
		agent.WithRetriever(retriever),
		agent.WithMemory(memories),
		agent.WithPlannerLogger(logger))
	executor := agent.NewExecutor(client,
		agent.WithExecutorRetriever(retriever),
		agent.WithExecutorMemory(memories),
		agent.WithIterationFloor(cfg.Pipeline.IterationFloor),
		agent.WithExecutorLogger(logger))
	validator := agent.NewValidator(client,
		agent.WithValidatorMemory(memories),
		agent.WithValidatorLogger(logger))

	driver := pipeline.New(planner, executor, validator, sessions, pending, bus,
		pipeline.WithLogger(logger))

	watcher, err := config.NewWatcher(configPath, registry, logger)
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	if err := watcher.Start(signalCtx); err != nil {
		logger.Warn("Config watcher unavailable", "path", configPath, "error", err)
	} else {
		defer watcher.Stop()
	}

	srvOpts := []server.Option{
		server.WithLogger(logger),
		server.WithHeartbeat(cfg.Server.HeartbeatInterval()),
	}
	if cfg.Ingestion.Enabled {
		srvOpts = append(srvOpts, server.WithIngester(retrieval.NewIngester(retriever)))
	}
	srv := server.New(driver, sessions, eventLog, memories, retriever, bus, srvOpts...)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Thinker ready", "version", Version, "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-signalCtx.Done():
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", "error", err)
	}
	if err := driver.Shutdown(shutdownCtx); err != nil {
		logger.Error("Pipeline shutdown error", "error", err)
	}

	logger.Info("Thinker shutdown complete")
	return nil
}

func newLogger(level string) *slog.Logger {
	l := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// stores bundles the durable tiers behind each store.
type stores struct {
	sessions  storage.DurableStore
	pending   storage.DurableStore
	events    storage.DurableStore
	memory    storage.DurableStore
	documents storage.DurableStore
}

// openStores opens JetStream-backed buckets when a NATS URL is configured,
// in-memory stores otherwise. The returned func closes the NATS connection.
func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, func(), error) {
	if cfg.NATS.URL == "" {
		logger.Warn("No NATS URL configured, using in-memory storage; sessions will not survive restarts")
		return &stores{
			sessions:  storage.NewMemory(),
			pending:   storage.NewMemory(),
			events:    storage.NewMemory(),
			memory:    storage.NewMemory(),
			documents: storage.NewMemory(),
		}, func() {}, nil
	}

	logger.Info("Connecting to NATS", "url", cfg.NATS.URL)
	conn, err := nats.Connect(cfg.NATS.URL,
		nats.Name(appName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("create JetStream context: %w", err)
	}

	open := func(bucket string) (storage.DurableStore, error) {
		return storage.OpenKV(ctx, js, bucket)
	}

	s := &stores{}
	for _, b := range []struct {
		dst    *storage.DurableStore
		bucket string
	}{
		{&s.sessions, storage.BucketSessions},
		{&s.pending, storage.BucketPendingPlans},
		{&s.events, storage.BucketEvents},
		{&s.memory, storage.BucketMemory},
		{&s.documents, storage.BucketDocuments},
	} {
		kv, err := open(b.bucket)
		if err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("open bucket %s: %w", b.bucket, err)
		}
		*b.dst = kv
	}

	closeConn := func() {
		if err := conn.Drain(); err != nil {
			logger.Warn("NATS drain failed", "error", err)
		}
	}
	return s, closeConn, nil
}
