// Package api exposes the HTTP surface of TriagePipe.
//
// It serves a single conversational endpoint, POST /run, that executes one
// pipeline turn against a supplied conversation state, plus a liveness probe
// at GET /healthz. The package also wires the pipeline collaborators from
// configured options in Run, the service entry point used by main.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/connectedhealth/triagepipe/internal/backend"
	"github.com/connectedhealth/triagepipe/internal/flow"
	"github.com/connectedhealth/triagepipe/internal/genai"
	"github.com/connectedhealth/triagepipe/internal/knowledge"
	"github.com/connectedhealth/triagepipe/internal/models"
	"github.com/connectedhealth/triagepipe/internal/scheduler"
	"github.com/connectedhealth/triagepipe/internal/util"
)

// DefaultAddr is the default listen address for the API server.
const DefaultAddr = ":8080"

// DefaultHealthCron is the default schedule for the background backend
// health watch.
const DefaultHealthCron = "*/5 * * * *"

// Runner executes one conversation turn. Satisfied by flow.Pipeline.
type Runner interface {
	Run(ctx context.Context, state *models.ConversationState) (*models.ConversationState, error)
}

// Opts holds API server configuration.
type Opts struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	HealthCron   string
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithReadTimeout sets the HTTP read timeout.
func WithReadTimeout(d time.Duration) Option {
	return func(o *Opts) { o.ReadTimeout = d }
}

// WithWriteTimeout sets the HTTP write timeout.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *Opts) { o.WriteTimeout = d }
}

// WithHealthCron sets the schedule for the background backend health watch.
func WithHealthCron(expr string) Option {
	return func(o *Opts) { o.HealthCron = expr }
}

// Server is the TriagePipe HTTP server.
type Server struct {
	pipeline   Runner
	httpServer *http.Server
}

// NewServer creates an API server around the given pipeline.
func NewServer(pipeline Runner, opts ...Option) *Server {
	cfg := Opts{
		Addr:         DefaultAddr,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Server{pipeline: pipeline}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.healthHandler)
	r.Post("/run", s.runHandler)

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Start begins serving and blocks until the server stops.
func (s *Server) Start() error {
	slog.Info("Server.Start: listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Server.Shutdown: stopping API server")
	return s.httpServer.Shutdown(ctx)
}

// Run wires the pipeline collaborators from the given option sets, seeds the
// knowledge corpus, and serves the API until the context is cancelled or the
// server fails. A missing generative-model configuration is tolerated: the
// pipeline then runs rule-based triage only.
func Run(ctx context.Context, backendOpts []backend.Option, genaiOpts []genai.Option, knowledgeOpts []knowledge.Option, flowOpts []flow.Option, apiOpts []Option) error {
	backendClient := backend.NewClient(backendOpts...)

	var modelClient genai.ClientInterface
	var embedder knowledge.Embedder
	if client, err := genai.NewClient(genaiOpts...); err != nil {
		slog.Warn("api.Run: generative model unavailable, using rule-based triage only", "error", err)
	} else {
		modelClient = client
		embedder = client
	}

	store, err := knowledge.NewStore(knowledgeOpts...)
	if err != nil {
		return fmt.Errorf("failed to open knowledge store: %w", err)
	}
	defer store.Close()

	if util.ParseBoolEnv("SEED_KNOWLEDGE", true) {
		if err := knowledge.Seed(ctx, store, embedder); err != nil {
			slog.Warn("api.Run: knowledge corpus seeding failed", "error", err)
		}
	}
	retriever := knowledge.NewRetriever(store, embedder)

	pipeline := flow.NewPipeline(backendClient, retriever, modelClient, flowOpts...)
	server := NewServer(pipeline, apiOpts...)

	var cfg Opts
	for _, opt := range apiOpts {
		opt(&cfg)
	}
	healthCron := cfg.HealthCron
	if healthCron == "" {
		healthCron = DefaultHealthCron
	}
	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.AddJob(healthCron, func() { watchBackendHealth(backendClient) }); err != nil {
		slog.Warn("api.Run: invalid health watch schedule, watch disabled", "cron", healthCron, "error", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

// watchBackendHealth probes backend health and logs the outcome. Turns read
// health themselves; this watch only keeps outages visible in the logs while
// the service is idle.
func watchBackendHealth(backendClient *backend.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	health, err := backendClient.Health(ctx)
	if err != nil {
		slog.Warn("api.watchBackendHealth: backend unreachable", "error", err)
		return
	}
	if health.DegradedMode || !health.DBOK {
		slog.Warn("api.watchBackendHealth: backend degraded", "db_ok", health.DBOK, "gemini_ok", health.GeminiOK)
		return
	}
	slog.Debug("api.watchBackendHealth: backend healthy")
}
