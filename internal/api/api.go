package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/opengrievance/grievanced/internal/flow"
	"github.com/opengrievance/grievanced/internal/genai"
	"github.com/opengrievance/grievanced/internal/scheduler"
	"github.com/opengrievance/grievanced/internal/store"
)

// Default configuration for the API server and background jobs.
const (
	// DefaultAddr is the default listen address for the API server.
	DefaultAddr = ":8080"
	// DefaultSessionTTL is how long a mid-dialogue session may sit idle
	// before the sweep marks it abandoned.
	DefaultSessionTTL = 30 * time.Minute
	// DefaultSweepCron runs the stale-session sweep every ten minutes.
	DefaultSweepCron = "*/10 * * * *"
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr       string
	SessionTTL time.Duration
	SweepCron  string
	FlowConfig flow.Config
}

// Option configures Opts.
type Option func(*Opts)

// WithAddr sets the listen address for the API server.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithSessionTTL sets how long idle mid-dialogue sessions survive before the
// sweep abandons them.
func WithSessionTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.SessionTTL = ttl }
}

// WithSweepCron sets the cron expression for the stale-session sweep.
func WithSweepCron(expr string) Option {
	return func(o *Opts) { o.SweepCron = expr }
}

// WithFlowConfig sets the dialogue flow configuration.
func WithFlowConfig(cfg flow.Config) Option {
	return func(o *Opts) { o.FlowConfig = cfg }
}

// Server hosts the HTTP surface over the orchestrator and complaint store.
type Server struct {
	orchestrator *flow.Orchestrator
	st           store.Store
	addr         string
	httpServer   *http.Server
}

// NewServer creates an API server bound to the given orchestrator and store.
func NewServer(orch *flow.Orchestrator, st store.Store, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		orchestrator: orch,
		st:           st,
		addr:         cfg.Addr,
	}
}

// Run wires the storage backend, model gateway, orchestrator, sweep job, and
// HTTP server together and blocks until the process receives SIGINT or
// SIGTERM.
func Run(storeOpts []store.Option, genaiOpts []genai.Option, apiOpts []Option) error {
	cfg := Opts{
		Addr:       DefaultAddr,
		SessionTTL: DefaultSessionTTL,
		SweepCron:  DefaultSweepCron,
		FlowConfig: flow.DefaultConfig(),
	}
	for _, opt := range apiOpts {
		opt(&cfg)
	}

	st, err := store.NewStore(storeOpts...)
	if err != nil {
		return fmt.Errorf("api.Run: failed to initialize store: %w", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("api.Run: failed to close store", "error", closeErr)
		}
	}()

	genaiClient, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return fmt.Errorf("api.Run: failed to initialize model gateway: %w", err)
	}

	orch := flow.NewOrchestrator(genaiClient, st, cfg.FlowConfig)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// An empty sweep cron disables the background abandonment job.
	if cfg.SweepCron != "" {
		sched := scheduler.NewScheduler()
		defer sched.Stop()
		if err := sched.AddJob(cfg.SweepCron, func() {
			if sweepErr := orch.AbandonStale(ctx, cfg.SessionTTL); sweepErr != nil {
				slog.Error("api.Run: stale-session sweep failed", "error", sweepErr)
			}
		}); err != nil {
			return fmt.Errorf("api.Run: failed to schedule stale-session sweep: %w", err)
		}
		slog.Debug("api.Run: stale-session sweep scheduled", "cron", cfg.SweepCron, "ttl", cfg.SessionTTL)
	} else {
		slog.Info("api.Run: stale-session sweep disabled")
	}

	srv := NewServer(orch, st, WithAddr(cfg.Addr))
	return srv.Serve(ctx)
}

// Handler returns the HTTP handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", s.chatHandler)
	mux.HandleFunc("/complaints", s.listComplaintsHandler)
	mux.HandleFunc("/complaints/", s.complaintHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Serve starts the HTTP server and blocks until the context is canceled or
// the listener fails.
func (s *Server) Serve(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Serve: starting API server", "addr", s.addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server.Serve: shutdown failed", "error", err)
			return err
		}
		slog.Info("Server.Serve: API server stopped")
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server.Serve: API server failed", "error", err)
			return err
		}
		return nil
	}
}
