// ABOUTME: Gateway orchestrator that wires the triage services to an HTTP server
// ABOUTME: Manages store, audit log, provider, and server lifecycle

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/2389/triage-gateway/internal/assignment"
	"github.com/2389/triage-gateway/internal/audit"
	"github.com/2389/triage-gateway/internal/auth"
	"github.com/2389/triage-gateway/internal/completion"
	"github.com/2389/triage-gateway/internal/config"
	"github.com/2389/triage-gateway/internal/conversation"
	"github.com/2389/triage-gateway/internal/escalate"
	"github.com/2389/triage-gateway/internal/store"
	"github.com/2389/triage-gateway/internal/ticket"
)

// Gateway orchestrates the triage-gateway server components.
// It owns the entity store, the audit log, and the HTTP server exposing
// the triage API.
type Gateway struct {
	config       *config.Config
	store        store.Store
	auditLog     audit.Recorder
	conversation *conversation.Service
	tickets      *ticket.Manager
	assigner     *assignment.Coordinator
	httpServer   *http.Server
	logger       *slog.Logger
}

// initStore creates the entity store based on config and environment.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("TRIAGE_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewPebbleStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// initAudit creates the transition audit log. An empty audit_path
// disables recording.
func initAudit(cfg *config.Config, logger *slog.Logger) (audit.Recorder, error) {
	if cfg.Database.AuditPath == "" {
		logger.Warn("audit log disabled - no database.audit_path configured")
		return audit.Nop{}, nil
	}
	log, err := audit.NewSQLiteLog(cfg.Database.AuditPath)
	if err != nil {
		return nil, fmt.Errorf("initializing audit log: %w", err)
	}
	return log, nil
}

// initProvider creates the completion provider from config.
func initProvider(cfg *config.Config) completion.Provider {
	opts := []completion.OpenAIOption{}
	if cfg.Completion.BaseURL != "" {
		opts = append(opts, completion.WithBaseURL(cfg.Completion.BaseURL))
	}
	if cfg.Completion.Model != "" {
		opts = append(opts, completion.WithModel(cfg.Completion.Model))
	}
	if cfg.Completion.Timeout > 0 {
		opts = append(opts, completion.WithTimeout(cfg.Completion.Timeout))
	}
	return completion.NewOpenAI(cfg.Completion.APIKey, opts...)
}

// initEngine builds the escalation engine, loading a rules file when
// one is configured.
func initEngine(cfg *config.Config, logger *slog.Logger) (*escalate.Engine, error) {
	rules := escalate.DefaultRules()
	if cfg.Escalation.RulesPath != "" {
		loaded, err := escalate.LoadRules(cfg.Escalation.RulesPath)
		if err != nil {
			return nil, fmt.Errorf("loading escalation rules: %w", err)
		}
		rules = loaded
		logger.Info("escalation rules loaded", "path", cfg.Escalation.RulesPath)
	}
	return escalate.NewEngine(rules), nil
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	auditLog, err := initAudit(cfg, logger)
	if err != nil {
		return nil, err
	}

	engine, err := initEngine(cfg, logger)
	if err != nil {
		return nil, err
	}

	provider := initProvider(cfg)
	assigner := assignment.NewCoordinator(s, auditLog, logger)
	tickets := ticket.NewManager(s, assigner, auditLog, logger)

	convOpts := []conversation.Option{}
	if cfg.Completion.SystemPrompt != "" {
		convOpts = append(convOpts, conversation.WithSystemPrompt(cfg.Completion.SystemPrompt))
	}
	convService := conversation.New(s, provider, engine, tickets, auditLog, logger, convOpts...)

	gw := &Gateway{
		config:       cfg,
		store:        s,
		auditLog:     auditLog,
		conversation: convService,
		tickets:      tickets,
		assigner:     assigner,
		logger:       logger.With("component", "gateway"),
	}

	mux := http.NewServeMux()

	// Health endpoint - no auth required
	mux.HandleFunc("/health", gw.handleHealth)

	gw.registerAPIRoutes(mux, cfg, logger)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// registerAPIRoutes attaches the API handlers, wrapping them in auth
// middleware when a JWT secret is configured.
func (g *Gateway) registerAPIRoutes(mux *http.ServeMux, cfg *config.Config, logger *slog.Logger) {
	api := http.NewServeMux()
	api.HandleFunc("/api/sessions", g.handleSessions)
	api.HandleFunc("/api/sessions/", g.handleSessionRoutes)
	api.HandleFunc("/api/tickets", g.handleTickets)
	api.HandleFunc("/api/tickets/", g.handleTicketRoutes)
	api.HandleFunc("/api/agents", g.handleListAgents)
	api.HandleFunc("/api/export", g.handleExport)

	if cfg.Auth.JWTSecret != "" {
		verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		middleware := auth.Middleware(verifier, cfg.Auth.OperatorKeyHash)
		mux.Handle("/api/", middleware(api))
		logger.Info("HTTP auth middleware enabled")
	} else {
		mux.Handle("/api/", api)
		logger.Warn("HTTP auth disabled - no jwt_secret configured")
	}
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server and closes the store and audit log.
func (g *Gateway) Shutdown(ctx context.Context) error {
	var firstErr error

	if err := g.httpServer.Shutdown(ctx); err != nil {
		g.logger.Error("HTTP server shutdown", "error", err)
		firstErr = err
	}

	if closer, ok := g.auditLog.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			g.logger.Error("closing audit log", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if err := g.store.Close(); err != nil {
		g.logger.Error("closing store", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	g.logger.Info("gateway stopped")
	return firstErr
}
