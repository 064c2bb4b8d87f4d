// ABOUTME: Gateway orchestrator that owns the cell, session manager, and HTTP server
// ABOUTME: Manages startup, route registration, health endpoints, and graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/2389/cell-gateway/internal/cell"
	"github.com/2389/cell-gateway/internal/config"
	"github.com/2389/cell-gateway/internal/session"
	"github.com/2389/cell-gateway/internal/store"
)

// Gateway is the host collaborator for the secret cell: it instantiates the
// cell and session manager and routes caller requests to them over HTTP.
type Gateway struct {
	config     *config.Config
	cell       *cell.Cell
	sessions   *session.Manager
	store      store.AuditStore
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Gateway from configuration. The cell is seeded with the
// configured initial secret; the audit store is SQLite when audit is enabled,
// a no-op otherwise.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := cell.New([]byte(cfg.Cell.InitialSecret), logger)

	auditStore, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		config:   cfg,
		cell:     c,
		sessions: session.NewManager(c, logger),
		store:    auditStore,
		logger:   logger.With("component", "gateway"),
	}

	mux := http.NewServeMux()
	g.registerRoutes(mux)
	g.httpServer = &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: mux,
	}

	return g, nil
}

// initStore creates the audit store based on config.
func initStore(cfg *config.Config) (store.AuditStore, error) {
	if !cfg.Audit.Enabled {
		return store.NopStore{}, nil
	}
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing audit store: %w", err)
	}
	return s, nil
}

func (g *Gateway) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/open", g.handleOpen)
	mux.HandleFunc("/api/read", g.handleRead)
	mux.HandleFunc("/api/write", g.handleWrite)
	mux.HandleFunc("/api/close", g.handleClose)
	mux.HandleFunc("/api/stats", g.handleStats)
	mux.HandleFunc("/api/audit", g.handleAudit)
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/health/ready", g.handleReady)
}

// Run serves HTTP until the context is canceled or the server fails, then
// performs a graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", g.config.Server.HTTPAddr, err)
	}

	g.logger.Info("gateway listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			serverErr = fmt.Errorf("http server: %w", err)
		}
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
	timeout := g.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server and closes the audit store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	var firstErr error

	if err := g.httpServer.Shutdown(ctx); err != nil {
		firstErr = fmt.Errorf("shutting down http server: %w", err)
	}

	if err := g.store.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing audit store: %w", err)
	}

	g.logger.Info("gateway stopped")
	return firstErr
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady reports readiness along with the live session count.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	counters := g.sessions.Counters()
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d sessions)", counters.Active)
}
