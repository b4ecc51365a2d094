// Package gateway hosts the HTTP surface: product resolution, the inbound
// conversation endpoints and the MCP tool server.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/mercadoclaw/internal/config"
	httpapi "github.com/nextlevelbuilder/mercadoclaw/internal/http"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Server is the gateway HTTP server.
type Server struct {
	cfg     *config.Config
	version string

	productsHandler      *httpapi.ProductsHandler
	conversationsHandler *httpapi.ConversationsHandler
	mcpHandler           http.Handler

	kv       HealthChecker // redis; ErrDegraded when on the in-process fallback
	database HealthChecker // optional postgres

	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer creates a new gateway server. Handlers are attached with the
// Set* methods before BuildMux or Start.
func NewServer(cfg *config.Config, version string) *Server {
	return &Server{cfg: cfg, version: version}
}

// SetProductsHandler sets the product resolution handler.
func (s *Server) SetProductsHandler(h *httpapi.ProductsHandler) { s.productsHandler = h }

// SetConversationsHandler sets the inbound buffer and cooldown handler.
func (s *Server) SetConversationsHandler(h *httpapi.ConversationsHandler) {
	s.conversationsHandler = h
}

// SetMCPHandler mounts the streamable MCP endpoint at /mcp.
func (s *Server) SetMCPHandler(h http.Handler) { s.mcpHandler = h }

// SetHealthCheckers wires dependency probes into /health. Either may be nil.
func (s *Server) SetHealthCheckers(kv, database HealthChecker) {
	s.kv = kv
	s.database = database
}

// BuildMux creates and caches the HTTP mux with all routes registered.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	if s.productsHandler != nil {
		s.productsHandler.RegisterRoutes(mux)
	}
	if s.conversationsHandler != nil {
		s.conversationsHandler.RegisterRoutes(mux)
	}
	if s.mcpHandler != nil {
		mux.Handle("/mcp", s.mcpHandler)
	}

	s.mux = mux
	return mux
}

// Start listens on the configured address until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Gateway.Host, s.cfg.Gateway.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	slog.Info("gateway.starting", "addr", ln.Addr().String())
	return s.Serve(ctx, ln)
}

// Serve runs the server on an existing listener. Used by Start and tests.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.BuildMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != http.ErrServerClosed {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

// handleHealth reports process liveness plus the state of each dependency.
// A degraded key-value store is reported but does not fail the check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	body := map[string]interface{}{
		"status":  "ok",
		"version": s.version,
	}
	status := http.StatusOK

	if s.kv != nil {
		if err := s.kv.Ping(ctx); err != nil {
			body["kv"] = "memory"
		} else {
			body["kv"] = "redis"
		}
	}
	if s.database != nil {
		if err := s.database.Ping(ctx); err != nil {
			body["database"] = "unreachable"
			body["status"] = "degraded"
			status = http.StatusServiceUnavailable
		} else {
			body["database"] = "ok"
		}
	}

	httpapi.WriteJSON(w, status, body)
}
