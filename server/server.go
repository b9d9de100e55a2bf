// Package server exposes the promptpipe HTTP API: prompt CRUD, manual and
// hook-triggered execution, execution history, usage statistics, and a
// WebSocket feed of finished executions.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/promptpipe/promptpipe/ai/openrouter"
	"github.com/promptpipe/promptpipe/ai/tracker"
	"github.com/promptpipe/promptpipe/config"
	"github.com/promptpipe/promptpipe/prompt"
	"github.com/promptpipe/promptpipe/run"
	"github.com/promptpipe/promptpipe/webhook"
)

const (
	// MaxClients caps concurrent WebSocket connections
	MaxClients = 64

	// ShutdownTimeout bounds how long Stop waits for goroutines to drain
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout protects against slowloris-style clients
	ReadHeaderTimeout = 5 * time.Second
)

// Server wires the prompt store, execution runner, and usage tracker behind
// an HTTP API and streams finished executions to WebSocket clients.
type Server struct {
	db     *sql.DB
	cfg    *config.Config
	logger *zap.SugaredLogger

	prompts *prompt.Store
	records *run.RecordStore
	usage   *tracker.UsageTracker
	runner  *run.Runner

	// HTTP server with timeouts
	httpServer *http.Server

	// WebSocket hub state
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	// Lifecycle management
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	broadcastDrops atomic.Int64

	startedAt time.Time
}

// New creates a Server with all stores and clients wired from config.
// The server itself acts as the runner's broadcaster so finished
// executions reach connected WebSocket clients.
func New(db *sql.DB, cfg *config.Config, logger *zap.SugaredLogger) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		db:         db,
		cfg:        cfg,
		logger:     logger,
		prompts:    prompt.NewStore(db, logger),
		records:    run.NewRecordStore(db, logger),
		usage:      tracker.NewUsageTracker(db),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
	}

	completions := openrouter.NewClient(openrouter.Config{
		APIKey:  cfg.OpenRouter.APIKey,
		BaseURL: cfg.OpenRouter.BaseURL,
		Model:   cfg.OpenRouter.Model,
		Timeout: cfg.GetOpenRouterTimeout(),
		Logger:  logger,
	})

	delivery := webhook.NewClient(webhook.Config{
		Timeout:           cfg.GetWebhookTimeout(),
		BlockPrivateHosts: cfg.Webhook.BlockPrivateHosts,
		Logger:            logger,
	})

	s.runner = run.NewRunner(run.Config{
		Prompts:     s.prompts,
		Records:     s.records,
		Completions: completions,
		Delivery:    delivery,
		Tracker:     s.usage,
		Broadcaster: s,
		Logger:      logger,
	})

	return s
}

// routes builds the HTTP mux for the API
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.corsMiddleware(s.HandleHealth))
	mux.HandleFunc("/api/prompts", s.corsMiddleware(s.HandlePrompts))           // List/create prompts (GET/POST)
	mux.HandleFunc("/api/prompts/", s.corsMiddleware(s.HandlePrompt))           // Prompt CRUD and run/preview/executions sub-resources
	mux.HandleFunc("/api/hooks/", s.corsMiddleware(s.HandleHook))               // Inbound webhook trigger (POST /api/hooks/{id})
	mux.HandleFunc("/api/executions", s.corsMiddleware(s.HandleExecutions))     // List execution records (GET)
	mux.HandleFunc("/api/executions/", s.corsMiddleware(s.HandleExecution))     // Individual execution record (GET)
	mux.HandleFunc("/api/usage/stats", s.corsMiddleware(s.HandleUsageStats))    // Aggregate usage and per-model breakdown (GET)
	mux.HandleFunc("/api/usage/timeseries", s.corsMiddleware(s.HandleUsageTimeSeries))
	mux.HandleFunc("/ws/executions", s.HandleExecutionsWebSocket)
	return mux
}

// corsMiddleware adds CORS headers using the configured allowed origins.
// Origin matching is prefix-based so any port on an allowed host passes.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// originAllowed checks an Origin header value against configured origins
func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.GetServerAllowedOrigins() {
		if strings.HasPrefix(origin, allowed) {
			return true
		}
	}
	return false
}

// Start runs the hub and serves HTTP on the given port, falling back to an
// alternative when the port is taken. Blocks until the server stops.
func (s *Server) Start(port int) error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runHub()
	}()

	actualPort, err := findAvailablePort(port)
	if err != nil {
		return err
	}
	if actualPort != port {
		s.logger.Infow("Port in use, using alternative",
			"requested_port", port,
			"actual_port", actualPort,
		)
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", actualPort),
		Handler:           s.routes(),
		ReadHeaderTimeout: ReadHeaderTimeout,
	}
	s.startedAt = time.Now()

	s.logger.Infow("Server ready",
		"url", fmt.Sprintf("http://localhost:%d", actualPort),
		"port", actualPort,
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server: closes client connections first so
// their pumps exit, then cancels the context and drains goroutines.
func (s *Server) Stop() error {
	s.logger.Infow("Initiating server shutdown")

	s.mu.Lock()
	clientsToClose := make([]*Client, 0, len(s.clients))
	for client := range s.clients {
		clientsToClose = append(clientsToClose, client)
		delete(s.clients, client)
	}
	s.mu.Unlock()

	if len(clientsToClose) > 0 {
		s.logger.Infow("Closing client connections", "count", len(clientsToClose))
		for _, client := range clientsToClose {
			client.conn.Close() // Unblocks readPump
		}
	}

	s.cancel()

	if s.httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer shutdownCancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warnw("HTTP server shutdown error", "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Infow("All goroutines stopped cleanly")
	case <-time.After(ShutdownTimeout):
		s.logger.Warnw("Goroutine shutdown timed out, forcing exit",
			"timeout", ShutdownTimeout,
		)
	}

	s.logger.Infow("Server shutdown complete",
		"broadcast_drops", s.broadcastDrops.Load(),
	)
	return nil
}

// isPortAvailable checks if a port is available for binding
func isPortAvailable(port int) bool {
	addr := fmt.Sprintf(":%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return false
	}
	_ = listener.Close() // Error ignored: best-effort port check, caller will retry on actual bind
	return true
}

// findAvailablePort tries the requested port first, then the preferred
// fallbacks, then a high-range block as a last resort.
func findAvailablePort(requestedPort int) (int, error) {
	if isPortAvailable(requestedPort) {
		return requestedPort, nil
	}

	preferredPorts := []int{config.DefaultServerPort, config.FallbackServerPort}
	for _, port := range preferredPorts {
		if port != requestedPort && isPortAvailable(port) {
			return port, nil
		}
	}

	fallbackStart := 58808
	for i := 0; i < 10; i++ {
		port := fallbackStart + i
		if isPortAvailable(port) {
			return port, nil
		}
	}

	return 0, fmt.Errorf("no available ports found (tried %d, %d, %d, and range 58808-58817)",
		requestedPort, config.DefaultServerPort, config.FallbackServerPort)
}
