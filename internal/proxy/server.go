// Package proxy exposes the rewriting pipeline over HTTP.
package proxy

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/raaihank/pii-sentinel/internal/activity"
	"github.com/raaihank/pii-sentinel/internal/config"
	"github.com/raaihank/pii-sentinel/internal/logger"
	"github.com/raaihank/pii-sentinel/internal/pipeline"
	"github.com/raaihank/pii-sentinel/internal/websocket"
	"go.uber.org/zap"
)

// Version is reported by /info.
const Version = "0.1.0"

// Deps are the collaborators the server needs. Recorder, History and Hub
// are optional.
type Deps struct {
	Orchestrator *pipeline.Orchestrator
	Recorder     activity.Recorder
	History      activity.Reader
	Hub          *websocket.Hub
}

// Server represents the HTTP API server
type Server struct {
	config   *config.Config
	logger   *logger.Logger
	orch     *pipeline.Orchestrator
	recorder activity.Recorder
	history  activity.Reader
	wsHub    *websocket.Hub
	limiter  *clientLimiter
	router   *mux.Router
	server   *http.Server
	started  time.Time

	totalRequests    atomic.Int64
	totalSubstituted atomic.Int64
	totalKeysFound   atomic.Int64
}

// New creates a new server instance
func New(cfg *config.Config, log *logger.Logger, deps Deps) (*Server, error) {
	if deps.Orchestrator == nil {
		return nil, fmt.Errorf("proxy: orchestrator is required")
	}

	s := &Server{
		config:   cfg,
		logger:   log.WithComponent("proxy"),
		orch:     deps.Orchestrator,
		recorder: deps.Recorder,
		history:  deps.History,
		wsHub:    deps.Hub,
		router:   mux.NewRouter(),
		started:  time.Now(),
	}
	if cfg.RateLimit.Enabled {
		s.limiter = newClientLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	// The upgrade needs the raw ResponseWriter, so /ws skips the middleware.
	if s.wsHub != nil && s.config.WebSocket.Enabled {
		s.router.HandleFunc(s.config.WebSocket.Path, s.wsHub.HandleWebSocket).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.Use(s.bodyLimitMiddleware)

	api.HandleFunc("/sanitize/request", s.handleSanitizeRequest).Methods(http.MethodPost)
	api.HandleFunc("/sanitize/response", s.handleSanitizeResponse).Methods(http.MethodPost)
	api.HandleFunc("/pii/find", s.handleFindPII).Methods(http.MethodPost)
	api.HandleFunc("/keys/detect", s.handleDetectKeys).Methods(http.MethodPost)
	api.HandleFunc("/rules/conflicts", s.handleRuleConflicts).Methods(http.MethodGet)
	api.HandleFunc("/rules/templates", s.handleRuleTemplates).Methods(http.MethodGet)
	api.HandleFunc("/rules/test", s.handleRuleTest).Methods(http.MethodPost)
	api.HandleFunc("/activity", s.handleActivity).Methods(http.MethodGet)
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it stops. Background work
// stops when ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting PII-Sentinel API server",
		zap.Int("port", s.config.Server.Port),
		zap.Bool("rate_limit", s.limiter != nil),
		zap.Bool("websocket", s.wsHub != nil && s.config.WebSocket.Enabled),
	)

	if s.limiter != nil {
		go s.limiter.runCleanup(ctx, 10*time.Minute, time.Hour)
	}
	if s.wsHub != nil && s.config.WebSocket.StatusInterval > 0 {
		go s.broadcastStatus(ctx, s.config.WebSocket.StatusInterval)
	}

	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping PII-Sentinel API server")
	return s.server.Shutdown(ctx)
}

// Status summarises the running service.
func (s *Server) Status() websocket.SystemStatusEvent {
	aliasKeys, _ := s.orch.Aliases().Snapshot().Len()
	status := websocket.SystemStatusEvent{
		Status:           "healthy",
		Uptime:           time.Since(s.started).Round(time.Second).String(),
		TotalRequests:    s.totalRequests.Load(),
		TotalSubstituted: s.totalSubstituted.Load(),
		TotalKeysFound:   s.totalKeysFound.Load(),
		ActiveAliases:    aliasKeys,
		ActiveRules:      len(s.orch.Rules()),
	}
	if s.wsHub != nil {
		status.ConnectedClients = int(s.wsHub.GetStats().ActiveConnections)
	}
	return status
}

func (s *Server) broadcastStatus(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.wsHub.BroadcastStatus(s.Status())
		}
	}
}

// record stores entries without failing the request.
func (s *Server) record(ctx context.Context, entries []activity.Entry) {
	if s.recorder == nil {
		return
	}
	for _, e := range entries {
		if err := s.recorder.Record(ctx, e); err != nil {
			s.logger.Debug("Activity not fully recorded",
				zap.String("entry_id", e.ID),
				zap.Error(err))
		}
	}
}
