package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/finboard-core/internal/acquisition"
	"github.com/nerrad567/finboard-core/internal/audit"
	"github.com/nerrad567/finboard-core/internal/fieldpath"
	"github.com/nerrad567/finboard-core/internal/infrastructure/config"
	"github.com/nerrad567/finboard-core/internal/infrastructure/logging"
	"github.com/nerrad567/finboard-core/internal/widget"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Acquirer is the acquisition engine surface used by the API.
// *acquisition.Engine implements it.
type Acquirer interface {
	Start(ctx context.Context, id string) error
	Stop(id string)
	Refresh(ctx context.Context, id string) error
	Probe(ctx context.Context, url string) (fieldpath.Value, error)
	Sessions() []acquisition.SessionInfo
	Session(id string) (acquisition.SessionInfo, bool)
}

// AuditLister reads the widget change history. *audit.SQLiteRepository
// implements it.
type AuditLister interface {
	List(ctx context.Context, filter audit.Filter) (*audit.ListResult, error)
}

// HealthChecker is implemented by infrastructure components (database, MQTT).
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Metrics  config.MetricsConfig
	Logger   *logging.Logger
	Store    *widget.Store
	Engine   Acquirer
	DB       HealthChecker         // optional
	MQTT     HealthChecker         // optional; nil when MQTT is disabled
	Audit    AuditLister           // optional; /audit is not served when nil
	Gatherer prometheus.Gatherer   // optional; defaults to prometheus.DefaultGatherer
	Registry prometheus.Registerer // optional; HTTP metrics are not exported when nil
	Hub      *Hub                  // optional; created by New when nil
	Now      func() time.Time      // optional; used for export timestamps
	Version  string
}

// Server is the HTTP API server for FinBoard Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	metricsCfg  config.MetricsConfig
	logger      *logging.Logger
	store       *widget.Store
	engine      Acquirer
	db          HealthChecker
	mqtt        HealthChecker
	audit       AuditLister
	gatherer    prometheus.Gatherer
	httpMetrics *httpMetrics
	now         func() time.Time
	version     string
	startTime   time.Time
	server      *http.Server
	hub         *Hub
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("widget store is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("acquisition engine is required")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		metricsCfg: deps.Metrics,
		logger:     deps.Logger,
		store:      deps.Store,
		engine:     deps.Engine,
		db:         deps.DB,
		mqtt:       deps.MQTT,
		audit:      deps.Audit,
		gatherer:   deps.Gatherer,
		now:        deps.Now,
		version:    deps.Version,
		hub:        deps.Hub,
		startTime:  time.Now(),
	}
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger, s.store.List)
	}
	s.httpMetrics = newHTTPMetrics(deps.Registry, s.hub.ClientCount)
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Hub returns the WebSocket hub. Register Hub().HandleEvent with the
// widget store to push changes to clients.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, builds the router and launches the HTTP
// listener in a background goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.Hub().Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
