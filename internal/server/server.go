package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	gormlogger "gorm.io/gorm/logger"

	"github.com/jackzampolin/promptlab/internal/api"
	"github.com/jackzampolin/promptlab/internal/config"
	"github.com/jackzampolin/promptlab/internal/defra"
	"github.com/jackzampolin/promptlab/internal/evaluate"
	"github.com/jackzampolin/promptlab/internal/home"
	"github.com/jackzampolin/promptlab/internal/providers"
	"github.com/jackzampolin/promptlab/internal/runs"
	"github.com/jackzampolin/promptlab/internal/schema"
	"github.com/jackzampolin/promptlab/internal/server/endpoints"
	"github.com/jackzampolin/promptlab/internal/store"
	"github.com/jackzampolin/promptlab/internal/svcctx"
)

// Server is the promptlab HTTP server.
// With the defra backend it manages the DefraDB container lifecycle,
// starting it on server start and stopping it on server shutdown.
type Server struct {
	httpServer   *http.Server
	settings     config.Config
	defraManager *defra.DockerManager
	defraClient  *defra.Client
	store        store.Store
	llm          *providers.Holder
	llmOverride  bool
	tracker      *runs.Tracker
	configMgr    *config.Manager
	home         *home.Dir
	logger       *slog.Logger

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
	addr    string
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: server.host setting)
	Host string
	// Port is the port to listen on (default: server.port setting)
	Port string
	// Settings overrides the ConfigManager snapshot taken at startup.
	Settings *config.Config
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Home holds the PID file, the sqlite database and DefraDB data.
	// Nil skips the PID lock.
	Home *home.Dir
	// DefraLabels are added to a container the server creates.
	DefraLabels map[string]string
	// LLMClient replaces the client built from the llm settings.
	LLMClient providers.LLMClient
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var settings config.Config
	switch {
	case cfg.Settings != nil:
		settings = *cfg.Settings
	case cfg.ConfigManager != nil:
		settings = *cfg.ConfigManager.Get()
	default:
		settings = *config.DefaultConfig()
	}
	if cfg.Host != "" {
		settings.Server.Host = cfg.Host
	}
	if cfg.Port != "" {
		settings.Server.Port = cfg.Port
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		settings:  settings,
		tracker:   runs.NewTracker(),
		configMgr: cfg.ConfigManager,
		home:      cfg.Home,
		logger:    cfg.Logger,
	}

	if settings.Store.Backend == config.BackendDefra {
		dataPath := ""
		if cfg.Home != nil {
			dataPath = cfg.Home.DataPath()
		}
		dockerCfg := settings.Defra.DockerConfig(dataPath)
		dockerCfg.Labels = cfg.DefraLabels
		defraManager, err := defra.NewDockerManager(dockerCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create defra manager: %w", err)
		}
		s.defraManager = defraManager
	}

	if cfg.LLMClient != nil {
		s.llm = providers.NewHolder(cfg.LLMClient)
		s.llmOverride = true
	} else {
		s.llm = providers.NewHolder(newLLMClient(settings.LLM))
	}

	// Rebuild the LLM client when the llm section changes on disk. A run
	// already streaming keeps the client it started with.
	if cfg.ConfigManager != nil && !s.llmOverride {
		cfg.ConfigManager.OnChange(func(c *config.Config) {
			s.llm.Set(newLLMClient(c.LLM))
			s.logger.Info("llm client reloaded from config")
		})
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{
		DefraManager:    s.defraManager,
		Backend:         settings.Store.Backend,
		SwaggerSpecPath: endpoints.SwaggerSpecPath(),
	}) {
		s.endpointRegistry.Register(ep)
	}

	// Set up HTTP server
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	// No WriteTimeout: POST /api/runs streams for as long as the model does.
	s.httpServer = &http.Server{
		Addr:              settings.Server.Addr(),
		Handler:           s.withServices(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s, nil
}

// newLLMClient returns nil when no API key is configured; runs then fail
// with runs.ErrNoClient until the config provides one.
func newLLMClient(c config.LLMConfig) providers.LLMClient {
	orCfg := c.OpenRouterConfig()
	if orCfg.APIKey == "" {
		return nil
	}
	return providers.NewOpenRouterClient(orCfg)
}

// Start opens the store and serves HTTP.
// It blocks until the context is cancelled or an error occurs.
// If an existing DefraDB container exists, it validates the configuration matches.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if s.home != nil {
		if err := s.home.EnsureExists(); err != nil {
			s.setNotRunning()
			return fmt.Errorf("failed to create home directory: %w", err)
		}
		if err := s.home.AcquirePID(); err != nil {
			s.setNotRunning()
			return err
		}
	}

	st, err := s.openStore(ctx)
	if err != nil {
		s.cleanup()
		return err
	}
	s.store = st

	if s.llm.Client() == nil {
		s.logger.Warn("no LLM API key configured; runs will fail until llm.api_key is set")
	}

	evaluator := evaluate.NewService(st, s.logger)
	executor := runs.NewExecutor(st, s.llm, evaluator, s.tracker, s.logger)

	// Create services struct for context enrichment
	s.mu.Lock()
	s.services = &svcctx.Services{
		Store:       st,
		Evaluator:   evaluator,
		Executor:    executor,
		LLM:         s.llm,
		Models:      providers.NewModelCache(),
		DefraClient: s.defraClient,
		Config:      s.configMgr,
		Logger:      s.logger,
		Home:        s.home,
	}
	s.mu.Unlock()

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		s.cleanup()
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", ln.Addr().String(), "backend", s.settings.Store.Backend)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	s.shutdown()
	return nil
}

// openStore connects the configured backend. For defra this starts the
// container and initializes the collections.
func (s *Server) openStore(ctx context.Context) (store.Store, error) {
	switch s.settings.Store.Backend {
	case config.BackendMemory:
		s.logger.Info("using in-memory store; data is lost on shutdown")
		return store.NewMemoryStore(), nil

	case config.BackendSQL:
		dsn := s.settings.Store.DSN
		if dsn == "" && s.settings.Store.Dialect == store.DialectSQLite && s.home != nil {
			dsn = s.home.DBPath()
		}
		st, err := store.OpenSQL(s.settings.Store.Dialect, dsn, gormlogger.Warn)
		if err != nil {
			return nil, err
		}
		s.logger.Info("SQL store ready", "dialect", s.settings.Store.Dialect)
		return st, nil

	default:
		if err := s.defraManager.ValidateExisting(ctx); err != nil {
			return nil, fmt.Errorf("existing DefraDB container incompatible: %w", err)
		}

		s.logger.Info("starting DefraDB")
		if err := s.defraManager.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to start DefraDB: %w", err)
		}

		client := defra.NewClient(s.defraManager.URL())
		if err := client.HealthCheck(ctx); err != nil {
			return nil, fmt.Errorf("DefraDB health check failed: %w", err)
		}
		s.defraClient = client
		s.logger.Info("DefraDB is ready", "url", s.defraManager.URL())

		s.logger.Info("initializing schemas")
		if err := schema.Initialize(ctx, client, s.logger); err != nil {
			return nil, fmt.Errorf("schema initialization failed: %w", err)
		}
		return store.NewDefraStore(client), nil
	}
}

// shutdown cancels running invocations, stops HTTP, then releases the
// store, DefraDB and the PID file.
func (s *Server) shutdown() {
	s.logger.Info("shutting down server")

	// Cancelled runs are persisted with their partial output before the
	// streams close.
	for _, id := range s.tracker.Active() {
		s.tracker.Cancel(id)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	s.cleanup()
	s.logger.Info("server stopped")
}

// cleanup releases everything Start acquired.
func (s *Server) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("store close error", "error", err)
		}
	}

	if s.defraManager != nil {
		s.logger.Info("stopping DefraDB")
		if err := s.defraManager.Stop(ctx); err != nil {
			s.logger.Error("DefraDB stop error", "error", err)
		}
		if err := s.defraManager.Close(); err != nil {
			s.logger.Error("DefraDB manager close error", "error", err)
		}
	}

	if s.home != nil {
		if err := s.home.ReleasePID(); err != nil {
			s.logger.Error("release PID file", "error", err)
		}
	}

	s.setNotRunning()
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.services = nil
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's listen address. Once Start is listening it is
// the bound address, so port "0" resolves to the real port.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.addr != "" {
		return s.addr
	}
	return s.httpServer.Addr
}

// Store returns the open store, or nil before Start.
func (s *Server) Store() store.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.services == nil {
		return nil
	}
	return s.services.Store
}

// Tracker returns the registry of running invocations.
func (s *Server) Tracker() *runs.Tracker {
	return s.tracker
}

func (s *Server) currentServices() *svcctx.Services {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.services
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc := s.currentServices(); svc != nil {
			ctx = svcctx.WithServices(ctx, svc)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable until the store is open.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.currentServices() == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
