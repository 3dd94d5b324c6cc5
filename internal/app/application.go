package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"lecturehall/internal/ai"
	"lecturehall/internal/api"
	"lecturehall/internal/auth"
	"lecturehall/internal/config"
	"lecturehall/internal/database"
	"lecturehall/internal/hub"
	"lecturehall/internal/lecture"
	"lecturehall/internal/notes"
	"lecturehall/internal/router"
	"lecturehall/internal/store/memory"
	"lecturehall/internal/websocket"
	pkgdatabase "lecturehall/pkg/database"
	"lecturehall/pkg/interfaces"
)

// Option customizes an Application before it is wired
type Option func(*options)

type options struct {
	generator ai.Generator
	store     interfaces.Store
	address   string
}

// WithGenerator sets the model used for lecture notes
func WithGenerator(g ai.Generator) Option {
	return func(o *options) { o.generator = g }
}

// WithStore replaces the configured store; the application takes ownership of it
func WithStore(s interfaces.Store) Option {
	return func(o *options) { o.store = s }
}

// WithAddress overrides the configured listen address, e.g. "127.0.0.1:0"
func WithAddress(addr string) Option {
	return func(o *options) { o.address = addr }
}

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config     *config.Config
	logger     *zap.Logger
	store      interfaces.Store
	lectures   *lecture.Manager
	registry   *websocket.Registry
	messageHub *hub.Hub
	pipeline   *notes.Pipeline
	router     *router.Router
	apiServer  *api.Server
	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener
	cancel   context.CancelFunc
}

// OpenStore opens the store named by the database configuration
func OpenStore(cfg *config.DatabaseConfig, logger *zap.Logger) (interfaces.SeedableStore, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dbConfig := pkgdatabase.DefaultConfig()
		dbConfig.DatabasePath = cfg.Path
		dbConfig.WriteTimeout = cfg.Timeout
		dbConfig.ConnMaxLifetime = cfg.Timeout
		dbConfig.ConnMaxIdleTime = cfg.Timeout / 3
		manager, err := database.Open(dbConfig, logger)
		if err != nil {
			return nil, err
		}
		return manager, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Store → Lectures → Registry → Hub → Notes → Router → API → HTTP
func NewApplication(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	// STEP 1: Store (foundation layer)
	store := o.store
	if store == nil {
		opened, err := OpenStore(cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		store = opened
	}

	// STEP 2: Lecture cache and connection registry
	lectures := lecture.NewManager(store, logger)
	registry := websocket.NewRegistry()

	// STEP 3: Hub delivers notes and departures
	messageHub := hub.NewHub(registry, logger)

	// STEP 4: Notes pipeline publishes through the hub
	pipeline := notes.NewPipeline(store, o.generator, messageHub, notes.Config{
		Instructions:   cfg.AI.Instructions,
		MaxBufferChars: cfg.AI.MaxBufferChars,
	}, logger)

	// STEP 5: Optional token issuer
	var tokens *auth.TokenIssuer
	if cfg.Auth.Enabled() {
		issuer, err := NewTokenIssuer(cfg.Auth)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		tokens = issuer
	}

	// STEP 6: Router
	deps := router.Dependencies{
		Registry:   registry,
		Store:      store,
		Lectures:   lectures,
		Departures: messageHub,
		Notes:      pipeline,
	}
	if tokens != nil {
		deps.Tokens = tokens
	}
	routerConfig := router.DefaultConfig()
	routerConfig.RateLimit = cfg.Chat.RateLimit
	messageRouter, err := router.NewRouter(deps, routerConfig, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create router: %w", err)
	}

	// ARCHITECTURAL DISCOVERY: Per-room state is released by the hub after the
	// departure that emptied the room has been broadcast
	messageHub.OnRoomEmpty(messageRouter.RoomEmptied)
	messageHub.OnRoomEmpty(pipeline.Drop)

	// STEP 7: WebSocket transport and API
	wsHandler := websocket.NewHandler(registry, messageRouter, websocket.HandlerConfig{
		PingInterval:   cfg.WebSocket.PingInterval,
		ReadTimeout:    cfg.WebSocket.ReadTimeout,
		WriteTimeout:   cfg.WebSocket.WriteTimeout,
		SendBuffer:     cfg.WebSocket.BufferSize,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		CheckOrigin:    checkOrigin(cfg.HTTP.AllowedOrigins),
	}, logger)

	apiDeps := api.Dependencies{
		Store:          store,
		Registry:       registry,
		Lectures:       lectures,
		Recordings:     messageRouter,
		WebSocket:      http.HandlerFunc(wsHandler.HandleWebSocket),
		ICEServers:     cfg.WebRTC.ICEServers,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Logger:         logger,
	}
	if tokens != nil {
		apiDeps.Tokens = tokens
	}
	apiServer, err := api.NewServer(apiDeps)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create API server: %w", err)
	}

	// STEP 8: HTTP server. WriteTimeout is left to the WebSocket writer since
	// upgraded connections outlive any request deadline.
	addr := cfg.HTTP.Address()
	if o.address != "" {
		addr = o.address
	}
	httpServer := &http.Server{
		Addr:        addr,
		Handler:     apiServer,
		ReadTimeout: cfg.HTTP.ReadTimeout,
	}

	return &Application{
		config:     cfg,
		logger:     logger.With(zap.String("module", "app")),
		store:      store,
		lectures:   lectures,
		registry:   registry,
		messageHub: messageHub,
		pipeline:   pipeline,
		router:     messageRouter,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// NewTokenIssuer builds the issuer described by the auth configuration
func NewTokenIssuer(cfg *config.AuthConfig) (*auth.TokenIssuer, error) {
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(cfg.SigningSecret),
		Issuer:        cfg.Issuer,
		Audience:      cfg.Audience,
		TokenTTL:      cfg.TokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create token issuer: %w", err)
	}
	return issuer, nil
}

// checkOrigin mirrors the CORS policy: an empty list or "*" allows any origin
func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Start begins application execution
// Startup coordination ensures all components ready before serving
// Hub starts first to handle departures, then HTTP server accepts connections
func (app *Application) Start(ctx context.Context) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	if app.listener != nil {
		return errors.New("application already started")
	}

	// STEP 1: Start hub (background delivery)
	runCtx, cancel := context.WithCancel(context.Background())
	if err := app.messageHub.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("failed to start hub: %w", err)
	}
	go app.router.Run(runCtx)

	// STEP 2: Bind the listener so address errors surface here
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", app.httpServer.Addr)
	if err != nil {
		cancel()
		_ = app.messageHub.Stop()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = listener
	app.cancel = cancel

	// STEP 3: Serve
	go func() {
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	app.logger.Info("lecturehall started",
		zap.String("address", listener.Addr().String()),
		zap.String("store", app.config.Database.Driver),
		zap.Bool("tokens", app.config.Auth.Enabled()),
		zap.Bool("notes", app.pipeline.Enabled()))
	if !app.pipeline.Enabled() {
		app.logger.Warn("lecture notes disabled: no text generator supplied",
			zap.String("hint", "build the server with app.WithGenerator to enable notes"))
	}
	return nil
}

// Stop gracefully shuts down the application
// Shutdown coordination ensures proper resource cleanup
// Reverse dependency order: HTTP → WebSockets → Hub → Notes → Store
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Info("shutting down lecturehall")

	// STEP 1: Stop accepting new connections
	if err := app.httpServer.Shutdown(ctx); err != nil {
		app.logger.Warn("HTTP server shutdown error", zap.Error(err))
	}

	// STEP 2: Hijacked WebSockets are not closed by Shutdown
	app.registry.CloseAll()

	// STEP 3: Stop delivery; late departures are broadcast inline
	if err := app.messageHub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		app.logger.Warn("hub shutdown error", zap.Error(err))
	}

	// STEP 4: Cancel note generation and the router janitor
	app.pipeline.Close()
	app.mu.Lock()
	if app.cancel != nil {
		app.cancel()
	}
	app.mu.Unlock()

	// STEP 5: Close the store
	if err := app.store.Close(); err != nil {
		app.logger.Warn("store shutdown error", zap.Error(err))
	}

	app.logger.Info("lecturehall shutdown complete")
	return nil
}

// GetAddr returns the bound address once started, otherwise the configured one
func (app *Application) GetAddr() string {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Store returns the application's store
func (app *Application) Store() interfaces.Store {
	return app.store
}

// Registry returns the live connection registry
func (app *Application) Registry() *websocket.Registry {
	return app.registry
}

// Handler returns the HTTP handler serving the API and /ws
func (app *Application) Handler() http.Handler {
	return app.apiServer
}
