package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"rollcall/internal/api"
	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/config"
	"rollcall/internal/database"
	"rollcall/internal/dispatch"
	"rollcall/internal/websocket"
	pkgdatabase "rollcall/pkg/database"
)

// Application coordinates all system components and owns their
// lifecycle.
type Application struct {
	config     *config.Config
	dbManager  *database.Manager
	session    *attendance.Session
	registry   *websocket.Registry
	httpServer *http.Server
}

// NewApplication initializes components in dependency order:
// database -> auth codec -> session -> registry -> finalizer ->
// dispatcher -> websocket handler -> HTTP server.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if dir := filepath.Dir(cfg.Database.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dbConfig := &pkgdatabase.Config{
		DatabasePath:    cfg.Database.Path,
		MaxConnections:  10,
		ConnMaxLifetime: cfg.Database.Timeout,
		ConnMaxIdleTime: cfg.Database.Timeout / 3,
	}

	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	migrator := pkgdatabase.NewMigrationManager(dbManager.GetDB())
	if err := migrator.ApplyMigrations(); err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	validator := pkgdatabase.NewSchemaValidator(dbManager.GetDB())
	if err := validator.ValidateTablesExist(); err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	codec := auth.NewCodec(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	session := attendance.NewSession()
	registry := websocket.NewRegistry()
	finalizer := attendance.NewFinalizer(session, dbManager, registry)
	dispatcher := dispatch.NewDispatcher(session, finalizer, registry)
	wsHandler := websocket.NewHandler(registry, codec, dispatcher, cfg.WebSocket)

	apiServer := api.NewServer(dbManager, session, codec, registry, wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      apiServer.Handler(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		dbManager:  dbManager,
		session:    session,
		registry:   registry,
		httpServer: httpServer,
	}, nil
}

// Start runs the HTTP server and verifies it came up before returning.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting rollcall server on %s", app.httpServer.Addr)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("Rollcall server started")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts components down in reverse dependency order: HTTP first
// so no new work arrives, then the database.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down rollcall server")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if err := app.dbManager.Close(); err != nil {
		log.Printf("Database shutdown error: %v", err)
	}

	log.Printf("Rollcall server shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Optional .env preload; real environment variables win.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Skipping .env file: %v", err)
	}

	configPath := os.Getenv("ROLLCALL_CONFIG_FILE")
	cfg := config.LoadConfigWithPrecedence(configPath)

	app, err := NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	appErrCh := make(chan error, 1)
	go func() {
		if err := app.Start(ctx); err != nil {
			appErrCh <- err
		}
	}()

	select {
	case err := <-appErrCh:
		return fmt.Errorf("application error: %w", err)
	case sig := <-signalCh:
		log.Printf("Received signal %v, shutting down gracefully", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		return app.Stop(shutdownCtx)
	}
}
