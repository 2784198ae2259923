package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	_ "github.com/lib/pq"

	"scholarmind/portal/internal/audit"
	"scholarmind/portal/internal/auth"
	"scholarmind/portal/internal/config"
	"scholarmind/portal/internal/guard"
	"scholarmind/portal/internal/httpserver"
	"scholarmind/portal/internal/kv"
	"scholarmind/portal/internal/library"
	"scholarmind/portal/internal/observability"
)

type App struct {
	cfg     config.Config
	log     *slog.Logger
	clients *auth.Directory
	closer  io.Closer
	server  *httpserver.Server
}

func New(cfg config.Config) (*App, error) {
	logger := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)
	warnInsecureDefaults(logger, cfg)

	backend, closer, err := OpenBackend(cfg.Storage)
	if err != nil {
		return nil, err
	}
	closeBackend := func() {
		if closer != nil {
			_ = closer.Close()
		}
	}

	scheme, err := auth.SchemeByName(cfg.Auth.PasswordScheme, cfg.Auth.BcryptCost)
	if err != nil {
		closeBackend()
		return nil, fmt.Errorf("password scheme: %w", err)
	}

	clients, err := auth.NewDirectory(backend, auth.Options{Scheme: scheme, Logger: logger})
	if err != nil {
		closeBackend()
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	logger.Info("session storage ready",
		"driver", cfg.Storage.Driver,
		"password_scheme", scheme.Name(),
		"users", len(clients.Roster()),
	)

	server := httpserver.New(cfg.HTTP, httpserver.Deps{
		Clients:         clients,
		Catalogue:       library.Default(),
		Rules:           guard.NewRules(cfg.Guard.LoginPath, cfg.Guard.ProtectedPaths),
		Audit:           audit.NewLogger(cfg.AuditLogFile),
		Logger:          logger,
		Cookie:          cfg.Auth,
		FrontendDistDir: cfg.FrontendDistDir,
	})

	return &App{
		cfg:     cfg,
		log:     logger,
		clients: clients,
		closer:  closer,
		server:  server,
	}, nil
}

func warnInsecureDefaults(logger *slog.Logger, cfg config.Config) {
	if cfg.Auth.UsesDefaultSecret() {
		logger.Warn("client cookies signed with the built-in secret; set AUTH_COOKIE_SECRET",
			"cookie", cfg.Auth.CookieName)
	}
}

// OpenBackend opens the storage medium named by cfg.Driver. The closer is nil
// for drivers that hold no resources.
func OpenBackend(cfg config.StorageConfig) (kv.Backend, io.Closer, error) {
	switch cfg.Driver {
	case "memory":
		return kv.NewMemory(), nil, nil
	case "file":
		f, err := kv.NewFile(cfg.StateFile)
		if err != nil {
			return nil, nil, fmt.Errorf("open state file: %w", err)
		}
		return f, nil, nil
	case "sqlite":
		s, err := kv.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case "postgres":
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("ping database: %w", err)
		}
		p, err := kv.NewPostgres(db)
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("create postgres storage: %w", err)
		}
		return p, db, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func (a *App) Run(ctx context.Context) error {
	defer func() {
		a.clients.Close()
		if a.closer != nil {
			_ = a.closer.Close()
		}
	}()

	errCh := make(chan error, 1)

	go func() {
		a.log.Info("http server starting", "addr", a.cfg.HTTP.Addr)
		errCh <- a.server.Start()
	}()

	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server exited: %w", err)
	}
}
