// Package app wires configuration, storage and background workers into a
// running Luggo process.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"luggo/internal/chat"
	"luggo/internal/config"
	"luggo/internal/db"
	"luggo/internal/dispatch"
	"luggo/internal/engine"
	"luggo/internal/jobs"
	"luggo/internal/migrate"
	"luggo/internal/notify"
	"luggo/internal/server"
)

// Override keys read from viper (flags or LUGGO_* environment variables).
const (
	KeyAddr      = "addr"
	KeyBasePath  = "base-path"
	KeyDatabase  = "db"
	KeyJWTSecret = "jwt-secret"
	KeyLogLevel  = "log-level"
	KeyLogFormat = "log-format"
)

// LoadEnv reads a dotenv file into the process environment. A missing file is
// not an error; variables already set win.
func LoadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// LoadConfig reads luggo.yml at path and applies overrides set in v.
func LoadConfig(path string, v *viper.Viper) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return cfg, nil
	}
	set := func(key string, dst *string) {
		if s := strings.TrimSpace(v.GetString(key)); s != "" {
			*dst = s
		}
	}
	set(KeyAddr, &cfg.Server.Addr)
	set(KeyBasePath, &cfg.Server.BasePath)
	set(KeyDatabase, &cfg.Database.Path)
	set(KeyJWTSecret, &cfg.Auth.JWTSecret)
	set(KeyLogLevel, &cfg.Log.Level)
	set(KeyLogFormat, &cfg.Log.Format)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewLogger builds the process logger from the log section.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	var level slog.Level
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// App holds the long-lived pieces of a process.
type App struct {
	Config *config.Config
	DB     *sql.DB
	Logger *slog.Logger
	// Engine publishes synchronously to the notification service. Serve
	// switches the published copy to the background queue.
	Engine engine.Engine
	Hub    *chat.Hub
}

// Open connects the database, applies migrations and builds the engine.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := db.Open(db.Config{Path: cfg.Database.Path})
	if err != nil {
		return nil, err
	}
	applied, err := migrate.Migrate(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if applied > 0 {
		logger.Info("applied migrations", "count", applied)
	}
	hub := chat.NewHub(logger)
	e := engine.New(conn, cfg)
	e.Logger = logger
	e.Publisher = notify.Service{Store: e.Repo, Pusher: hub, Logger: logger}
	return &App{Config: cfg, DB: conn, Logger: logger, Engine: e, Hub: hub}, nil
}

func (a *App) Close() error {
	a.Hub.Close()
	return a.DB.Close()
}

// Handler builds the HTTP API around e.
func (a *App) Handler(e engine.Engine) (http.Handler, error) {
	if strings.TrimSpace(a.Config.Auth.JWTSecret) == "" {
		return nil, errors.New("auth.jwt_secret is required (set LUGGO_JWT_SECRET)")
	}
	ttl, err := a.Config.TokenTTL()
	if err != nil {
		return nil, err
	}
	return server.New(server.Config{
		Engine:   e,
		BasePath: a.Config.Server.BasePath,
		Auth:     server.AuthConfig{JWTSecret: a.Config.Auth.JWTSecret, TokenTTL: ttl, Logger: a.Logger},
		Hub:      a.Hub,
		Logger:   a.Logger,
	})
}

// Serve runs the HTTP API with the notification queue, bot dispatcher and
// subscription expiry until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	interval, err := a.Config.ExpiryInterval()
	if err != nil {
		return err
	}
	svc := notify.Service{Store: a.Engine.Repo, Pusher: a.Hub, Logger: a.Logger}
	queue := notify.NewDispatcher(svc, a.Config.Notifications.QueueSize, a.Logger)
	e := a.Engine
	e.Publisher = queue
	handler, err := a.Handler(e)
	if err != nil {
		return err
	}
	bots := dispatch.New(e.Repo, a.Config.Webhooks, a.Logger)
	bots.Prime(ctx)
	expiry := jobs.Expiry{Expirer: e, Interval: interval, Logger: a.Logger}
	srv := &http.Server{Addr: a.Config.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return queue.Run(gctx) })
	g.Go(func() error { return bots.Run(gctx) })
	g.Go(func() error { return expiry.Run(gctx) })
	g.Go(func() error {
		a.Logger.Info("serving Luggo API", "addr", a.Config.Server.Addr, "base_path", a.Config.Server.BasePath, "webhooks", bots.Enabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
