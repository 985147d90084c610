// Command sessiond serves the session endpoints over HTTP: password and SSO
// sign-in, silent refresh with single-use rotation, logout and metrics.
//
// Usage:
//
//	sessiond -config sessiond.yaml [-env .env] [-store postgres|redis|memory] [-addr :8080]
//
// Environment variables override the file; see loadConfig.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/handlers"
	"github.com/MrEthical07/goSession/internal/scheduler"
	"github.com/MrEthical07/goSession/internal/users"
	"github.com/MrEthical07/goSession/store"
)

// directory is everything sessiond needs from the user table.
type directory interface {
	goSession.UserProvider
	handlers.Accounts
	handlers.IdentityLinker
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "sessiond: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "sessiond.yaml", "path to the YAML config file")
		envFile    = flag.String("env", ".env", "optional dotenv file loaded before the environment overrides")
		storeKind  = flag.String("store", "", "refresh token store: postgres, redis or memory")
		addr       = flag.String("addr", "", "listen address")
	)
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", *envFile, err)
	}

	fc, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *storeKind != "" {
		fc.Store = *storeKind
	}
	if *addr != "" {
		fc.Server.Addr = *addr
	}

	logger := zerolog.New(os.Stdout).
		Level(fc.logLevel()).
		With().Timestamp().Str("service", "sessiond").Logger()

	engineCfg, err := fc.engineConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rdb redis.UniversalClient
	if fc.Redis.Addr != "" {
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{fc.Redis.Addr},
			Password: fc.Redis.Password,
			DB:       fc.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
	}

	dir, tokens, closeDB, err := openBackends(ctx, fc, rdb, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	b := goSession.New().
		WithConfig(engineCfg).
		WithStore(tokens).
		WithUserProvider(dir).
		WithLogger(logger)
	if rdb != nil {
		b = b.WithRedis(rdb)
	}
	engine, err := b.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	cleanup, err := scheduler.New(engine, fc.Cleanup.Interval, fc.Cleanup.Timeout, logger)
	if err != nil {
		return err
	}
	cleanup.Start()
	defer cleanup.Stop()

	handler, err := buildHandler(fc, engine, dir, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fc.Server.Addr,
		Handler:           handler,
		ReadTimeout:       fc.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      fc.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", fc.Server.Addr).Str("store", fc.Store).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), fc.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openBackends selects the user directory and refresh token store. Only the
// memory mode runs without Postgres.
func openBackends(ctx context.Context, fc fileConfig, rdb redis.UniversalClient, logger zerolog.Logger) (directory, store.Store, func(), error) {
	hasher, err := users.NewHasher(users.DefaultHashParams())
	if err != nil {
		return nil, nil, nil, err
	}

	if fc.Store == "memory" {
		dir, err := users.NewMemory(hasher)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Warn().Msg("memory store: sessions and users are lost on restart")
		return dir, store.NewMemory(), func() {}, nil
	}

	db, err := openDB(ctx, fc.Database)
	if err != nil {
		return nil, nil, nil, err
	}
	closeDB := func() { _ = db.Close() }

	if err := store.Migrate(ctx, db); err != nil {
		closeDB()
		return nil, nil, nil, err
	}
	if err := users.Migrate(ctx, db); err != nil {
		closeDB()
		return nil, nil, nil, err
	}
	dir, err := users.New(db, hasher)
	if err != nil {
		closeDB()
		return nil, nil, nil, err
	}

	switch fc.Store {
	case "postgres":
		return dir, store.NewPostgres(db), closeDB, nil
	case "redis":
		if rdb == nil {
			closeDB()
			return nil, nil, nil, errors.New("redis store requires REDIS_ADDR")
		}
		return dir, store.NewRedis(rdb), closeDB, nil
	default:
		closeDB()
		return nil, nil, nil, fmt.Errorf("unknown store %q", fc.Store)
	}
}

func openDB(ctx context.Context, cfg databaseConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("DATABASE_URL required")
	}
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}
