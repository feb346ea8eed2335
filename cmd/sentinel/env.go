package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"github.com/petrijr/sentinel"
	"github.com/petrijr/sentinel/internal/config"
)

// loadConfig reads the config file and applies flag overrides.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.store != "" {
		cfg.Store.Backend = flags.store
	}
	if flags.dsn != "" {
		cfg.Store.DSN = flags.dsn
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// openStore connects the configured backends. The returned close function
// releases every connection that was opened.
func openStore(ctx context.Context, cfg *config.Config) (sentinel.Store, func() error, error) {
	var (
		store   sentinel.Store
		closers []func() error
	)
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}

	switch cfg.Store.Backend {
	case config.BackendMemory:
		store = sentinel.NewInMemoryStore()

	case config.BackendSQLite, config.BackendPostgres:
		driver := "sqlite"
		if cfg.Store.Backend == config.BackendPostgres {
			driver = "pgx"
		}
		db, err := sql.Open(driver, cfg.Store.DSN)
		if err != nil {
			return sentinel.Store{}, nil, fmt.Errorf("open %s: %w", cfg.Store.Backend, err)
		}
		closers = append(closers, db.Close)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err != nil {
			_ = closeAll()
			return sentinel.Store{}, nil, fmt.Errorf("connect %s: %w", cfg.Store.Backend, err)
		}

		if cfg.Store.Backend == config.BackendPostgres {
			store, err = sentinel.NewPostgresStore(db)
		} else {
			store, err = sentinel.NewSQLiteStore(db)
		}
		if err != nil {
			_ = closeAll()
			return sentinel.Store{}, nil, err
		}

	default:
		return sentinel.Store{}, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		closers = append(closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = closeAll()
			return sentinel.Store{}, nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
		store = sentinel.WithRedisEvents(store, client, cfg.Redis.Prefix)
	}

	return store, closeAll, nil
}

// parseTime accepts RFC 3339 or a bare millisecond timestamp. Empty means now.
func parseTime(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return now, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q: want RFC 3339 or milliseconds since epoch", s)
}
