package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/m3rciful/funnelbot/core/logger"
)

const (
	connectTimeout = 5 * time.Second
	// A postgres container started alongside the bot may need a while.
	postgresStartup = 30 * time.Second
	pingBackoff     = 2 * time.Second
)

// Connect opens the configured database and pings it.
func Connect(cfg Config) (*sqlx.DB, error) {
	limit := connectTimeout
	if cfg.Driver == DriverPostgres {
		limit += postgresStartup
	}
	ctx, cancel := context.WithTimeout(context.Background(), limit)
	defer cancel()
	return ConnectContext(ctx, cfg)
}

// ConnectContext opens the database, sizes the pool and pings until the
// server answers or ctx ends. Only postgres pings are retried.
func ConnectContext(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	start := time.Now()
	db, err := sqlx.Open(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxConnections)
	db.SetConnMaxIdleTime(5 * time.Minute)

	attempts, err := ping(ctx, db, cfg.Driver == DriverPostgres)
	attrs := []slog.Attr{
		slog.String("driver", cfg.Driver),
		slog.String("db", cfg.Target()),
		slog.Int("attempts", attempts),
		slog.Duration("duration", time.Since(start)),
	}
	if err != nil {
		_ = db.Close()
		logger.LogEvent(ctx, logger.DB, slog.LevelError, "db.connect",
			append(attrs, slog.String("status", "fail"), slog.String("err", err.Error()))...)
		return nil, fmt.Errorf("db connect %s: %w", cfg.Target(), err)
	}
	logger.LogEvent(ctx, logger.DB, slog.LevelInfo, "db.connect",
		append(attrs, slog.String("status", "ok"), slog.Int("count", cfg.MaxConnections))...)
	return db, nil
}

func ping(ctx context.Context, db *sqlx.DB, retry bool) (int, error) {
	for attempt := 1; ; attempt++ {
		err := db.PingContext(ctx)
		if err == nil || !retry {
			return attempt, err
		}
		logger.LogEvent(ctx, logger.DB, slog.LevelDebug, "db.wait",
			slog.String("status", "retry"),
			slog.Int("attempt", attempt),
			slog.String("err", err.Error()),
		)
		select {
		case <-ctx.Done():
			return attempt, fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		case <-time.After(pingBackoff):
		}
	}
}
