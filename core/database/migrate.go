package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/m3rciful/funnelbot/core/logger"
)

// RunMigrations applies every pending up migration found at the root of
// migrations. Files follow golang-migrate naming: NNNN_title.up.sql.
func RunMigrations(cfg Config, migrations fs.FS) error {
	if migrations == nil {
		return errors.New("migrations source is required")
	}
	src, err := iofs.New(migrations, ".")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, cfg.MigrateURL())
	if err != nil {
		return fmt.Errorf("init migrations for %s: %w", cfg.Target(), err)
	}
	m.Log = migrateLog{}
	defer func() {
		if err := errors.Join(m.Close()); err != nil {
			logger.LogEvent(context.Background(), logger.MIG, slog.LevelWarn, "db.migrate.close",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
		}
	}()

	from, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case dirty:
		return fmt.Errorf("schema version %d is dirty; repair it and force the version", from)
	}

	start := time.Now()
	upErr := m.Up()
	if errors.Is(upErr, migrate.ErrNoChange) {
		upErr = nil
	}
	to, _, _ := m.Version()

	attrs := []slog.Attr{
		slog.String("driver", cfg.Driver),
		slog.Uint64("from_ver", uint64(from)),
		slog.Uint64("to_ver", uint64(to)),
		slog.Int("count", len(appliedBetween(upFiles(migrations), uint64(from), uint64(to)))),
		slog.Duration("duration", time.Since(start)),
	}
	if upErr != nil {
		logger.LogEvent(context.Background(), logger.MIG, slog.LevelError, "db.migrate",
			append(attrs, slog.String("status", "fail"), slog.String("err", upErr.Error()))...)
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	logger.LogEvent(context.Background(), logger.MIG, slog.LevelInfo, "db.migrate",
		append(attrs, slog.String("status", "ok"))...)
	return nil
}

// migrateLog routes golang-migrate's progress lines to debug logs.
type migrateLog struct{}

func (migrateLog) Printf(format string, v ...any) {
	logger.LogEvent(context.Background(), logger.MIG, slog.LevelDebug, "db.migrate.step",
		slog.String("operation", strings.TrimSpace(fmt.Sprintf(format, v...))),
	)
}

func (migrateLog) Verbose() bool {
	return logger.MIG.Enabled(context.Background(), slog.LevelDebug)
}

// upFiles lists the *.up.sql names at the root of fsys.
func upFiles(fsys fs.FS) []string {
	names, _ := fs.Glob(fsys, "*.up.sql")
	return names
}

// appliedBetween returns the files whose version lies in (from, to].
func appliedBetween(files []string, from, to uint64) []string {
	var out []string
	for _, f := range files {
		num, _, _ := strings.Cut(path.Base(f), "_")
		v, err := strconv.ParseUint(num, 10, 64)
		if err == nil && v > from && v <= to {
			out = append(out, f)
		}
	}
	return out
}
