// Package bootstrap brings up the infrastructure a bot needs before any
// update is handled: the logger first, then the optional SQL database.
package bootstrap

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/funnelbot/core/config"
	coredatabase "github.com/m3rciful/funnelbot/core/database"
	"github.com/m3rciful/funnelbot/core/logger"
)

// Options select what to initialise. Database nil means the bot keeps its
// data elsewhere and no SQL step runs. The func fields replace the real
// implementations in tests.
type Options struct {
	Config     *coreconfig.Config
	Database   *coredatabase.Config
	Migrations fs.FS

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config, fs.FS) error
}

// Result carries what Run opened. DB is nil without a database.
type Result struct {
	DB *sqlx.DB
}

// Run initialises the logger, then connects and migrates when a database
// is configured. The connection is closed again if migrations fail.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	opts.defaults()

	if err := opts.LoggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger: %w", err)
	}
	res := &Result{}
	if opts.Database == nil {
		return res, nil
	}

	start := time.Now()
	db, err := opts.Connect(*opts.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database: %w", err)
	}
	if opts.Migrations != nil {
		if err := opts.Migrate(*opts.Database, opts.Migrations); err != nil {
			return nil, errors.Join(fmt.Errorf("bootstrap: migrations: %w", err), db.Close())
		}
	}
	res.DB = db
	logger.TWire.Info("database ready",
		slog.String("event", "bootstrap.db"),
		slog.String("status", "ok"),
		slog.String("driver", opts.Database.Driver),
		slog.Duration("duration", time.Since(start)),
	)
	return res, nil
}

func (o *Options) defaults() {
	if o.LoggerInit == nil {
		o.LoggerInit = logger.InitLogger
	}
	if o.Connect == nil {
		o.Connect = coredatabase.Connect
	}
	if o.Migrate == nil {
		o.Migrate = coredatabase.RunMigrations
	}
}
