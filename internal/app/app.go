// Package app assembles the funnel bot from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/m3rciful/funnelbot/core/bootstrap"
	"github.com/m3rciful/funnelbot/core/logger"
	tg "github.com/m3rciful/funnelbot/core/telegram"
	tghelpers "github.com/m3rciful/funnelbot/core/telegram/helpers"
	"github.com/m3rciful/funnelbot/core/telegram/sender"
	"github.com/m3rciful/funnelbot/core/telegram/state"
	"github.com/m3rciful/funnelbot/internal/admin"
	"github.com/m3rciful/funnelbot/internal/bot"
	"github.com/m3rciful/funnelbot/internal/config"
	"github.com/m3rciful/funnelbot/internal/flow"
	"github.com/m3rciful/funnelbot/internal/instancelock"
	"github.com/m3rciful/funnelbot/internal/notify"
	"github.com/m3rciful/funnelbot/internal/postback"
	"github.com/m3rciful/funnelbot/internal/storage/jsonfile"
	"github.com/m3rciful/funnelbot/internal/storage/sqlstore"
	"github.com/m3rciful/funnelbot/internal/user"
	"github.com/m3rciful/funnelbot/internal/verify"
)

const (
	shutdownTimeout = 10 * time.Second
	// An admin prompt left unanswered this long stops capturing text.
	dialogTTL = 15 * time.Minute
)

// App owns every long-lived component of the bot.
type App struct {
	cfg *config.Config

	store     user.Store
	lock      instancelock.Lock
	redis     *redis.Client
	queue     *sender.Dispatcher
	transport *notify.TelebotTransport
	out       *notify.Dispatcher
	flow      *flow.Service
	admin     *admin.Service
	handlers  *bot.Handlers
	registry  *tg.Registry
	postback  *postback.Server
}

// Bootstrap initialises logging and the database, takes the instance lock
// and builds the services.
func Bootstrap(cfg *config.Config) (*App, error) {
	opts := bootstrap.Options{Config: &cfg.Config}
	if cfg.Storage.Backend == config.StorageSQL {
		migrations, err := sqlstore.Migrations(cfg.Database.Driver)
		if err != nil {
			return nil, err
		}
		opts.Database = &cfg.Database
		opts.Migrations = migrations
	}
	res, err := bootstrap.Run(opts)
	if err != nil {
		return nil, err
	}

	a, err := build(context.Background(), cfg, res.DB)
	if err != nil {
		if res.DB != nil {
			_ = res.DB.Close()
		}
		return nil, err
	}
	return a, nil
}

func build(ctx context.Context, cfg *config.Config, db *sqlx.DB) (*App, error) {
	a := &App{cfg: cfg}

	store, err := openStore(cfg, db)
	if err != nil {
		return nil, err
	}
	a.store = store

	if err := a.acquireLock(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	policy := sender.Policy{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		BaseDelay:      time.Duration(cfg.Retry.BaseDelayMS) * time.Millisecond,
		AttemptTimeout: time.Duration(cfg.Retry.AttemptTimeoutSeconds) * time.Second,
	}
	a.queue = sender.NewDispatcher(sender.Options{Policy: policy})
	a.transport = notify.NewTelebotTransport()
	a.out = notify.New(a.transport, notify.Options{
		Policy:        policy,
		Pace:          cfg.BroadcastPace(),
		ProgressEvery: cfg.Broadcast.ProgressEvery,
		MaxCauses:     cfg.Broadcast.MaxCauses,
		Queue:         a.queue,
	})

	a.flow = flow.New(store, a.out, verify.New(cfg.Verify.BaseURL, cfg.VerifyTimeout()), flow.Config{
		AdminID: cfg.Telegram.AdminID,
		Links: flow.Links{
			Referral: cfg.Links.Referral,
			WebApp:   cfg.Links.WebApp,
			Support:  cfg.Links.Support,
			HelpURL:  cfg.Links.HelpURL,
			Promo:    cfg.Links.Promo,
		},
		Images: flow.Images{
			Main:     cfg.Images.Main,
			Register: cfg.Images.Register,
			Deposit:  cfg.Images.Deposit,
		},
		RequireRegistration: cfg.Verify.RequireRegistration,
		RequireDeposit:      cfg.Verify.RequireDeposit,
	})
	a.admin = admin.New(cfg.Telegram.AdminID, store, a.flow, a.out)

	a.registry = tg.NewRegistry()
	a.handlers = bot.New(a.flow, a.admin, a.out, state.NewMemoryManager(state.WithTTL(dialogTTL)))
	if err := a.handlers.Register(a.registry); err != nil {
		_ = a.Close()
		return nil, err
	}

	if cfg.Postback.Enabled {
		a.postback = postback.NewServer(cfg.Postback.Listen, a.flow, cfg.Postback.Secret)
	}

	logger.Info(ctx, logger.CompApp, "app.built",
		slog.String("status", "ok"),
		slog.String("storage", cfg.Storage.Backend),
		slog.String("lock", cfg.Lock.Backend),
		slog.Bool("verify", cfg.Verify.BaseURL != ""),
		slog.Bool("postback", cfg.Postback.Enabled),
	)
	return a, nil
}

func openStore(cfg *config.Config, db *sqlx.DB) (user.Store, error) {
	switch cfg.Storage.Backend {
	case config.StorageSQL:
		if db == nil {
			return nil, errors.New("app: sql storage without a database connection")
		}
		return sqlstore.New(db, cfg.Database.Driver), nil
	default:
		return jsonfile.Open(cfg.Storage.Path)
	}
}

func (a *App) acquireLock(ctx context.Context) error {
	switch a.cfg.Lock.Backend {
	case config.LockFile:
		l, err := instancelock.AcquireFile(ctx, a.cfg.Lock.Path)
		if err != nil {
			return fmt.Errorf("app: instance lock %s: %w", a.cfg.Lock.Path, err)
		}
		a.lock = l
	case config.LockRedis:
		client, err := instancelock.NewRedisClient(ctx, a.cfg.Lock.RedisURL)
		if err != nil {
			return err
		}
		l, err := instancelock.AcquireRedis(ctx, client, a.cfg.Lock.Key, a.cfg.LockTTL())
		if err != nil {
			_ = client.Close()
			return fmt.Errorf("app: instance lock %s: %w", a.cfg.Lock.Key, err)
		}
		a.redis = client
		a.lock = l
	}
	return nil
}

// TelegramRunOptions wires the handlers into the shared runtime.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	return tg.RunOptions{
		Config:      &a.cfg.Config,
		Registry:    a.registry,
		Dispatcher:  a.queue,
		Middlewares: tg.DefaultMiddlewares(&a.cfg.Config, nil, a.handlers.Apologize),
		Routes:      a.handlers.Routes(a.registry),
		OnStart:     a.start,
		OnStop:      a.stop,
	}, nil
}

func (a *App) start(ctx context.Context, rt tg.Runtime) error {
	a.transport.Bind(rt.Bot)
	tghelpers.SetDispatcher(rt.Dispatcher)
	if a.postback != nil {
		if err := a.postback.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) stop(ctx context.Context, _ tg.Runtime) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var errs []error
	if a.postback != nil {
		errs = append(errs, a.postback.Shutdown(ctx))
	}
	a.admin.Close()
	tghelpers.SetDispatcher(nil)
	return errors.Join(errs...)
}

// Close stops the outbound queue and releases the lock and the store.
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(logger.Background(), shutdownTimeout)
	defer cancel()

	if a.queue != nil {
		a.queue.Close()
		st := a.queue.Stats()
		logger.Info(ctx, logger.CompApp, "queue.closed",
			slog.Uint64("sent", st.Sent),
			slog.Uint64("failed", st.Failed),
			slog.Uint64("rejected", st.Rejected),
		)
	}
	var errs []error
	if a.lock != nil {
		errs = append(errs, a.lock.Release(ctx))
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if err := errors.Join(errs...); err != nil {
		logger.Error(ctx, logger.CompApp, "app.close",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return err
	}
	return nil
}
