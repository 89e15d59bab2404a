package app

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/m3rciful/funnelbot/core/logger"
	"github.com/m3rciful/funnelbot/internal/config"
	"github.com/m3rciful/funnelbot/internal/instancelock"
	"github.com/m3rciful/funnelbot/internal/storage/jsonfile"
	"github.com/m3rciful/funnelbot/internal/storage/sqlstore"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Telegram.Token = "123:abc"
	cfg.Telegram.AdminID = 42
	cfg.Storage.Path = filepath.Join(dir, "users.json")
	cfg.Lock.Path = filepath.Join(dir, "bot.lock")
	return &cfg
}

func TestBuildWiresJSONStoreAndLock(t *testing.T) {
	cfg := testConfig(t)

	a, err := build(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &jsonfile.Store{}, a.store)
	assert.FileExists(t, cfg.Lock.Path)
	assert.Nil(t, a.postback)

	_, err = build(context.Background(), cfg, nil)
	require.ErrorIs(t, err, instancelock.ErrHeld)

	require.NoError(t, a.Close())
	assert.NoFileExists(t, cfg.Lock.Path)
}

func TestRunOptions(t *testing.T) {
	cfg := testConfig(t)
	cfg.Lock.Backend = config.LockNone
	cfg.Postback.Enabled = true
	cfg.Postback.Listen = "127.0.0.1:0"
	cfg.Postback.Secret = "s3cret"

	a, err := build(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	require.NotNil(t, a.postback)

	opts, err := a.TelegramRunOptions()
	require.NoError(t, err)
	assert.Same(t, &cfg.Config, opts.Config)
	assert.Same(t, a.queue, opts.Dispatcher)
	assert.NotEmpty(t, opts.Routes)
	assert.NotEmpty(t, opts.Middlewares)
	assert.NotNil(t, opts.OnStart)
	assert.NotNil(t, opts.OnStop)

	_, _, ok := opts.Registry.LookupCommand("/broadcast")
	assert.True(t, ok)
}

func TestOpenStoreSQL(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Backend = config.StorageSQL
	cfg.Database.Driver = "sqlite"

	_, err := openStore(cfg, nil)
	require.Error(t, err)

	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	store, err := openStore(cfg, db)
	require.NoError(t, err)
	assert.IsType(t, &sqlstore.Store{}, store)
	require.NoError(t, store.Close())
}

func TestCloseReportsQueueStats(t *testing.T) {
	cfg := testConfig(t)
	cfg.Lock.Backend = config.LockNone

	a, err := build(context.Background(), cfg, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	prev := logger.L
	logger.L = slog.New(slog.NewJSONHandler(&buf, nil))
	t.Cleanup(func() { logger.L = prev })

	require.NoError(t, a.Close())
	assert.Contains(t, buf.String(), `"event":"queue.closed"`)
	assert.Contains(t, buf.String(), `"rejected":0`)
	assert.NotContains(t, buf.String(), "collapsed")
}
