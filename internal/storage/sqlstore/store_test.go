package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coredatabase "github.com/m3rciful/funnelbot/core/database"
	"github.com/m3rciful/funnelbot/internal/user"
	"github.com/m3rciful/funnelbot/internal/user/usertest"
)

func openSQLite(t *testing.T) *Store {
	t.Helper()
	cfg := coredatabase.Config{
		Driver: coredatabase.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "users.db"),
	}
	require.NoError(t, cfg.Normalize())

	migrations, err := Migrations(cfg.Driver)
	require.NoError(t, err)

	db, err := coredatabase.Connect(cfg)
	require.NoError(t, err)
	require.NoError(t, coredatabase.RunMigrations(cfg, migrations))

	s := New(db, cfg.Driver)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreContract(t *testing.T) {
	usertest.RunStoreSuite(t, func(t *testing.T) user.Store { return openSQLite(t) })
}

func TestMigrationsPerDriver(t *testing.T) {
	for _, driver := range []string{coredatabase.DriverPostgres, coredatabase.DriverSQLite} {
		fsys, err := Migrations(driver)
		require.NoError(t, err, driver)
		_, err = fsys.Open("0001_users.up.sql")
		assert.NoError(t, err, driver)
	}

	_, err := Migrations("mysql")
	assert.Error(t, err)
}

func TestPlaceholderFormat(t *testing.T) {
	pg, _, err := New(nil, coredatabase.DriverPostgres).sb.Select("id").From(table).Where("id = ?", 1).ToSql()
	require.NoError(t, err)
	assert.Contains(t, pg, "$1")

	lite, _, err := New(nil, coredatabase.DriverSQLite).sb.Select("id").From(table).Where("id = ?", 1).ToSql()
	require.NoError(t, err)
	assert.Contains(t, lite, "?")
}

func TestUpsertSuffixSkipsKey(t *testing.T) {
	suffix := upsertSuffix()
	assert.Contains(t, suffix, "ON CONFLICT (id) DO UPDATE SET username = excluded.username")
	assert.NotContains(t, suffix, "id = excluded.id,")
}

func TestReadsFailOpenAfterClose(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	_, err := s.Upsert(ctx, 1, nil)
	require.NoError(t, err)
	require.NoError(t, s.db.Close())

	_, ok := s.Get(ctx, 1)
	assert.False(t, ok)
	assert.Nil(t, s.ListIDs(ctx))
	assert.Zero(t, s.CountWhere(ctx, user.All))
}
