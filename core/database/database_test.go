package database

import (
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigNormalize(t *testing.T) {
	pg := Config{Driver: "Postgres", Host: "db", Name: "funnel", User: "bot", Password: "p@ss"}
	require.NoError(t, pg.Normalize())
	assert.Equal(t, DriverPostgres, pg.Driver)
	assert.Equal(t, "5432", pg.Port)
	assert.Equal(t, "postgres://bot:p%40ss@db:5432/funnel?sslmode=disable", pg.MigrateURL())

	lite := Config{Driver: "sqlite", Path: "/var/lib/funnel/users.db", MaxConnections: 10}
	require.NoError(t, lite.Normalize())
	assert.Equal(t, 1, lite.MaxConnections)
	assert.Equal(t, "sqlite:///var/lib/funnel/users.db", lite.MigrateURL())

	bad := Config{Driver: "mysql"}
	assert.Error(t, bad.Normalize())
}

func TestAppliedBetween(t *testing.T) {
	fsys := fstest.MapFS{
		"0001_users.up.sql":      {Data: []byte("")},
		"0001_users.down.sql":    {Data: []byte("")},
		"0002_user_index.up.sql": {Data: []byte("")},
	}
	files := upFiles(fsys)
	assert.Equal(t, []string{"0001_users.up.sql", "0002_user_index.up.sql"}, files)
	assert.Equal(t, files, appliedBetween(files, 0, 2))
	assert.Equal(t, []string{"0002_user_index.up.sql"}, appliedBetween(files, 1, 2))
	assert.Empty(t, appliedBetween(files, 2, 2))
	assert.Empty(t, appliedBetween([]string{"init.up.sql"}, 0, 9))
}

func TestConnectAndMigrateSQLite(t *testing.T) {
	cfg := Config{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "bot.db")}
	require.NoError(t, cfg.Normalize())
	fsys := fstest.MapFS{
		"0001_notes.up.sql":   {Data: []byte("CREATE TABLE notes (id INTEGER PRIMARY KEY);")},
		"0001_notes.down.sql": {Data: []byte("DROP TABLE notes;")},
	}

	db, err := Connect(cfg)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, RunMigrations(cfg, fsys))
	require.NoError(t, RunMigrations(cfg, fsys), "second run is a no-op")

	var n int
	require.NoError(t, db.Get(&n, "SELECT COUNT(*) FROM notes"))
	assert.Zero(t, n)
	assert.Error(t, RunMigrations(cfg, nil))
}
