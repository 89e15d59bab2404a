package bootstrap

import (
	"errors"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/funnelbot/core/config"
	coredatabase "github.com/m3rciful/funnelbot/core/database"
)

func noLogger(*coreconfig.Config) error { return nil }

func TestRunWithoutDatabase(t *testing.T) {
	res, err := Run(Options{
		Config:     &coreconfig.Config{},
		LoggerInit: noLogger,
		Connect: func(coredatabase.Config) (*sqlx.DB, error) {
			t.Fatal("connect must not be called without a database")
			return nil, nil
		},
	})
	require.NoError(t, err)
	assert.Nil(t, res.DB)
}

func TestRunStopsWhenConnectFails(t *testing.T) {
	var steps []string
	_, err := Run(Options{
		Config:     &coreconfig.Config{},
		Database:   &coredatabase.Config{Driver: coredatabase.DriverSQLite, Path: "x.db"},
		Migrations: fstest.MapFS{"0001_users.up.sql": {Data: []byte("")}},
		LoggerInit: noLogger,
		Migrate: func(coredatabase.Config, fs.FS) error {
			steps = append(steps, "migrate")
			return nil
		},
		Connect: func(coredatabase.Config) (*sqlx.DB, error) {
			steps = append(steps, "connect")
			return nil, errors.New("offline")
		},
	})
	require.Error(t, err)
	assert.Equal(t, []string{"connect"}, steps)
}

func TestRunRequiresConfig(t *testing.T) {
	_, err := Run(Options{})
	assert.Error(t, err)
}

func TestRunClosesDatabaseWhenMigrationsFail(t *testing.T) {
	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)

	_, err = Run(Options{
		Config:     &coreconfig.Config{},
		Database:   &coredatabase.Config{Driver: coredatabase.DriverSQLite},
		Migrations: fstest.MapFS{},
		LoggerInit: noLogger,
		Connect:    func(coredatabase.Config) (*sqlx.DB, error) { return db, nil },
		Migrate:    func(coredatabase.Config, fs.FS) error { return errors.New("dirty") },
	})
	require.ErrorContains(t, err, "dirty")
	assert.Error(t, db.Ping(), "connection must be closed")
}
