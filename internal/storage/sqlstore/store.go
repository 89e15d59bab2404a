// Package sqlstore keeps user records in PostgreSQL or SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	coredatabase "github.com/m3rciful/funnelbot/core/database"
	"github.com/m3rciful/funnelbot/core/logger"
	"github.com/m3rciful/funnelbot/internal/user"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFiles embed.FS

// Migrations returns the migration set for driver, rooted at the directory
// holding the *.sql files.
func Migrations(driver string) (fs.FS, error) {
	switch driver {
	case coredatabase.DriverPostgres, coredatabase.DriverSQLite:
		return fs.Sub(migrationFiles, "migrations/"+driver)
	}
	return nil, fmt.Errorf("sqlstore: no migrations for driver %q", driver)
}

const table = "users"

var columns = []string{
	"id",
	"username",
	"language",
	"registered",
	"registration_time",
	"deposited",
	"deposit_time",
	"country",
	"amount",
	"admin_approved",
	"last_signal_message_id",
	"deposit_message_id",
}

type row struct {
	ID                  int64               `db:"id"`
	Username            string              `db:"username"`
	Language            string              `db:"language"`
	Registered          bool                `db:"registered"`
	RegistrationTime    sql.NullTime        `db:"registration_time"`
	Deposited           bool                `db:"deposited"`
	DepositTime         sql.NullTime        `db:"deposit_time"`
	Country             string              `db:"country"`
	Amount              decimal.NullDecimal `db:"amount"`
	AdminApproved       bool                `db:"admin_approved"`
	LastSignalMessageID int                 `db:"last_signal_message_id"`
	DepositMessageID    int                 `db:"deposit_message_id"`
}

func (r row) record() user.Record {
	rec := user.Record{
		ID:                  r.ID,
		Username:            r.Username,
		Language:            user.ParseLang(r.Language),
		Registered:          r.Registered,
		Deposited:           r.Deposited,
		Country:             r.Country,
		Amount:              r.Amount,
		AdminApproved:       r.AdminApproved,
		LastSignalMessageID: r.LastSignalMessageID,
		DepositMessageID:    r.DepositMessageID,
	}
	if r.RegistrationTime.Valid {
		t := r.RegistrationTime.Time.UTC()
		rec.RegistrationTime = &t
	}
	if r.DepositTime.Valid {
		t := r.DepositTime.Time.UTC()
		rec.DepositTime = &t
	}
	return rec
}

func values(r user.Record) map[string]any {
	return map[string]any{
		"id":                     r.ID,
		"username":               r.Username,
		"language":               string(r.Lang()),
		"registered":             r.Registered,
		"registration_time":      nullTime(r.RegistrationTime),
		"deposited":              r.Deposited,
		"deposit_time":           nullTime(r.DepositTime),
		"country":                r.Country,
		"amount":                 r.Amount,
		"admin_approved":         r.AdminApproved,
		"last_signal_message_id": r.LastSignalMessageID,
		"deposit_message_id":     r.DepositMessageID,
	}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// Store is a user.Store over a sqlx connection.
type Store struct {
	db     *sqlx.DB
	driver string
	sb     squirrel.StatementBuilderType
	// mu serializes Upsert inside this process; SQLite has no row locks.
	mu sync.Mutex
}

var _ user.Store = (*Store)(nil)

// New wraps an open connection. driver selects placeholders and locking.
func New(db *sqlx.DB, driver string) *Store {
	var format squirrel.PlaceholderFormat = squirrel.Question
	if driver == coredatabase.DriverPostgres {
		format = squirrel.Dollar
	}
	return &Store{
		db:     db,
		driver: driver,
		sb:     squirrel.StatementBuilder.PlaceholderFormat(format),
	}
}

func (s *Store) Get(ctx context.Context, id int64) (user.Record, bool) {
	query, args, err := s.sb.Select(columns...).From(table).Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		s.readFailed(ctx, "get", err)
		return user.Record{}, false
	}
	var r row
	if err := s.db.GetContext(ctx, &r, query, args...); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.readFailed(ctx, "get", err)
		}
		return user.Record{}, false
	}
	return r.record(), true
}

func (s *Store) Upsert(ctx context.Context, id int64, mutate user.Mutator) (user.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out user.Record
	err := s.transaction(ctx, func(tx *sqlx.Tx) error {
		sel := s.sb.Select(columns...).From(table).Where(squirrel.Eq{"id": id})
		if s.driver == coredatabase.DriverPostgres {
			sel = sel.Suffix("FOR UPDATE")
		}
		query, args, err := sel.ToSql()
		if err != nil {
			return fmt.Errorf("build select: %w", err)
		}

		current, found := user.New(id), false
		var r row
		switch err := tx.GetContext(ctx, &r, query, args...); {
		case err == nil:
			current, found = r.record(), true
		case errors.Is(err, sql.ErrNoRows):
		default:
			return fmt.Errorf("select user: %w", err)
		}

		next := current
		if mutate != nil {
			mutate(&next)
		}
		next.ID = id
		next.Normalize()
		out = next
		if found && next.Equal(current) {
			return nil
		}

		query, args, err = s.sb.Insert(table).
			SetMap(values(next)).
			Suffix(upsertSuffix()).
			ToSql()
		if err != nil {
			return fmt.Errorf("build upsert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert user: %w", err)
		}
		return nil
	})
	if err != nil {
		logger.Error(ctx, logger.CompStore, "store.write",
			slog.String("status", "fail"),
			slog.String("driver", s.driver),
			slog.Int64("target_id", id),
			slog.String("err", err.Error()),
		)
		return user.Record{}, err
	}
	return out, nil
}

// upsertSuffix is accepted by both PostgreSQL and SQLite 3.24+.
func upsertSuffix() string {
	sets := make([]string, 0, len(columns)-1)
	for _, c := range columns[1:] {
		sets = append(sets, c+" = excluded."+c)
	}
	return "ON CONFLICT (id) DO UPDATE SET " + strings.Join(sets, ", ")
}

func (s *Store) ListIDs(ctx context.Context) []int64 {
	query, args, err := s.sb.Select("id").From(table).OrderBy("id").ToSql()
	if err != nil {
		s.readFailed(ctx, "list_ids", err)
		return nil
	}
	var ids []int64
	if err := s.db.SelectContext(ctx, &ids, query, args...); err != nil {
		s.readFailed(ctx, "list_ids", err)
		return nil
	}
	return ids
}

// CountWhere evaluates pred in process; predicates are plain Go funcs.
func (s *Store) CountWhere(ctx context.Context, pred user.Predicate) int {
	n := 0
	for _, r := range s.List(ctx) {
		if pred == nil || pred(r) {
			n++
		}
	}
	return n
}

func (s *Store) List(ctx context.Context) []user.Record {
	query, args, err := s.sb.Select(columns...).From(table).OrderBy("id").ToSql()
	if err != nil {
		s.readFailed(ctx, "list", err)
		return nil
	}
	var rows []row
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		s.readFailed(ctx, "list", err)
		return nil
	}
	out := make([]user.Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record())
	}
	return out
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) transaction(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	return tx.Commit()
}

func (s *Store) readFailed(ctx context.Context, op string, err error) {
	logger.Warn(ctx, logger.CompStore, "store.read",
		slog.String("status", "fail"),
		slog.String("driver", s.driver),
		slog.String("op", op),
		slog.String("err", err.Error()),
	)
}
