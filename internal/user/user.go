// Package user defines the funnel user record and the store contract.
package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Lang is a supported interface language.
type Lang string

const (
	LangEN Lang = "en"
	LangHI Lang = "hi"
)

// ParseLang maps a language code to a supported Lang, defaulting to English.
func ParseLang(code string) Lang {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "hi", "hi-in":
		return LangHI
	}
	return LangEN
}

// ErrNotFound is returned when an operation needs an existing record.
var ErrNotFound = errors.New("user not found")

// Record is the persisted state of one Telegram user.
//
// RegistrationTime is set only while Registered is true, DepositTime only
// while Deposited is true. AdminApproved is independent of both.
type Record struct {
	ID                  int64
	Username            string
	Language            Lang
	Registered          bool
	RegistrationTime    *time.Time
	Deposited           bool
	DepositTime         *time.Time
	Country             string
	Amount              decimal.NullDecimal
	AdminApproved       bool
	LastSignalMessageID int
	DepositMessageID    int
}

// New returns the default record for an id seen for the first time.
func New(id int64) Record {
	return Record{ID: id, Language: LangEN}
}

// Lang returns the record language with the default applied.
func (r Record) Lang() Lang {
	if r.Language == "" {
		return LangEN
	}
	return r.Language
}

// Equal reports whether two records hold the same values.
func (r Record) Equal(o Record) bool {
	return r.ID == o.ID &&
		r.Username == o.Username &&
		r.Lang() == o.Lang() &&
		r.Registered == o.Registered &&
		timeEqual(r.RegistrationTime, o.RegistrationTime) &&
		r.Deposited == o.Deposited &&
		timeEqual(r.DepositTime, o.DepositTime) &&
		r.Country == o.Country &&
		r.Amount.Valid == o.Amount.Valid &&
		(!r.Amount.Valid || r.Amount.Decimal.Equal(o.Amount.Decimal)) &&
		r.AdminApproved == o.AdminApproved &&
		r.LastSignalMessageID == o.LastSignalMessageID &&
		r.DepositMessageID == o.DepositMessageID
}

// Normalize enforces the timestamp invariants and defaults.
func (r *Record) Normalize() {
	if r.Language == "" {
		r.Language = LangEN
	}
	if !r.Registered {
		r.RegistrationTime = nil
	}
	if !r.Deposited {
		r.DepositTime = nil
	}
}

func timeEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// Mutator changes a record in place inside Store.Upsert.
type Mutator func(r *Record)

// Predicate selects records for CountWhere.
type Predicate func(r Record) bool

// Store persists user records keyed by Telegram id.
//
// Reads fail open: storage errors are logged and reported as "absent" or
// empty. Upsert is atomic against other Upsert calls in the same process.
type Store interface {
	Get(ctx context.Context, id int64) (Record, bool)
	Upsert(ctx context.Context, id int64, mutate Mutator) (Record, error)
	ListIDs(ctx context.Context) []int64
	CountWhere(ctx context.Context, pred Predicate) int
	List(ctx context.Context) []Record
	Close() error
}

// Common predicates.
var (
	All          Predicate = func(Record) bool { return true }
	IsRegistered Predicate = func(r Record) bool { return r.Registered }
	IsDeposited  Predicate = func(r Record) bool { return r.Deposited }
	IsApproved   Predicate = func(r Record) bool { return r.AdminApproved }
)

// GetOrDefault returns the stored record or the default one for id.
func GetOrDefault(ctx context.Context, s Store, id int64) Record {
	if rec, ok := s.Get(ctx, id); ok {
		return rec
	}
	return New(id)
}
