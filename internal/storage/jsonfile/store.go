// Package jsonfile stores user records in a single JSON array file.
package jsonfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"

	"github.com/m3rciful/funnelbot/core/logger"
	"github.com/m3rciful/funnelbot/internal/user"
)

// Store is a user.Store over one JSON file. Every write rewrites the whole
// collection through a temp file and an atomic rename.
type Store struct {
	path string
	mu   sync.RWMutex
}

var _ user.Store = (*Store)(nil)

// Open prepares a store at path. The file itself is created on first write.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("jsonfile: empty path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("jsonfile: create dir: %w", err)
		}
	}
	return &Store{path: path}, nil
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

func (s *Store) Get(ctx context.Context, id int64) (user.Record, bool) {
	records := s.read(ctx)
	for _, r := range records {
		if r.ID == id {
			return r, true
		}
	}
	return user.Record{}, false
}

func (s *Store) Upsert(ctx context.Context, id int64, mutate user.Mutator) (user.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		// Refuse to replace a file we could not parse.
		logger.Error(ctx, logger.CompStore, "store.write",
			slog.String("status", "fail"),
			slog.Int64("target_id", id),
			slog.String("path", s.path),
			slog.String("err", err.Error()),
		)
		return user.Record{}, fmt.Errorf("jsonfile: load before write: %w", err)
	}

	idx := -1
	for i := range records {
		if records[i].ID == id {
			idx = i
			break
		}
	}

	next := user.New(id)
	if idx >= 0 {
		next = records[idx]
	}
	if mutate != nil {
		mutate(&next)
	}
	next.ID = id
	next.Normalize()

	if idx >= 0 {
		if next.Equal(records[idx]) {
			return next, nil
		}
		records[idx] = next
	} else {
		records = append(records, next)
	}

	if err := s.save(records); err != nil {
		logger.Error(ctx, logger.CompStore, "store.write",
			slog.String("status", "fail"),
			slog.Int64("target_id", id),
			slog.String("path", s.path),
			slog.String("err", err.Error()),
		)
		return user.Record{}, err
	}
	return next, nil
}

func (s *Store) ListIDs(ctx context.Context) []int64 {
	records := s.read(ctx)
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}

func (s *Store) CountWhere(ctx context.Context, pred user.Predicate) int {
	n := 0
	for _, r := range s.read(ctx) {
		if pred == nil || pred(r) {
			n++
		}
	}
	return n
}

func (s *Store) List(ctx context.Context) []user.Record {
	return s.read(ctx)
}

func (s *Store) Close() error { return nil }

// read loads the collection for a read path; failures degrade to empty.
func (s *Store) read(ctx context.Context) []user.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records, err := s.load()
	if err != nil {
		logger.Warn(ctx, logger.CompStore, "store.read",
			slog.String("status", "fail"),
			slog.String("path", s.path),
			slog.String("err", err.Error()),
		)
		return nil
	}
	return records
}

func (s *Store) load() ([]user.Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var records []user.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return dedupe(records), nil
}

// dedupe keeps the last occurrence of every id, in first-seen order.
func dedupe(records []user.Record) []user.Record {
	pos := make(map[int64]int, len(records))
	out := records[:0]
	for _, r := range records {
		if i, ok := pos[r.ID]; ok {
			out[i] = r
			continue
		}
		pos[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}

func (s *Store) save(records []user.Record) error {
	if records == nil {
		records = []user.Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("jsonfile: encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("jsonfile: create temp: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("jsonfile: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("jsonfile: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("jsonfile: close temp: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("jsonfile: replace: %w", err)
	}
	return nil
}
