package instancelock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/m3rciful/funnelbot/core/logger"
)

// FileLock is a pid file created exclusively.
type FileLock struct {
	path string
	key  string
	pid  int
}

// alive is swapped in tests.
var alive = processAlive

// held lists the lock paths this process owns. A pid file holding our own
// pid is stale only when the path is missing here: the pid was reused
// after a crash.
var held = struct {
	sync.Mutex
	paths map[string]struct{}
}{paths: make(map[string]struct{})}

func lockKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// claim marks key as owned by this process and reports whether it was free.
func claim(key string) bool {
	held.Lock()
	defer held.Unlock()
	if _, ok := held.paths[key]; ok {
		return false
	}
	held.paths[key] = struct{}{}
	return true
}

func unclaim(key string) {
	held.Lock()
	delete(held.paths, key)
	held.Unlock()
}

// AcquireFile creates path holding the current pid. A file left behind by a
// dead process is taken over. A second acquire of the same path within one
// process fails with ErrHeld.
func AcquireFile(ctx context.Context, path string) (*FileLock, error) {
	key := lockKey(path)
	if !claim(key) {
		return nil, fmt.Errorf("%w (pid %d)", ErrHeld, os.Getpid())
	}
	l, err := acquireFile(ctx, path, key)
	if err != nil {
		unclaim(key)
		return nil, err
	}
	return l, nil
}

func acquireFile(ctx context.Context, path, key string) (*FileLock, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("lock dir: %w", err)
		}
	}
	pid := os.Getpid()
	for attempt := 0; attempt < 2; attempt++ {
		err := create(path, pid)
		if err == nil {
			logger.Info(ctx, logger.CompLock, "lock.acquire",
				slog.String("status", "ok"),
				slog.String("backend", "file"),
				slog.String("path", path),
			)
			return &FileLock{path: path, key: key, pid: pid}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create lock %s: %w", path, err)
		}
		owner, readErr := readPID(path)
		if readErr == nil && owner != pid && alive(owner) {
			return nil, fmt.Errorf("%w (pid %d)", ErrHeld, owner)
		}
		logger.Warn(ctx, logger.CompLock, "lock.stale",
			slog.String("path", path),
			slog.Int("owner", owner),
		)
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale lock: %w", err)
		}
	}
	return nil, ErrHeld
}

// Release removes the file if it still belongs to this process.
func (l *FileLock) Release(ctx context.Context) error {
	defer unclaim(l.key)
	owner, err := readPID(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if owner != l.pid {
		logger.Warn(ctx, logger.CompLock, "lock.release",
			slog.String("status", "skip"),
			slog.Int("owner", owner),
		)
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	logger.Info(ctx, logger.CompLock, "lock.release", slog.String("status", "ok"))
	return nil
}

func create(path string, pid int) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(strconv.Itoa(pid)); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	raw := strings.TrimPrefix(strings.TrimSpace(string(data)), "locked_")
	pid, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse pid %q: %w", raw, err)
	}
	return pid, nil
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = p.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
