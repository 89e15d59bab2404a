package state

import (
	"log/slog"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/funnelbot/core/logger"
	tghelpers "github.com/m3rciful/funnelbot/core/telegram/helpers"
)

type session struct {
	state State
	since time.Time
}

// Option configures NewMemoryManager.
type Option func(*memoryManager)

// WithTTL closes dialogs that saw no state change for ttl. Zero keeps them
// open until cleared.
func WithTTL(ttl time.Duration) Option {
	return func(m *memoryManager) { m.ttl = ttl }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *memoryManager) { m.now = now }
}

type memoryManager struct {
	mu       sync.RWMutex
	sessions map[int64]session
	handlers map[State]tele.HandlerFunc
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryManager returns a Manager kept in process memory. Open dialogs
// are lost on restart.
func NewMemoryManager(opts ...Option) Manager {
	m := &memoryManager{
		sessions: make(map[int64]session),
		handlers: make(map[State]tele.HandlerFunc),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *memoryManager) Handle(st State, h tele.HandlerFunc) {
	if h == nil {
		return
	}
	m.mu.Lock()
	m.handlers[st] = h
	m.mu.Unlock()
}

func (m *memoryManager) SetState(userID int64, st State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st == StateIdle {
		delete(m.sessions, userID)
		return
	}
	m.sessions[userID] = session{state: st, since: m.now()}
}

// GetState reports StateIdle for unknown users and for expired dialogs.
func (m *memoryManager) GetState(userID int64) State {
	m.mu.RLock()
	s, ok := m.sessions[userID]
	m.mu.RUnlock()
	if !ok {
		return StateIdle
	}
	if m.ttl > 0 && m.now().Sub(s.since) > m.ttl {
		m.mu.Lock()
		// Only drop the session we looked at; a newer SetState wins.
		if cur, ok := m.sessions[userID]; ok && cur == s {
			delete(m.sessions, userID)
		}
		m.mu.Unlock()
		return StateIdle
	}
	return s.state
}

func (m *memoryManager) ClearState(userID int64) { m.SetState(userID, StateIdle) }

func (m *memoryManager) Clear(userID int64) {
	m.mu.Lock()
	delete(m.sessions, userID)
	m.mu.Unlock()
}

func (m *memoryManager) InProgress(userID int64) bool {
	return m.GetState(userID) != StateIdle
}

// ManagerHandler runs the handler bound to the sender's current state.
// Input in a state without a handler is dropped.
func (m *memoryManager) ManagerHandler(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	st := m.GetState(sender.ID)

	m.mu.RLock()
	h, ok := m.handlers[st]
	m.mu.RUnlock()

	status := "ok"
	if !ok {
		status = "skip"
	}
	logger.Debug(tghelpers.BuildContext(c), logger.CompTG, "fsm.dispatch",
		slog.String("status", status),
		slog.String("from_state", string(st)),
	)
	if !ok {
		return nil
	}
	return h(c)
}
