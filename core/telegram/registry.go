package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/funnelbot/core/logger"
	"github.com/m3rciful/funnelbot/core/telegram/commands"
)

// ErrDuplicate is returned when a command, alias or callback key is taken.
var ErrDuplicate = errors.New("telegram: already registered")

// Registry holds bot commands and callbacks. It is safe for concurrent use.
type Registry struct {
	mu               sync.RWMutex
	commands         map[string]commands.Command
	aliases          map[string]string // alias -> canonical name
	callbacks        map[string]tele.HandlerFunc
	callbackNotFound tele.HandlerFunc
	textFallback     tele.HandlerFunc
}

// NewRegistry creates an empty Registry. Unknown callbacks are answered
// with a short toast until SetCallbackNotFound says otherwise.
func NewRegistry() *Registry {
	return &Registry{
		commands:  make(map[string]commands.Command),
		aliases:   make(map[string]string),
		callbacks: make(map[string]tele.HandlerFunc),
		callbackNotFound: func(c tele.Context) error {
			_ = c.Respond(&tele.CallbackResponse{Text: "Unsupported action"})
			return nil
		},
	}
}

func slash(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || name[0] == '/' {
		return name
	}
	return "/" + name
}

// RegisterCommand adds cmd under name and its aliases. A missing leading
// slash is added.
func (r *Registry) RegisterCommand(name string, cmd commands.Command) error {
	name = slash(name)
	if name == "" || cmd.Handler == nil || cmd.Description == "" {
		r.skipped("register.command.skip", name, "invalid")
		return fmt.Errorf("telegram: invalid command %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.takenLocked(name) {
		r.skipped("register.command.duplicate", name, "duplicate")
		return fmt.Errorf("%w: command %s", ErrDuplicate, name)
	}
	aliases := make([]string, 0, len(cmd.Aliases))
	for _, a := range cmd.Aliases {
		if a = slash(a); a == "" || a == name {
			continue
		}
		if r.takenLocked(a) {
			r.skipped("register.command.duplicate", a, "duplicate_alias")
			return fmt.Errorf("%w: alias %s of %s", ErrDuplicate, a, name)
		}
		aliases = append(aliases, a)
	}
	cmd.Aliases = aliases
	r.commands[name] = cmd
	for _, a := range aliases {
		r.aliases[a] = name
	}
	return nil
}

func (r *Registry) takenLocked(name string) bool {
	_, cmd := r.commands[name]
	_, alias := r.aliases[name]
	return cmd || alias
}

func (r *Registry) skipped(event, name, reason string) {
	logger.TWire.LogAttrs(context.Background(), slog.LevelWarn, event,
		slog.String("name", name),
		slog.String("cause", reason),
	)
}

// ListCommands returns commands sorted by name. visibleOnly drops hidden
// and admin-only entries.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	return r.menu(func(c commands.Command) bool {
		return !visibleOnly || !(c.Hidden || c.AdminOnly)
	})
}

func (r *Registry) menu(keep func(commands.Command) bool) []tele.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]tele.Command, 0, len(r.commands))
	for name, c := range r.commands {
		if keep(c) {
			list = append(list, tele.Command{Text: name, Description: c.Description})
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Text < list[j].Text })
	return list
}

// LookupCommand resolves name or one of its aliases to the canonical name.
func (r *Registry) LookupCommand(name string) (string, commands.Command, bool) {
	name = slash(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if canonical, ok := r.aliases[name]; ok {
		name = canonical
	}
	cmd, ok := r.commands[name]
	if !ok {
		return "", commands.Command{}, false
	}
	return name, cmd, true
}

// Commands returns a copy of the registered commands keyed by name.
func (r *Registry) Commands() map[string]commands.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]commands.Command, len(r.commands))
	for k, v := range r.commands {
		out[k] = v
	}
	return out
}

// RegisterCallback maps an inline button unique to handler.
func (r *Registry) RegisterCallback(key string, handler tele.HandlerFunc) error {
	if key == "" || handler == nil {
		r.skipped("register.callback.skip", key, "invalid")
		return fmt.Errorf("telegram: invalid callback %q", key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.callbacks[key]; exists {
		r.skipped("register.callback.duplicate", key, "duplicate")
		return fmt.Errorf("%w: callback %s", ErrDuplicate, key)
	}
	r.callbacks[key] = handler
	return nil
}

// GetCallback returns the handler registered for key.
func (r *Registry) GetCallback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// ListCallbacks returns the registered keys, sorted.
func (r *Registry) ListCallbacks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.callbacks))
	for k := range r.callbacks {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// SetCallbackNotFound replaces the handler for unknown callbacks.
func (r *Registry) SetCallbackNotFound(h tele.HandlerFunc) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.callbackNotFound = h
	r.mu.Unlock()
}

func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.callbackNotFound
}

// SetTextFallback sets the handler for text that no route claimed.
func (r *Registry) SetTextFallback(h tele.HandlerFunc) {
	r.mu.Lock()
	r.textFallback = h
	r.mu.Unlock()
}

func (r *Registry) TextFallback() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.textFallback
}

// commandSetter is the part of *tele.Bot that publishes menus.
type commandSetter interface {
	SetCommands(opts ...interface{}) error
}

// PublishCommands sets the public command menu and, when adminID is set,
// a fuller menu scoped to the admin's private chat. Hidden commands never
// show up.
func PublishCommands(bot commandSetter, reg *Registry, adminID int64) error {
	var errs []error
	if err := bot.SetCommands(reg.ListCommands(true)); err != nil {
		errs = append(errs, fmt.Errorf("public menu: %w", err))
	}
	if adminID > 0 {
		full := reg.menu(func(c commands.Command) bool { return !c.Hidden })
		scope := tele.CommandScope{Type: tele.CommandScopeChat, ChatID: adminID}
		if err := bot.SetCommands(full, scope); err != nil {
			errs = append(errs, fmt.Errorf("admin menu: %w", err))
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		logger.TWire.LogAttrs(context.Background(), slog.LevelError, "register.commands.set_failed",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
	return err
}
