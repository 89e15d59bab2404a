package logger

import (
	"bytes"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/funnelbot/core/config"
)

// capture builds a handler over a buffer and returns a func that drains it.
func capture(t *testing.T, format logFormat) (*slog.Logger, func() string) {
	t.Helper()
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	h := newStructuredHandler(handlerConfig{level: slog.LevelInfo, writer: aw, format: format})
	return slog.New(h), func() string {
		require.NoError(t, aw.Close())
		return strings.TrimSpace(buf.String())
	}
}

func TestHandlerKeyOrder(t *testing.T) {
	cases := []struct {
		name   string
		format logFormat
		want   []string
	}{
		{
			name:   "kv",
			format: formatKV,
			want:   []string{"ts=", "level=WARN", "component=funnel", "event=funnel.transition", "status=skip", "rid=5.7.9"},
		},
		{
			name:   "json",
			format: formatJSON,
			want:   []string{`{"ts":`, `"level":"WARN"`, `"component":"funnel"`, `"event":"funnel.transition"`, `"status":"skip"`, `"rid":"5.7.9"`},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			log, drain := capture(t, tc.format)
			ctx := WithUpdateMeta(WithRID(Background(), BuildRID(5, 7, 9)), 5, 9, 7)
			LogEvent(ctx, log.With("component", "funnel"), slog.LevelWarn, "funnel.transition",
				slog.String("trigger", "get_signal"),
				slog.String("status", "skip"),
			)
			line := drain()
			pos := -1
			for _, w := range tc.want {
				idx := strings.Index(line, w)
				require.Greater(t, idx, pos, "%q out of order in %s", w, line)
				pos = idx
			}
		})
	}
}

func TestHandlerRIDFullOnlyInJSON(t *testing.T) {
	log, drain := capture(t, formatKV)
	LogEvent(WithRID(Background(), "1:2:3"), log, slog.LevelInfo, "rid.kv")
	line := drain()
	assert.Contains(t, line, "rid=1.2.3")
	assert.NotContains(t, line, "rid_full=")

	log, drain = capture(t, formatJSON)
	LogEvent(WithRID(Background(), "1:2:3"), log, slog.LevelInfo, "rid.json")
	line = drain()
	assert.Contains(t, line, `"rid":"1.2.3"`)
	assert.Contains(t, line, `"rid_full":"1:2:3"`)
	assert.Contains(t, line, `"ts_unix_nano"`)
}

func TestHandlerNormalizesEnumerations(t *testing.T) {
	log, drain := capture(t, formatKV)
	LogEvent(Background(), log, slog.LevelInfo, "notify.send",
		slog.String("status", "OK"),
		slog.String("outcome", "maybe"),
	)
	line := drain()
	assert.Contains(t, line, "status=ok")
	assert.NotContains(t, line, "outcome=")
	assert.Contains(t, line, "component=app")
}

func TestHandlerCopiesWarningsToErrorsWriter(t *testing.T) {
	main, errs := &bytes.Buffer{}, &bytes.Buffer{}
	hc := handlerConfig{
		level:     slog.LevelDebug,
		writer:    newAsyncWriter([]io.Writer{main}, 1024),
		errWriter: newAsyncWriter([]io.Writer{errs}, 1024),
		format:    formatKV,
	}
	log := slog.New(newStructuredHandler(hc))
	LogEvent(Background(), log, slog.LevelInfo, "store.save")
	LogEvent(Background(), log, slog.LevelWarn, "notify.retry")
	LogEvent(Background(), log, slog.LevelError, "store.load")
	require.NoError(t, hc.writer.Close())
	require.NoError(t, hc.errWriter.Close())

	assert.Len(t, strings.Split(strings.TrimSpace(main.String()), "\n"), 3)
	lines := strings.Split(strings.TrimSpace(errs.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "event=notify.retry")
	assert.Contains(t, lines[1], "event=store.load")
}

func TestParseSettings(t *testing.T) {
	s := parseSettings(nil)
	assert.Equal(t, slog.LevelInfo, s.level)
	assert.Equal(t, formatJSON, s.format)
	assert.Equal(t, "prod", s.profile)

	cfg := &coreconfig.Config{Logging: coreconfig.LoggingConfig{
		Level:       "WARNING",
		Profile:     "dev",
		KeysOrder:   "event, ts ,,level",
		DebugSample: "0",
		Dir:         "logs",
		BotFile:     "bot.log",
		ErrorsFile:  "errors.log",
	}}
	s = parseSettings(cfg)
	assert.Equal(t, slog.LevelWarn, s.level)
	assert.Equal(t, formatKV, s.format)
	assert.Equal(t, []string{"event", "ts", "level"}, s.keyOrder)
	assert.Equal(t, filepath.Join("logs", "bot.log"), s.botFile)
	assert.Equal(t, filepath.Join("logs", "errors.log"), s.errFile)

	cfg.Logging.Format = "json"
	cfg.Logging.Dir = ""
	s = parseSettings(cfg)
	assert.Equal(t, formatJSON, s.format)
	assert.Empty(t, s.botFile)
	assert.Empty(t, s.errFile)
}
