package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/funnelbot/core/logger"
	tghelpers "github.com/m3rciful/funnelbot/core/telegram/helpers"
	"github.com/m3rciful/funnelbot/core/telegram/keyboard"
	"github.com/m3rciful/funnelbot/core/telegram/sender"
)

var (
	errBlocked = errors.New("telegram: Forbidden: bot was blocked by the user (403)")
	errParse   = errors.New("telegram: Bad Request: can't parse entities (400)")
)

type retryAfterErr struct{ wait time.Duration }

func (e retryAfterErr) Error() string             { return fmt.Sprintf("retry after %s", e.wait) }
func (e retryAfterErr) RetryDelay() time.Duration { return e.wait }

type call struct {
	chatID int64
	format Format
	photo  bool
}

type fakeTransport struct {
	mu      sync.Mutex
	nextID  int
	calls   []call
	deleted []int
	docs    []Document

	textErr  func(chatID int64, f Format, n int) error
	photoErr func(chatID int64, f Format, n int) error
}

func (t *fakeTransport) record(chatID int64, f Format, photo bool, fail func(int64, Format, int) error) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, call{chatID: chatID, format: f, photo: photo})
	if fail != nil {
		if err := fail(chatID, f, len(t.calls)); err != nil {
			return 0, err
		}
	}
	t.nextID++
	return t.nextID, nil
}

func (t *fakeTransport) SendText(_ context.Context, chatID int64, _ Message, f Format) (int, error) {
	return t.record(chatID, f, false, t.textErr)
}

func (t *fakeTransport) SendPhoto(_ context.Context, chatID int64, _ Message, f Format) (int, error) {
	return t.record(chatID, f, true, t.photoErr)
}

func (t *fakeTransport) SendDocument(_ context.Context, _ int64, doc Document) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.docs = append(t.docs, doc)
	t.nextID++
	return t.nextID, nil
}

func (t *fakeTransport) Delete(_ context.Context, _ int64, messageID int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deleted = append(t.deleted, messageID)
	return nil
}

// levelCounter records how many records were logged per level.
type levelCounter struct {
	mu     sync.Mutex
	counts map[slog.Level]int
}

func (h *levelCounter) Enabled(context.Context, slog.Level) bool { return true }
func (h *levelCounter) WithAttrs([]slog.Attr) slog.Handler       { return h }
func (h *levelCounter) WithGroup(string) slog.Handler            { return h }

func (h *levelCounter) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.counts[r.Level]++
	return nil
}

func (h *levelCounter) errors() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[slog.LevelError]
}

func captureLogs(t *testing.T) *levelCounter {
	t.Helper()
	h := &levelCounter{counts: map[slog.Level]int{}}
	prev := logger.L
	logger.L = slog.New(h)
	t.Cleanup(func() { logger.L = prev })
	return h
}

func newTestDispatcher(tr Transport, waits *[]time.Duration) *Dispatcher {
	p := sender.DefaultPolicy()
	p.Sleep = func(_ context.Context, d time.Duration) error {
		if waits != nil {
			*waits = append(*waits, d)
		}
		return nil
	}
	return New(tr, Options{Policy: p, Pace: -1})
}

func TestSendFallsBackThroughFormats(t *testing.T) {
	tr := &fakeTransport{textErr: func(_ int64, f Format, _ int) error {
		if f != FormatPlain {
			return errParse
		}
		return nil
	}}
	d := newTestDispatcher(tr, nil)

	del, err := d.Send(context.Background(), 1, Message{Text: "*hi"})
	require.NoError(t, err)
	assert.Equal(t, FormatPlain, del.Format)
	assert.Equal(t, []Format{FormatMarkdown, FormatHTML}, del.Rejected)
	assert.Len(t, tr.calls, 3)
}

func TestSendCountsReplies(t *testing.T) {
	tr := &fakeTransport{textErr: func(_ int64, _ Format, n int) error {
		if n == 3 {
			return errBlocked
		}
		return nil
	}}
	d := newTestDispatcher(tr, nil)
	ctx := tghelpers.WithReplyCounter(context.Background())

	_, err := d.Send(ctx, 1, Message{Text: "menu", Buttons: [][]keyboard.InlineBtn{{{Text: "Go", Unique: "go"}}}})
	require.NoError(t, err)
	_, err = d.Send(ctx, 1, Message{Text: "plain"})
	require.NoError(t, err)
	_, err = d.Send(ctx, 1, Message{Text: "lost"})
	require.Error(t, err)

	n, kb := tghelpers.ReplyCounts(ctx)
	assert.Equal(t, 2, n)
	assert.True(t, kb)
}

func TestSendStopsOnBlockedRecipient(t *testing.T) {
	logs := captureLogs(t)
	tr := &fakeTransport{textErr: func(int64, Format, int) error { return errBlocked }}
	d := newTestDispatcher(tr, nil)

	del, err := d.Send(context.Background(), 9, Message{Text: "hi"})
	require.Error(t, err)
	assert.True(t, del.Blocked)
	assert.Empty(t, del.Rejected)
	assert.Len(t, tr.calls, 1)
	assert.Zero(t, logs.errors())
}

func TestPhotoFallsBackToText(t *testing.T) {
	tr := &fakeTransport{photoErr: func(int64, Format, int) error { return errParse }}
	d := newTestDispatcher(tr, nil)

	del, err := d.Send(context.Background(), 1, Message{Text: "caption", Photo: &Photo{FileID: "abc"}})
	require.NoError(t, err)
	assert.True(t, del.PhotoFallback)
	assert.Equal(t, FormatMarkdown, del.Format)
	require.Len(t, tr.calls, 4)
	assert.False(t, tr.calls[3].photo)
}

func TestSendHonoursRetryAfter(t *testing.T) {
	tr := &fakeTransport{textErr: func(_ int64, _ Format, n int) error {
		if n == 1 {
			return retryAfterErr{wait: 2 * time.Second}
		}
		return nil
	}}
	var waits []time.Duration
	d := newTestDispatcher(tr, &waits)

	del, err := d.Send(context.Background(), 1, Message{Text: "hi", Formats: []Format{FormatPlain}})
	require.NoError(t, err)
	assert.Equal(t, FormatPlain, del.Format)
	assert.Equal(t, []time.Duration{2 * time.Second}, waits)
}

func TestPermanentErrorIsNotRetried(t *testing.T) {
	tr := &fakeTransport{textErr: func(int64, Format, int) error { return errParse }}
	var waits []time.Duration
	d := newTestDispatcher(tr, &waits)

	_, err := d.Send(context.Background(), 1, Message{Text: "hi", Formats: []Format{FormatPlain}})
	require.Error(t, err)
	assert.Len(t, tr.calls, 1)
	assert.Empty(t, waits)
}

func TestBroadcastCountsBlockedSilently(t *testing.T) {
	logs := captureLogs(t)
	blocked := map[int64]bool{2: true, 5: true, 8: true}
	tr := &fakeTransport{textErr: func(id int64, _ Format, _ int) error {
		if blocked[id] {
			return errBlocked
		}
		return nil
	}}
	d := newTestDispatcher(tr, nil)

	ids := []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	rep := d.Broadcast(context.Background(), ids, Message{Text: "news"})

	assert.Equal(t, 10, rep.Total)
	assert.Equal(t, 7, rep.Success)
	assert.Equal(t, 3, rep.Failed)
	assert.Equal(t, 3, rep.Blocked)
	assert.Empty(t, rep.Causes)
	assert.NotEmpty(t, rep.RunID)
	assert.Zero(t, logs.errors())
	assert.Equal(t, "✅ Sent to 7 users | ❌ Failed: 3", rep.Summary())
	assert.Empty(t, rep.FailureDetails())
}

func TestBroadcastTruncatesCauses(t *testing.T) {
	tr := &fakeTransport{textErr: func(int64, Format, int) error { return errParse }}
	d := newTestDispatcher(tr, nil)

	ids := make([]int64, 13)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	rep := d.Broadcast(context.Background(), ids, Message{Text: "news"})

	assert.Equal(t, 13, rep.Failed)
	assert.Len(t, rep.Causes, 10)
	assert.Equal(t, 3, rep.More)
	assert.Equal(t, 13, rep.FormatFailures[FormatMarkdown])
	assert.Equal(t, 13, rep.FormatFailures[FormatHTML])
	assert.Equal(t, 13, rep.FormatFailures[FormatPlain])
	assert.Contains(t, rep.Causes[0], "1: ")
	assert.Contains(t, rep.FailureDetails(), "📝 Failure Details:\n")
	assert.Contains(t, rep.FailureDetails(), "\n+3 more")
	assert.Equal(t, "📊 Format Failures:\n• Markdown: 13\n• HTML: 13\n• Plain text: 13", rep.FormatBreakdown())
}

func TestBroadcastStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tr := &fakeTransport{textErr: func(id int64, _ Format, _ int) error {
		if id == 2 {
			cancel()
		}
		return nil
	}}
	d := newTestDispatcher(tr, nil)

	rep := d.Broadcast(ctx, []int64{1, 2, 3, 4}, Message{Text: "x"})
	assert.True(t, rep.Cancelled)
	assert.Equal(t, 2, rep.Success)
}

func TestPhotoBroadcastSummary(t *testing.T) {
	d := newTestDispatcher(&fakeTransport{}, nil)
	rep := d.Broadcast(context.Background(), []int64{1, 2}, Message{Text: "c", Photo: &Photo{FileID: "f"}})
	assert.Equal(t, "✅ Photo sent to 2 users | ❌ Failed: 0", rep.Summary())
}

func TestDeleteSkipsZeroID(t *testing.T) {
	tr := &fakeTransport{}
	d := newTestDispatcher(tr, nil)

	require.NoError(t, d.Delete(context.Background(), 1, 0))
	require.NoError(t, d.Delete(context.Background(), 1, 77))
	assert.Equal(t, []int{77}, tr.deleted)
}

type fakeQueue struct{ jobs []func(context.Context) error }

func (q *fakeQueue) Enqueue(_ context.Context, _, _ string, run func(ctx context.Context) error) error {
	q.jobs = append(q.jobs, run)
	return nil
}

func TestNotifyGoesThroughQueue(t *testing.T) {
	tr := &fakeTransport{}
	q := &fakeQueue{}
	d := New(tr, Options{Policy: sender.DefaultPolicy(), Pace: -1, Queue: q})

	require.NoError(t, d.Notify(context.Background(), 100, "✅ New Registration"))
	assert.Empty(t, tr.calls)
	require.Len(t, q.jobs, 1)

	require.NoError(t, q.jobs[0](context.Background()))
	require.Len(t, tr.calls, 1)
	assert.Equal(t, FormatPlain, tr.calls[0].format)
}

func TestSendDocument(t *testing.T) {
	tr := &fakeTransport{}
	d := newTestDispatcher(tr, nil)

	id, err := d.SendDocument(context.Background(), 1, Document{Name: "users.csv", Data: []byte("a")})
	require.NoError(t, err)
	assert.NotZero(t, id)
	require.Len(t, tr.docs, 1)
	assert.Equal(t, "users.csv", tr.docs[0].Name)
}

func TestUnboundTelebotTransport(t *testing.T) {
	tr := NewTelebotTransport()
	_, err := tr.SendText(context.Background(), 1, Message{Text: "x"}, FormatPlain)
	assert.ErrorIs(t, err, ErrNotBound)
}
