package bot

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/funnelbot/core/telegram"
	"github.com/m3rciful/funnelbot/core/telegram/state"
	"github.com/m3rciful/funnelbot/internal/admin"
	"github.com/m3rciful/funnelbot/internal/flow"
	"github.com/m3rciful/funnelbot/internal/notify"
	"github.com/m3rciful/funnelbot/internal/storage/jsonfile"
	"github.com/m3rciful/funnelbot/internal/user"
)

const (
	adminID  = 100
	stranger = 7
)

// fakeContext implements the parts of tele.Context the handlers touch.
type fakeContext struct {
	tele.Context

	sender *tele.User
	msg    *tele.Message
	cb     *tele.Callback
	args   []string
	values map[string]any
	sent   []string
}

func newContext(id int64) *fakeContext {
	return &fakeContext{
		sender: &tele.User{ID: id, Username: fmt.Sprintf("user%d", id), LanguageCode: "in"},
		msg:    &tele.Message{ID: 1},
		values: map[string]any{},
	}
}

func (c *fakeContext) tap(unique string, messageID int) *fakeContext {
	c.cb = &tele.Callback{Unique: unique}
	c.msg = &tele.Message{ID: messageID}
	return c
}

func (c *fakeContext) say(text string) *fakeContext {
	c.msg = &tele.Message{ID: 2, Text: text}
	return c
}

func (c *fakeContext) Sender() *tele.User       { return c.sender }
func (c *fakeContext) Chat() *tele.Chat         { return &tele.Chat{ID: c.sender.ID} }
func (c *fakeContext) Message() *tele.Message   { return c.msg }
func (c *fakeContext) Callback() *tele.Callback { return c.cb }
func (c *fakeContext) Update() tele.Update      { return tele.Update{ID: 1} }
func (c *fakeContext) Args() []string           { return c.args }
func (c *fakeContext) Get(key string) any       { return c.values[key] }
func (c *fakeContext) Set(key string, v any)    { c.values[key] = v }

func (c *fakeContext) Text() string {
	if c.msg == nil {
		return ""
	}
	return c.msg.Text
}

func (c *fakeContext) Send(what any, _ ...any) error {
	c.sent = append(c.sent, fmt.Sprint(what))
	return nil
}

func (c *fakeContext) lastReply() string {
	if len(c.sent) == 0 {
		return ""
	}
	return c.sent[len(c.sent)-1]
}

type fakeOutbox struct {
	mu      sync.Mutex
	sent    map[int64][]notify.Message
	docs    []notify.Document
	deleted []int
	runs    []notify.Message
}

func (o *fakeOutbox) Send(_ context.Context, chatID int64, msg notify.Message) (notify.Delivery, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent[chatID] = append(o.sent[chatID], msg)
	return notify.Delivery{MessageID: 40 + len(o.sent[chatID])}, nil
}

func (o *fakeOutbox) SendDocument(_ context.Context, _ int64, doc notify.Document) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.docs = append(o.docs, doc)
	return 1, nil
}

func (o *fakeOutbox) Delete(_ context.Context, _ int64, id int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.deleted = append(o.deleted, id)
	return nil
}

func (o *fakeOutbox) Notify(ctx context.Context, chatID int64, text string) error {
	_, err := o.Send(ctx, chatID, notify.Message{Text: text})
	return err
}

func (o *fakeOutbox) Broadcast(_ context.Context, ids []int64, msg notify.Message) notify.Report {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs = append(o.runs, msg)
	return notify.Report{Total: len(ids), Success: len(ids)}
}

func (o *fakeOutbox) last(chatID int64) notify.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	msgs := o.sent[chatID]
	if len(msgs) == 0 {
		return notify.Message{}
	}
	return msgs[len(msgs)-1]
}

type fixture struct {
	h     *Handlers
	reg   *tg.Registry
	out   *fakeOutbox
	store user.Store
	admin *admin.Service
	fsm   state.Manager
}

func setup(t *testing.T) fixture {
	t.Helper()
	store, err := jsonfile.Open(filepath.Join(t.TempDir(), "users.json"))
	require.NoError(t, err)
	out := &fakeOutbox{sent: map[int64][]notify.Message{}}
	f := flow.New(store, out, nil, flow.Config{
		AdminID:             adminID,
		Links:               flow.Links{Referral: "https://partner.example/r?sub1={user_id}", WebApp: "https://app.example/"},
		Images:              flow.Images{Main: "main.jpg"},
		RequireRegistration: true,
		RequireDeposit:      true,
	})
	a := admin.New(adminID, store, f, out)
	t.Cleanup(a.Close)
	fsm := state.NewMemoryManager()
	h := New(f, a, out, fsm)
	reg := tg.NewRegistry()
	require.NoError(t, h.Register(reg))
	return fixture{h: h, reg: reg, out: out, store: store, admin: a, fsm: fsm}
}

func (fx fixture) callback(t *testing.T, c *fakeContext) {
	t.Helper()
	fn, ok := fx.reg.GetCallback(c.cb.Unique)
	require.True(t, ok, c.cb.Unique)
	require.NoError(t, fn(c))
}

func (fx fixture) command(t *testing.T, name string, c *fakeContext) {
	t.Helper()
	_, cmd, ok := fx.reg.LookupCommand(name)
	require.True(t, ok, name)
	require.NoError(t, cmd.Handler(c))
}

func TestRegisterExposesRoutes(t *testing.T) {
	fx := setup(t)

	for _, name := range []string{"/start", "/admin", "/dashboard", "/broadcast", "/mark_deposited"} {
		_, _, ok := fx.reg.LookupCommand(name)
		assert.True(t, ok, name)
	}
	assert.Contains(t, fx.reg.ListCallbacks(), flow.CbGetSignal)
	assert.Contains(t, fx.reg.ListCallbacks(), admin.CbConfirmPhoto)
	assert.NotEmpty(t, fx.h.Routes(fx.reg))

	for _, c := range fx.reg.ListCommands(true) {
		assert.Equal(t, "/start", c.Text)
	}
}

func TestFunnelThroughCallbacks(t *testing.T) {
	ctx := context.Background()
	fx := setup(t)

	fx.command(t, "/start", newContext(1))
	rec, ok := fx.store.Get(ctx, 1)
	require.True(t, ok)
	assert.Equal(t, "user1", rec.Username)
	assert.NotNil(t, fx.out.last(1).Photo)

	fx.callback(t, newContext(1).tap(flow.CbGetSignal, 55))
	assert.Contains(t, fx.out.deleted, 55)

	fx.callback(t, newContext(1).tap(flow.CbCheckRegistration, 56))
	fx.callback(t, newContext(1).tap(flow.CbCheckDeposit, 57))

	rec, _ = fx.store.Get(ctx, 1)
	assert.True(t, rec.Registered)
	assert.True(t, rec.Deposited)
	assert.Equal(t, "IN", rec.Country)
	assert.Len(t, fx.out.sent[adminID], 2)
}

func TestLanguageCallback(t *testing.T) {
	fx := setup(t)

	fx.callback(t, newContext(3).tap(flow.CbLangHI, 9))

	rec, ok := fx.store.Get(context.Background(), 3)
	require.True(t, ok)
	assert.Equal(t, user.LangHI, rec.Language)
	assert.NotContains(t, fx.out.deleted, 9)
}

func TestUnknownTextAnswersInUserLanguage(t *testing.T) {
	fx := setup(t)

	require.NoError(t, fx.reg.TextFallback()(newContext(4).say("hello?")))
	assert.Equal(t, "I don't understand that command. Please use the menu.", fx.out.last(4).Text)
}

func TestAdminCommandArguments(t *testing.T) {
	fx := setup(t)

	c := newContext(adminID)
	fx.command(t, "/approve_user", c)
	assert.Equal(t, "⚠️ Usage: /approve_user <user_id>", c.lastReply())

	c.args = []string{"abc"}
	fx.command(t, "/approve_user", c)
	assert.Equal(t, invalidUserID, c.lastReply())

	c.args = []string{"5"}
	fx.command(t, "/approve_user", c)
	assert.Equal(t, "✅ User 5 manually approved for Get Signal access.", c.lastReply())

	c.args = []string{"5", "12.50"}
	fx.command(t, "/mark_deposited", c)
	rec, _ := fx.store.Get(context.Background(), 5)
	assert.True(t, rec.Deposited)
	assert.Equal(t, "12.5", rec.Amount.Decimal.String())

	c.args = []string{"5", "lots"}
	fx.command(t, "/mark_deposited", c)
	assert.Equal(t, "❌ Invalid amount.", c.lastReply())

	c.args = []string{"404"}
	fx.command(t, "/check_user", c)
	assert.Equal(t, "⚠️ User 404 not found.", c.lastReply())
}

func TestStrangerGetsDenied(t *testing.T) {
	fx := setup(t)

	c := newContext(stranger)
	c.args = []string{"5"}
	fx.command(t, "/approve_user", c)
	assert.Equal(t, admin.DeniedText, c.lastReply())

	c = newContext(stranger)
	fx.callback(t, c.tap(admin.CbBroadcast, 3))
	assert.Equal(t, admin.DeniedText, c.lastReply())
	assert.False(t, fx.fsm.InProgress(stranger))
}

func TestStatusWithoutIDShowsTotals(t *testing.T) {
	fx := setup(t)
	fx.command(t, "/start", newContext(1))

	c := newContext(adminID)
	fx.command(t, "/status", c)
	assert.True(t, strings.HasPrefix(c.lastReply(), "📊 Bot User Statistics:"))
	assert.Contains(t, c.lastReply(), "👥 Total Users: 1")
}

func TestDashboardAndExport(t *testing.T) {
	fx := setup(t)
	fx.command(t, "/start", newContext(1))

	fx.command(t, "/admin", newContext(adminID))
	assert.Equal(t, "Admin Dashboard:", fx.out.last(adminID).Text)

	fx.callback(t, newContext(adminID).tap(admin.CbExportUsers, 4))
	require.Len(t, fx.out.docs, 1)
	assert.Equal(t, admin.ExportName, fx.out.docs[0].Name)
}

func TestApproveDialog(t *testing.T) {
	fx := setup(t)

	c := newContext(adminID)
	fx.callback(t, c.tap(admin.CbApproveUser, 4))
	assert.Equal(t, promptApprove, c.lastReply())
	require.True(t, fx.fsm.InProgress(adminID))

	require.NoError(t, fx.fsm.ManagerHandler(c.say("nope")))
	assert.Equal(t, invalidUserID, c.lastReply())
	assert.True(t, fx.fsm.InProgress(adminID))

	require.NoError(t, fx.fsm.ManagerHandler(c.say("9")))
	assert.Equal(t, "✅ User 9 manually approved for Get Signal access.", c.lastReply())
	assert.False(t, fx.fsm.InProgress(adminID))
}

func TestBroadcastDialog(t *testing.T) {
	fx := setup(t)
	fx.command(t, "/start", newContext(1))

	c := newContext(adminID)
	c.msg = &tele.Message{ID: 2, Text: "/broadcast"}
	fx.command(t, "/broadcast", c)
	assert.Equal(t, promptBroadcast, c.lastReply())

	require.NoError(t, fx.fsm.ManagerHandler(c.say("Market opens soon")))
	assert.Equal(t, broadcastQueued, c.lastReply())
	fx.admin.Wait()

	require.Len(t, fx.out.runs, 1)
	assert.Equal(t, "Market opens soon", fx.out.runs[0].Text)
}

func TestPhotoDialog(t *testing.T) {
	fx := setup(t)
	fx.command(t, "/start", newContext(1))

	c := newContext(adminID)
	fx.command(t, "/broadcast_photo", c)
	assert.Equal(t, promptPhoto, c.lastReply())

	require.NoError(t, fx.fsm.ManagerHandler(c.say("not a photo")))
	assert.Equal(t, promptPhoto, c.lastReply())

	c.msg = &tele.Message{ID: 3, Caption: "today", Photo: &tele.Photo{File: tele.File{FileID: "AgAD"}}}
	require.NoError(t, fx.fsm.ManagerHandler(c))
	preview := fx.out.last(adminID)
	require.NotNil(t, preview.Photo)
	assert.Equal(t, "AgAD", preview.Photo.FileID)

	fx.callback(t, newContext(adminID).tap(admin.CbConfirmPhoto, 60))
	fx.admin.Wait()
	require.Len(t, fx.out.runs, 1)
	assert.Equal(t, "today", fx.out.runs[0].Text)
	assert.Contains(t, fx.out.deleted, 60)
}
