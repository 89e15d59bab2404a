package funnel

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/funnelbot/internal/user"
)

var clock = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func record(registered, deposited, approved bool) user.Record {
	r := user.New(42)
	if registered {
		t := clock.Add(-48 * time.Hour)
		r.Registered, r.RegistrationTime = true, &t
	}
	if deposited {
		t := clock.Add(-24 * time.Hour)
		r.Deposited, r.DepositTime = true, &t
	}
	r.AdminApproved = approved
	return r
}

func TestStateOf(t *testing.T) {
	tests := []struct {
		name string
		rec  user.Record
		want State
	}{
		{"default", record(false, false, false), Unregistered},
		{"registered", record(true, false, false), RegisteredNoDeposit},
		{"deposited", record(true, true, false), Deposited},
		{"approved overlay", record(false, false, true), AdminApproved},
		{"approved and deposited", record(true, true, true), AdminApproved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StateOf(tt.rec))
		})
	}
	assert.Equal(t, Deposited, BaseState(record(true, true, true)))
}

func TestGetSignalPriority(t *testing.T) {
	tests := []struct {
		name string
		rec  user.Record
		want Response
	}{
		{"approved unregistered", record(false, false, true), ResponseAccessApproved},
		{"approved registered", record(true, false, true), ResponseAccessApproved},
		{"approved deposited", record(true, true, true), ResponseAccessApproved},
		{"unregistered", record(false, false, false), ResponseRegistration},
		{"registered only", record(true, false, false), ResponseDeposit},
		{"deposited", record(true, true, false), ResponseAccessVerified},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.rec, Event{Trigger: TriggerGetSignal, At: clock})
			assert.Equal(t, tt.want, d.Response)
			assert.False(t, d.Changed)
		})
	}
}

func TestUnseenUserBehavesAsDefault(t *testing.T) {
	for _, trig := range []Trigger{TriggerRegister, TriggerGetSignal, TriggerCheckDeposit} {
		d := Decide(user.New(7), Event{Trigger: trig, At: clock})
		assert.Equal(t, Unregistered, d.From, trig)
		assert.Equal(t, ResponseRegistration, d.Response, trig)
		assert.Empty(t, d.Notices, trig)
	}
}

func TestCheckRegistration(t *testing.T) {
	t.Run("confirmed", func(t *testing.T) {
		d := Decide(record(false, false, false), Event{Trigger: TriggerCheckRegistration, Confirmed: true, At: clock})
		assert.True(t, d.Changed)
		assert.Equal(t, RegisteredNoDeposit, d.To)
		assert.Equal(t, ResponseDeposit, d.Response)
		require.NotNil(t, d.Next.RegistrationTime)
		assert.True(t, clock.Equal(*d.Next.RegistrationTime))
		require.Len(t, d.Notices, 1)
		assert.Equal(t, NoticeRegistration, d.Notices[0].Kind)
	})

	t.Run("denied", func(t *testing.T) {
		d := Decide(record(false, false, false), Event{Trigger: TriggerCheckRegistration, At: clock})
		assert.False(t, d.Changed)
		assert.Equal(t, ResponseRegistrationFailed, d.Response)
		assert.Empty(t, d.Notices)
	})

	t.Run("already registered repeats nothing", func(t *testing.T) {
		d := Decide(record(true, false, false), Event{Trigger: TriggerCheckRegistration, Confirmed: true, At: clock})
		assert.False(t, d.Changed)
		assert.Equal(t, ResponseDeposit, d.Response)
		assert.Empty(t, d.Notices)
	})
}

func TestDepositConfirmation(t *testing.T) {
	rec := record(true, false, false)
	rec.DepositMessageID = 555

	d := Decide(rec, Event{
		Trigger:   TriggerCheckDeposit,
		Confirmed: true,
		Country:   "in",
		Amount:    decimal.NewNullDecimal(decimal.NewFromInt(25)),
		At:        clock,
	})

	assert.True(t, d.Changed)
	assert.Equal(t, Deposited, d.To)
	assert.True(t, d.Next.Deposited)
	require.NotNil(t, d.Next.DepositTime)
	assert.True(t, clock.Equal(*d.Next.DepositTime))
	assert.True(t, d.RetractDeposit)
	assert.Equal(t, 555, d.Prev.DepositMessageID)
	assert.Zero(t, d.Next.DepositMessageID)
	assert.Equal(t, ResponseAccessVerified, d.Response)

	require.Len(t, d.Notices, 1)
	n := d.Notices[0]
	assert.Equal(t, NoticeDeposit, n.Kind)
	assert.EqualValues(t, 42, n.UserID)
	assert.Equal(t, "in", n.Country)
	assert.True(t, decimal.NewFromInt(25).Equal(n.Amount.Decimal))

	again := Decide(d.Next, Event{Trigger: TriggerCheckDeposit, Confirmed: true, At: clock})
	assert.False(t, again.Changed)
	assert.Empty(t, again.Notices)
	assert.Equal(t, ResponseAccessVerified, again.Response)
}

func TestCheckDepositBranches(t *testing.T) {
	pending := Decide(record(true, false, false), Event{Trigger: TriggerCheckDeposit, At: clock})
	assert.Equal(t, ResponseDepositPending, pending.Response)
	assert.False(t, pending.Changed)

	unreg := Decide(record(false, false, false), Event{Trigger: TriggerCheckDeposit, Confirmed: true, At: clock})
	assert.Equal(t, ResponseRegistration, unreg.Response)
	assert.False(t, unreg.Changed)
}

func TestOutOfBandConfirmations(t *testing.T) {
	d := Decide(record(false, false, false), Event{Trigger: TriggerDepositConfirmed, At: clock})
	assert.Equal(t, Deposited, d.To)
	require.Len(t, d.Notices, 2)
	assert.Equal(t, NoticeRegistration, d.Notices[0].Kind)
	assert.Equal(t, NoticeDeposit, d.Notices[1].Kind)

	dup := Decide(d.Next, Event{Trigger: TriggerDepositConfirmed, At: clock})
	assert.False(t, dup.Changed)
	assert.Equal(t, ResponseNone, dup.Response)

	reg := Decide(record(true, false, false), Event{Trigger: TriggerRegistrationConfirmed, At: clock})
	assert.False(t, reg.Changed)
	assert.Equal(t, ResponseNone, reg.Response)
}

func TestApproveIsIdempotent(t *testing.T) {
	once := Decide(user.New(1), Event{Trigger: TriggerApprove, At: clock})
	assert.True(t, once.Changed)
	assert.Equal(t, AdminApproved, once.To)
	assert.Equal(t, ResponseNone, once.Response)

	twice := Decide(once.Next, Event{Trigger: TriggerApprove, At: clock})
	assert.False(t, twice.Changed)
	assert.True(t, once.Next.Equal(twice.Next))
}

func TestResetIsIdempotent(t *testing.T) {
	d := Decide(record(true, true, true), Event{Trigger: TriggerReset, At: clock})
	assert.True(t, d.Changed)
	assert.Equal(t, Unregistered, d.To)
	assert.Nil(t, d.Next.RegistrationTime)
	assert.Nil(t, d.Next.DepositTime)

	again := Decide(user.New(42), Event{Trigger: TriggerReset, At: clock})
	assert.False(t, again.Changed)
	assert.Equal(t, ResponseNone, again.Response)
}

func TestRevokeAfterApprove(t *testing.T) {
	rec := record(true, false, false)
	rec = Decide(rec, Event{Trigger: TriggerApprove, At: clock}).Next
	rec.LastSignalMessageID = 99

	d := Decide(rec, Event{Trigger: TriggerRevoke, At: clock})
	assert.True(t, d.RetractSignal)
	assert.Equal(t, 99, d.Prev.LastSignalMessageID)
	assert.False(t, d.Next.AdminApproved)
	assert.Zero(t, d.Next.LastSignalMessageID)
	assert.Equal(t, RegisteredNoDeposit, d.To)
	assert.Equal(t, ResponseRevoked, d.Response)

	signal := Decide(d.Next, Event{Trigger: TriggerGetSignal, At: clock})
	assert.Equal(t, ResponseDeposit, signal.Response)
}

func TestLanguageAndStart(t *testing.T) {
	d := Decide(user.New(5), Event{Trigger: TriggerSetLanguage, Language: user.LangHI, At: clock})
	assert.True(t, d.Changed)
	assert.Equal(t, user.LangHI, d.Next.Language)
	assert.Equal(t, ResponseLanguageChanged, d.Response)

	start := Decide(d.Next, Event{Trigger: TriggerStart, Username: "ravi", At: clock})
	assert.Equal(t, user.LangHI, start.Next.Language)
	assert.Equal(t, "ravi", start.Next.Username)
	assert.Equal(t, ResponseMainMenu, start.Response)
}

func TestGrantsAccess(t *testing.T) {
	assert.True(t, ResponseAccessApproved.GrantsAccess())
	assert.True(t, ResponseAccessVerified.GrantsAccess())
	assert.False(t, ResponseDeposit.GrantsAccess())
}
