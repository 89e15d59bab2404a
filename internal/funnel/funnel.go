// Package funnel decides how a user moves through registration, deposit and
// admin approval. It never touches storage or the network: callers pass a
// record snapshot and persist Decision.Next themselves.
package funnel

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/funnelbot/internal/user"
)

// State is the funnel position derived from a record.
type State string

const (
	Unregistered        State = "UNREGISTERED"
	RegisteredNoDeposit State = "REGISTERED_NO_DEPOSIT"
	Deposited           State = "DEPOSITED"
	AdminApproved       State = "ADMIN_APPROVED"
)

// BaseState ignores the approval overlay.
func BaseState(r user.Record) State {
	switch {
	case !r.Registered:
		return Unregistered
	case !r.Deposited:
		return RegisteredNoDeposit
	default:
		return Deposited
	}
}

// StateOf returns the effective state; approval wins over everything.
func StateOf(r user.Record) State {
	if r.AdminApproved {
		return AdminApproved
	}
	return BaseState(r)
}

// Trigger names an inbound event.
type Trigger string

const (
	TriggerStart             Trigger = "start"
	TriggerSetLanguage       Trigger = "set_language"
	TriggerRegister          Trigger = "register"
	TriggerCheckRegistration Trigger = "check_registration"
	TriggerCheckDeposit      Trigger = "check_deposit"
	TriggerGetSignal         Trigger = "get_signal"
	TriggerApprove           Trigger = "approve"
	TriggerRevoke            Trigger = "revoke"
	TriggerReset             Trigger = "reset"

	// Confirmations that arrive from partner postbacks or manual admin
	// marks rather than from the user.
	TriggerRegistrationConfirmed Trigger = "registration_confirmed"
	TriggerDepositConfirmed      Trigger = "deposit_confirmed"
)

// Response is the screen the caller should render after a decision.
type Response string

const (
	ResponseNone               Response = ""
	ResponseMainMenu           Response = "main_menu"
	ResponseLanguageChanged    Response = "language_changed"
	ResponseRegistration       Response = "registration"
	ResponseRegistrationFailed Response = "registration_failed"
	ResponseDeposit            Response = "deposit"
	ResponseDepositPending     Response = "deposit_pending"
	ResponseAccessApproved     Response = "access_approved"
	ResponseAccessVerified     Response = "access_verified"
	ResponseRevoked            Response = "revoked"
)

// GrantsAccess reports whether the response carries the signal launcher.
func (r Response) GrantsAccess() bool {
	return r == ResponseAccessApproved || r == ResponseAccessVerified
}

// Event is one trigger with its inputs.
type Event struct {
	Trigger Trigger

	// Confirmed is the verification or postback outcome for check triggers.
	Confirmed bool
	Amount    decimal.NullDecimal
	Country   string
	Language  user.Lang
	Username  string
	At        time.Time

	// Tapped is the message whose button raised the event. The caller has
	// already removed it, so it is never retracted again.
	Tapped int
}

// NoticeKind selects the admin notification template.
type NoticeKind string

const (
	NoticeRegistration NoticeKind = "registration"
	NoticeDeposit      NoticeKind = "deposit"
)

// Notice is an admin notification produced by a transition.
type Notice struct {
	Kind    NoticeKind
	UserID  int64
	Country string
	Amount  decimal.NullDecimal
	At      time.Time
}

// Decision is the outcome of applying an Event to a record.
type Decision struct {
	Prev     user.Record
	Next     user.Record
	From     State
	To       State
	Changed  bool
	Response Response
	Notices  []Notice

	// RetractDeposit asks the caller to delete Prev.DepositMessageID.
	RetractDeposit bool

	// RetractSignal asks the caller to delete Prev.LastSignalMessageID.
	RetractSignal bool
}

// Decide applies ev to rec. rec may be the default record of an unseen id.
func Decide(rec user.Record, ev Event) Decision {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()

	prev := rec
	prev.Normalize()
	next := prev
	d := Decision{Prev: prev}

	switch ev.Trigger {
	case TriggerStart:
		if ev.Username != "" {
			next.Username = ev.Username
		}
		d.Response = ResponseMainMenu

	case TriggerSetLanguage:
		next.Language = user.ParseLang(string(ev.Language))
		d.Response = ResponseLanguageChanged

	case TriggerRegister:
		d.Response = progressResponse(prev)

	case TriggerCheckRegistration:
		switch {
		case prev.Registered:
			d.Response = progressResponse(prev)
		case ev.Confirmed:
			markRegistered(&next, at)
			d.Notices = append(d.Notices, Notice{Kind: NoticeRegistration, UserID: prev.ID, At: at})
			d.Response = ResponseDeposit
		default:
			d.Response = ResponseRegistrationFailed
		}

	case TriggerCheckDeposit:
		switch BaseState(prev) {
		case Unregistered:
			d.Response = ResponseRegistration
		case Deposited:
			d.Response = ResponseAccessVerified
		default:
			if !ev.Confirmed {
				d.Response = ResponseDepositPending
				break
			}
			d.Notices = append(d.Notices, markDeposited(&next, ev, at))
			d.RetractDeposit = prev.DepositMessageID != 0
			d.Response = ResponseAccessVerified
		}

	case TriggerRegistrationConfirmed:
		if prev.Registered {
			break
		}
		markRegistered(&next, at)
		d.Notices = append(d.Notices, Notice{Kind: NoticeRegistration, UserID: prev.ID, At: at})
		d.Response = ResponseDeposit

	case TriggerDepositConfirmed:
		if prev.Deposited {
			break
		}
		if !prev.Registered {
			markRegistered(&next, at)
			d.Notices = append(d.Notices, Notice{Kind: NoticeRegistration, UserID: prev.ID, At: at})
		}
		d.Notices = append(d.Notices, markDeposited(&next, ev, at))
		d.RetractDeposit = prev.DepositMessageID != 0
		d.Response = ResponseAccessVerified

	case TriggerGetSignal:
		if prev.AdminApproved {
			d.Response = ResponseAccessApproved
			break
		}
		d.Response = progressResponse(prev)

	case TriggerApprove:
		next.AdminApproved = true

	case TriggerRevoke:
		next.AdminApproved = false
		d.RetractSignal = prev.LastSignalMessageID != 0
		next.LastSignalMessageID = 0
		d.Response = ResponseRevoked

	case TriggerReset:
		next.Registered = false
		next.Deposited = false
		next.AdminApproved = false
	}

	if d.RetractDeposit {
		next.DepositMessageID = 0
	}
	next.Normalize()

	d.Next = next
	d.From = StateOf(prev)
	d.To = StateOf(next)
	d.Changed = !next.Equal(prev)
	return d
}

// progressResponse routes by funnel position without the approval overlay.
func progressResponse(r user.Record) Response {
	switch BaseState(r) {
	case Unregistered:
		return ResponseRegistration
	case RegisteredNoDeposit:
		return ResponseDeposit
	default:
		return ResponseAccessVerified
	}
}

func markRegistered(r *user.Record, at time.Time) {
	r.Registered = true
	t := at
	r.RegistrationTime = &t
}

func markDeposited(r *user.Record, ev Event, at time.Time) Notice {
	r.Deposited = true
	t := at
	r.DepositTime = &t
	if ev.Country != "" {
		r.Country = ev.Country
	}
	if ev.Amount.Valid {
		r.Amount = ev.Amount
	}
	return Notice{
		Kind:    NoticeDeposit,
		UserID:  r.ID,
		Country: r.Country,
		Amount:  r.Amount,
		At:      at,
	}
}
