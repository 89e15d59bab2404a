package state

import tele "gopkg.in/telebot.v4"

// State names a dialog step.
type State string

// StateIdle means no dialog is open.
const StateIdle State = "idle"

// Manager tracks which dialog step each user is in and routes their next
// input to the handler bound to that step.
type Manager interface {
	// Handle binds the handler invoked for input received while in st.
	Handle(st State, h tele.HandlerFunc)

	SetState(userID int64, st State)
	GetState(userID int64) State
	// ClearState returns the user to StateIdle.
	ClearState(userID int64)
	// Clear forgets the user entirely.
	Clear(userID int64)

	InProgress(userID int64) bool
	ManagerHandler(c tele.Context) error
}
