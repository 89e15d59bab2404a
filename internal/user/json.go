package user

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// Layouts accepted for stored timestamps. Older files carry naive ISO
// timestamps without a zone; those are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// flag is a boolean stored as 0/1 that also accepts JSON booleans.
type flag bool

func (f flag) MarshalJSON() ([]byte, error) {
	if f {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}

func (f *flag) UnmarshalJSON(data []byte) error {
	switch strings.TrimSpace(string(data)) {
	case "1", "true", `"1"`, `"true"`:
		*f = true
	case "0", "false", "null", `""`, `"0"`, `"false"`:
		*f = false
	default:
		return fmt.Errorf("invalid flag value %s", data)
	}
	return nil
}

// stamp is a nullable timestamp.
type stamp struct{ t *time.Time }

func (s stamp) MarshalJSON() ([]byte, error) {
	if s.t == nil {
		return []byte("null"), nil
	}
	return json.Marshal(s.t.UTC().Format(time.RFC3339Nano))
}

func (s *stamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		s.t = nil
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		s.t = nil
		return nil
	}
	t, err := ParseTime(raw)
	if err != nil {
		return err
	}
	s.t = &t
	return nil
}

// ParseTime parses a stored timestamp in any accepted layout.
func ParseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", raw)
}

// amount is written as a bare JSON number and read from numbers or strings.
type amount struct{ d decimal.NullDecimal }

func (a amount) MarshalJSON() ([]byte, error) {
	if !a.d.Valid {
		return []byte("null"), nil
	}
	return []byte(a.d.Decimal.String()), nil
}

func (a *amount) UnmarshalJSON(data []byte) error {
	return a.d.UnmarshalJSON(data)
}

type recordJSON struct {
	ID                  int64  `json:"id"`
	Username            string `json:"username"`
	Language            string `json:"language,omitempty"`
	Registered          flag   `json:"registered"`
	RegistrationTime    stamp  `json:"registration_time"`
	Deposited           flag   `json:"deposited"`
	DepositTime         stamp  `json:"deposit_time"`
	Country             string `json:"country,omitempty"`
	Amount              amount `json:"amount"`
	AdminApproved       flag   `json:"admin_approved"`
	LastSignalMessageID int    `json:"last_signal_message_id"`
	DepositMessageID    int    `json:"deposit_message_id,omitempty"`
}

// MarshalJSON writes the record in the users.json layout.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		ID:                  r.ID,
		Username:            r.Username,
		Language:            string(r.Lang()),
		Registered:          flag(r.Registered),
		RegistrationTime:    stamp{r.RegistrationTime},
		Deposited:           flag(r.Deposited),
		DepositTime:         stamp{r.DepositTime},
		Country:             r.Country,
		Amount:              amount{r.Amount},
		AdminApproved:       flag(r.AdminApproved),
		LastSignalMessageID: r.LastSignalMessageID,
		DepositMessageID:    r.DepositMessageID,
	})
}

// UnmarshalJSON reads the users.json layout, tolerating missing fields.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Record{
		ID:                  raw.ID,
		Username:            raw.Username,
		Language:            ParseLang(raw.Language),
		Registered:          bool(raw.Registered),
		RegistrationTime:    raw.RegistrationTime.t,
		Deposited:           bool(raw.Deposited),
		DepositTime:         raw.DepositTime.t,
		Country:             raw.Country,
		Amount:              raw.Amount.d,
		AdminApproved:       bool(raw.AdminApproved),
		LastSignalMessageID: raw.LastSignalMessageID,
		DepositMessageID:    raw.DepositMessageID,
	}
	return nil
}
