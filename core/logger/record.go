package logger

import (
	"bytes"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// record is the flattened field set of one log line.
type record map[string]any

func newRecord() record { return make(record, 16) }

func (r record) set(key string, v any) { r[key] = v }

func (r record) str(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// fallback sets key to the first non-empty candidate unless it already has
// a value.
func (r record) fallback(key string, candidates ...string) {
	if r.str(key) != "" {
		return
	}
	for _, c := range candidates {
		if c != "" {
			r[key] = c
			return
		}
	}
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	}
	return prefix + "." + key
}

// add flattens a into r; groups become dotted keys.
func (r record) add(prefix string, a slog.Attr) {
	key := joinKey(prefix, a.Key)
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, child := range v.Group() {
			r.add(key, child)
		}
		return
	}
	if key == "" {
		return
	}
	if k, val, ok := convert(key, v); ok {
		r[k] = val
	}
}

func (r record) fromMeta(m Meta) {
	put := func(key string, v any, ok bool) {
		if _, taken := r[key]; ok && !taken {
			r[key] = v
		}
	}
	put("rid", m.RID, m.RID != "")
	put("update_id", m.UpdateID, m.UpdateID != 0)
	put("user_id", m.UserID, m.UserID != 0)
	put("chat_id", m.ChatID, m.ChatID != 0)
	put("handler", m.Handler, m.Handler != "")
}

// compactRID shortens update RIDs. JSON output keeps the raw value in
// rid_full.
func (r record) compactRID(keepFull bool) {
	rid := r.str("rid")
	if rid == "" {
		return
	}
	short := CompactRID(rid)
	if short == rid {
		return
	}
	if _, ok := r["rid_full"]; keepFull && !ok {
		r["rid_full"] = rid
	}
	r["rid"] = short
}

// normalize canonicalizes level, status and outcome, then drops empty
// values.
func (r record) normalize() {
	r["level"] = normalizeLevel(r.str("level"))
	if s := r.str("status"); s != "" {
		r["status"], _ = normalizeEnum(s, knownStatus)
	}
	if o := r.str("outcome"); o != "" {
		if norm, ok := normalizeEnum(o, knownOutcome); ok {
			r["outcome"] = norm
		} else {
			delete(r, "outcome")
		}
	}
	for k, v := range r {
		if v == nil || v == "" {
			delete(r, k)
		}
	}
}

// keys lists order first (when present), then the rest alphabetically.
func (r record) keys(order []string) []string {
	out := make([]string, 0, len(r))
	placed := make(map[string]bool, len(order))
	for _, k := range order {
		if _, ok := r[k]; ok && !placed[k] {
			out = append(out, k)
			placed[k] = true
		}
	}
	n := len(out)
	for k := range r {
		if !placed[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out[n:])
	return out
}

func (r record) json(order []string) ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, k := range r.keys(order) {
		v, err := json.Marshal(r[k])
		if err != nil {
			return nil, fmt.Errorf("logger: encode %s: %w", k, err)
		}
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(k))
		b.WriteByte(':')
		b.Write(v)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

func (r record) kv(order []string) []byte {
	var b bytes.Buffer
	for i, k := range r.keys(order) {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(kvValue(r[k]))
	}
	return b.Bytes()
}

func kvValue(v any) string {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		s = fmt.Sprint(x)
	}
	if strings.ContainsFunc(s, func(c rune) bool { return c <= ' ' || c == '=' || c == '"' }) {
		return strconv.Quote(s)
	}
	return s
}

// convert maps a slog value to its logged form. Durations are written in
// whole milliseconds under a *_ms key; strings have bot tokens masked.
func convert(key string, v slog.Value) (string, any, bool) {
	switch v.Kind() {
	case slog.KindString:
		return key, redactTokens(strings.TrimSpace(v.String())), true
	case slog.KindBool:
		return key, v.Bool(), true
	case slog.KindInt64:
		return key, v.Int64(), true
	case slog.KindUint64:
		if u := v.Uint64(); u <= math.MaxInt64 {
			return key, int64(u), true
		}
		return key, v.Uint64(), true
	case slog.KindFloat64:
		return key, v.Float64(), true
	case slog.KindDuration:
		return durationKey(key), RoundMS(v.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, v.Time().UTC().Format(time.RFC3339Nano), true
	}
	switch x := v.Any().(type) {
	case nil:
		return key, nil, false
	case error:
		return key, redactTokens(x.Error()), true
	case fmt.Stringer:
		return key, redactTokens(x.String()), true
	default:
		return key, fmt.Sprint(x), true
	}
}

// durationKey appends _ms unless the key already ends in it; "duration"
// becomes "duration_ms".
func durationKey(key string) string {
	if strings.HasSuffix(key, "_ms") {
		return key
	}
	return key + "_ms"
}

// botToken matches a Telegram bot token as it appears in API URLs.
var botToken = regexp.MustCompile(`\d{6,12}:[A-Za-z0-9_-]{30,}`)

func redactTokens(s string) string {
	if !strings.Contains(s, ":") {
		return s
	}
	return botToken.ReplaceAllString(s, "<token>")
}
