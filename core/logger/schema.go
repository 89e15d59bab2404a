package logger

import "strings"

const (
	// LevelDebug represents the debug severity level name.
	LevelDebug = "DEBUG"
	// LevelInfo represents the info severity level name.
	LevelInfo = "INFO"
	// LevelWarn represents the warning severity level name.
	LevelWarn = "WARN"
	// LevelError represents the error severity level name.
	LevelError = "ERROR"
	// LevelFatal represents the fatal severity level name.
	LevelFatal = "FATAL"
)

var allowedLevels = map[string]string{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
	"fatal":   LevelFatal,
}

// Closed vocabularies for the status and outcome fields. Unknown statuses
// are kept as written; unknown outcomes are dropped.
var (
	knownStatus  = set("ok", "fail", "skip", "retry", "rate_limited", "cancelled")
	knownOutcome = set("ok", "fail", "cancelled", "rate_limited")
)

func set(values ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}

func normalizeLevel(level string) string {
	if level == "" {
		return LevelInfo
	}
	if mapped, ok := allowedLevels[strings.ToLower(level)]; ok {
		return mapped
	}
	return strings.ToUpper(level)
}

// normalizeEnum lowercases v and reports whether it is in vocab.
func normalizeEnum(v string, vocab map[string]struct{}) (string, bool) {
	v = strings.ToLower(strings.TrimSpace(v))
	_, ok := vocab[v]
	return v, ok && v != ""
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"chat_type",
	"handler",
	"operation",
	"op",
	"cb_key",
	"outcome",
	"duration_ms",
	"messages",
	"kb",
	"count",
	"lang",
	"username",
	"mode",
	"listen",
	"public_url",
	"http_code",
	"db",
	"host",
	"port",
	"target_id",
	"from_state",
	"to_state",
	"trigger",
	"response",
	"format",
	"fallbacks",
	"run_id",
	"total",
	"sent",
	"failed",
	"blocked",
	"err",
	"err_code",
	"cause",
	"retryable",
	"attempts",
	"backoff_ms",
	"rate_limited",
	"rejected",
	"repeats",
	"pending_count",
	"driver",
	"path",
	"method",
	"code",
	"recipients",
	"photo",
}

// Component names used by the application loggers.
const (
	CompApp      = "app"
	CompStore    = "store"
	CompFunnel   = "funnel"
	CompNotify   = "notify"
	CompAdmin    = "admin"
	CompPostback = "postback"
	CompLock     = "lock"
	CompVerify   = "verify"
	CompTG       = "tg"
)
