package sender

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/funnelbot/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

// Kind groups outbound failures by how the caller should react.
type Kind int

const (
	// KindNone means no error.
	KindNone Kind = iota
	// KindRateLimited means Telegram asked to wait before the next call.
	KindRateLimited
	// KindTransient covers timeouts, conflicts, network and 5xx failures.
	KindTransient
	// KindBlocked means the recipient blocked the bot, left or was deactivated.
	KindBlocked
	// KindPermanent covers every other rejection (bad request, bad markup, ...).
	KindPermanent
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	case KindBlocked:
		return "blocked"
	}
	return "permanent"
}

var (
	tokenRe      = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)
	retryAfterRe = regexp.MustCompile(`retry after (\d+)`)

	blockedMarkers = []string{
		"bot was blocked",
		"user is deactivated",
		"chat not found",
		"bot was kicked",
		"bot can't initiate",
		"have no rights to send",
	}
)

// Classify maps an outbound error to a Kind.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	if _, ok := RetryAfter(err); ok {
		return KindRateLimited
	}
	if IsBlocked(err) {
		return KindBlocked
	}
	if errors.Is(err, context.DeadlineExceeded) || netutil.Transient(err) {
		return KindTransient
	}
	status := httpStatusFromError(err)
	switch {
	case status == http.StatusConflict, status == http.StatusTooManyRequests, status >= 500:
		return KindTransient
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "conflict") || strings.Contains(msg, "timed out") || strings.Contains(msg, "timeout") {
		return KindTransient
	}
	return KindPermanent
}

// RetryAfter extracts the wait requested by a rate-limit response.
func RetryAfter(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	var delayed interface{ RetryDelay() time.Duration }
	if errors.As(err, &delayed) {
		return delayed.RetryDelay(), true
	}
	var floodErr tele.FloodError
	if errors.As(err, &floodErr) {
		return time.Duration(floodErr.RetryAfter) * time.Second, true
	}
	var floodPtr *tele.FloodError
	if errors.As(err, &floodPtr) && floodPtr != nil {
		return time.Duration(floodPtr.RetryAfter) * time.Second, true
	}
	if httpStatusFromError(err) == http.StatusTooManyRequests {
		if m := retryAfterRe.FindStringSubmatch(strings.ToLower(err.Error())); len(m) == 2 {
			if sec, convErr := strconv.Atoi(m[1]); convErr == nil {
				return time.Duration(sec) * time.Second, true
			}
		}
	}
	return 0, false
}

// IsBlocked reports whether the recipient can no longer be reached.
func IsBlocked(err error) bool {
	if err == nil {
		return false
	}
	if httpStatusFromError(err) == http.StatusForbidden {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range blockedMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Redact strips bot tokens from error text.
func Redact(err error) string {
	return sanitizeErrorMessage(err)
}

// describeError gives a finer label than Classify for log lines.
func describeError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return "timeout"
		}
		return "dns"
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return "timeout"
		}
		if opErr.Op == "dial" {
			return "dial"
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return "timeout"
	}

	var alertErr tls.AlertError
	if errors.As(err, &alertErr) {
		return "tls"
	}

	status := httpStatusFromError(err)
	switch {
	case status == http.StatusTooManyRequests:
		return "rate_limited"
	case status == http.StatusForbidden:
		return "forbidden"
	case status >= 500:
		return "http_5xx"
	case status >= 400:
		return "http_4xx"
	}
	return Classify(err).String()
}

func sanitizeErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if msg == "" {
		return ""
	}
	return tokenRe.ReplaceAllString(msg, "bot<redacted>")
}

func httpStatusFromError(err error) int {
	if err == nil {
		return 0
	}

	var apiErr *tele.Error
	if errors.As(err, &apiErr) && apiErr.Code != 0 {
		return apiErr.Code
	}

	var coded interface{ StatusCode() int }
	if errors.As(err, &coded) {
		return coded.StatusCode()
	}

	var groupErr tele.GroupError
	if errors.As(err, &groupErr) {
		return http.StatusBadRequest
	}

	msg := err.Error()
	lastOpen := strings.LastIndex(msg, "(")
	lastClose := strings.LastIndex(msg, ")")
	if lastOpen >= 0 && lastClose > lastOpen+1 {
		codeStr := strings.TrimSpace(msg[lastOpen+1 : lastClose])
		if code, convErr := strconv.Atoi(codeStr); convErr == nil {
			return code
		}
	}
	return 0
}
