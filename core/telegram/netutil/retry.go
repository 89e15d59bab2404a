// Package netutil classifies network failures of outbound HTTP calls.
package netutil

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// Transient reports whether err looks like a network hiccup that a second
// attempt may get past: timeouts, refused or reset connections, failed dials
// and connections closed mid-response. HTTP status errors are not transient
// here; callers decide on those.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTimeout || dnsErr.IsTemporary
	}
	// url.Error and net.OpError both satisfy net.Error and unwrap to the
	// cause, so Timeout covers wrapped deadlines too.
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
