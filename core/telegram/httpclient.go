package telegram

import (
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/funnelbot/core/telegram/netutil"
)

// Bot API client limits. Long polls add their wait on top of the response
// and overall timeouts.
const (
	dialTimeout     = 5 * time.Second
	tlsTimeout      = 5 * time.Second
	headerTimeout   = 5 * time.Second
	requestTimeout  = 30 * time.Second
	idleConnTimeout = 30 * time.Second
	retryBackoff    = time.Second
)

// BuildHTTPClient returns the client telebot uses for every Bot API call.
// A dropped or refused connection is retried once.
func BuildHTTPClient(pollTimeout time.Duration) *http.Client {
	pollTimeout = max(pollTimeout, 0)
	dialer := &net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}
	return &http.Client{
		Timeout: requestTimeout + pollTimeout,
		Transport: &netutil.RetryTransport{
			Base: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           dialer.DialContext,
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       idleConnTimeout,
				TLSHandshakeTimeout:   tlsTimeout,
				ResponseHeaderTimeout: pollTimeout + headerTimeout,
				ExpectContinueTimeout: time.Second,
			},
			Retries: 1,
			Backoff: retryBackoff,
		},
	}
}
