package netutil

import (
	"net/http"
	"time"
)

// RetryTransport repeats a round trip after a Transient failure, waiting
// Backoff times the attempt number between tries. Requests whose body
// cannot be replayed are tried once.
type RetryTransport struct {
	Base    http.RoundTripper
	Retries int
	Backoff time.Duration
}

func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	replayable := req.Body == nil || req.Body == http.NoBody || req.GetBody != nil

	resp, err := base.RoundTrip(req)
	for attempt := 1; err != nil && attempt <= t.Retries && replayable && Transient(err); attempt++ {
		if werr := wait(req, t.Backoff*time.Duration(attempt)); werr != nil {
			return nil, werr
		}
		next := req.Clone(req.Context())
		if req.GetBody != nil {
			if next.Body, err = req.GetBody(); err != nil {
				return nil, err
			}
		}
		resp, err = base.RoundTrip(next)
	}
	return resp, err
}

func wait(req *http.Request, d time.Duration) error {
	if d <= 0 {
		return req.Context().Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-req.Context().Done():
		return req.Context().Err()
	case <-timer.C:
		return nil
	}
}
