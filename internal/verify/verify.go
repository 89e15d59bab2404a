// Package verify asks the partner API whether a user registered or deposited.
// Every failure reads as "not confirmed".
package verify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/m3rciful/funnelbot/core/logger"
	"github.com/m3rciful/funnelbot/core/telegram/netutil"
)

// DefaultTimeout bounds one verification request.
const DefaultTimeout = 10 * time.Second

// A dropped or refused connection gets one more try after retryDelay.
const retryDelay = 300 * time.Millisecond

// Client calls GET {base}/verify-registration/{id} and
// GET {base}/verify-deposit/{id}.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a client. An empty baseURL yields a disabled client.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: &netutil.RetryTransport{Retries: 1, Backoff: retryDelay},
		},
	}
}

// Enabled reports whether a base URL is configured.
func (c *Client) Enabled() bool { return c != nil && c.baseURL != "" }

// Deposit is the deposit check outcome.
type Deposit struct {
	Confirmed bool
	Amount    decimal.NullDecimal
}

type registrationBody struct {
	Registered bool `json:"registered"`
}

type depositBody struct {
	Deposited bool                `json:"deposited"`
	Amount    decimal.NullDecimal `json:"amount"`
}

// Registration reports whether the partner confirms registration.
func (c *Client) Registration(ctx context.Context, userID int64) bool {
	if !c.Enabled() {
		return false
	}
	var body registrationBody
	if err := c.get(ctx, fmt.Sprintf("%s/verify-registration/%d", c.baseURL, userID), &body); err != nil {
		c.failed(ctx, "verify.registration", userID, err)
		return false
	}
	return body.Registered
}

// Deposit reports whether the partner confirms a deposit and its amount.
func (c *Client) Deposit(ctx context.Context, userID int64) Deposit {
	if !c.Enabled() {
		return Deposit{}
	}
	var body depositBody
	if err := c.get(ctx, fmt.Sprintf("%s/verify-deposit/%d", c.baseURL, userID), &body); err != nil {
		c.failed(ctx, "verify.deposit", userID, err)
		return Deposit{}
	}
	return Deposit{Confirmed: body.Deposited, Amount: body.Amount}
}

func (c *Client) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

func (c *Client) failed(ctx context.Context, event string, userID int64, err error) {
	logger.Warn(ctx, logger.CompVerify, event,
		slog.String("status", "fail"),
		slog.Int64("target_id", userID),
		slog.String("err", err.Error()),
	)
}
