package telegram

import (
	"net"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/funnelbot/core/config"
)

const defaultLongPollTimeout = 10 * time.Second

// pollerFor picks the update source for the configured run mode. In
// webhook mode Telegram must send the configured secret with each update.
func pollerFor(cfg *coreconfig.Config) tele.Poller {
	if cfg.Telegram.RunMode != coreconfig.RunModeWebhook {
		return &tele.LongPoller{Timeout: LongPollTimeout(cfg.Telegram.LongPollTimeoutSeconds)}
	}
	wh := cfg.Webhook
	return &tele.Webhook{
		Listen:      net.JoinHostPort(wh.Listen, strconv.Itoa(wh.Port)),
		SecretToken: wh.SecretToken,
		DropUpdates: wh.DropPending,
		Endpoint:    &tele.WebhookEndpoint{PublicURL: wh.URL},
	}
}

// LongPollTimeout converts configured seconds into a poll timeout; zero
// or less selects the default.
func LongPollTimeout(seconds int) time.Duration {
	if seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultLongPollTimeout
}
