package telegram

import (
	"net"
	"strconv"
	"time"

	coreconfig "github.com/m3rciful/enrollbot/core/config"

	tele "gopkg.in/telebot.v4"
)

const defaultLongPollTimeout = 10 * time.Second

// AllowedUpdates limits delivery to the update kinds the bots handle.
var AllowedUpdates = []string{"message", "callback_query"}

// BuildPoller returns a webhook or long poller for the normalized cfg.
func BuildPoller(cfg *coreconfig.Config) tele.Poller {
	if cfg.Telegram.RunMode == coreconfig.RunModeWebhook {
		wh := cfg.Webhook
		return &tele.Webhook{
			Listen:         net.JoinHostPort(wh.Listen, strconv.Itoa(wh.Port)),
			AllowedUpdates: AllowedUpdates,
			SecretToken:    wh.SecretToken,
			Endpoint:       &tele.WebhookEndpoint{PublicURL: wh.URL},
		}
	}
	return &tele.LongPoller{
		Timeout:        longPollTimeout(cfg),
		AllowedUpdates: AllowedUpdates,
	}
}

func longPollTimeout(cfg *coreconfig.Config) time.Duration {
	if s := cfg.Telegram.LongPollTimeoutSeconds; s > 0 {
		return time.Duration(s) * time.Second
	}
	return defaultLongPollTimeout
}
