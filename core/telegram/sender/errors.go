package sender

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"regexp"

	tele "gopkg.in/telebot.v4"
)

var tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)

// redactToken hides bot tokens that net/http embeds in request URLs.
func redactToken(msg string) string {
	return tokenRe.ReplaceAllString(msg, "bot<redacted>")
}

// classifyError buckets err for the err_kind log attribute.
func classifyError(err error) string {
	var (
		dnsErr   *net.DNSError
		opErr    *net.OpError
		netErr   net.Error
		alertErr tls.AlertError
		flood    tele.FloodError
		apiErr   *tele.Error
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &flood):
		return "flood"
	case errors.As(err, &apiErr):
		if apiErr.Code >= 500 {
			return "http_5xx"
		}
		return "http_4xx"
	case errors.As(err, &dnsErr):
		if dnsErr.IsTimeout {
			return "timeout"
		}
		return "dns"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return "dial"
	case errors.As(err, &alertErr):
		return "tls"
	}
	return "unknown"
}
