// Package netutil classifies Bot API call failures.
package netutil

import (
	"context"
	"errors"
	"net"
	"syscall"

	tele "gopkg.in/telebot.v4"
)

// ShouldRetry reports whether err is transient: flood control, a 5xx from the
// Bot API, a timeout, or a connection that could not be established or was
// reset. Anything else, including context cancellation, is final.
func ShouldRetry(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled):
		return false
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		return true
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED)
}
