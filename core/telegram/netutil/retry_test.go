package netutil

import (
	"context"
	"errors"
	"net"
	"net/url"
	"syscall"
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestShouldRetry(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"dial", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"url timeout", &url.Error{Op: "Post", URL: "https://api.telegram.org", Err: context.DeadlineExceeded}, true},
		{"flood", tele.FloodError{RetryAfter: 3}, true},
		{"server", &tele.Error{Code: 502, Description: "Bad Gateway"}, true},
		{"canceled", &url.Error{Op: "Post", URL: "https://api.telegram.org", Err: context.Canceled}, false},
		{"reset", &url.Error{Op: "Post", URL: "https://api.telegram.org", Err: syscall.ECONNRESET}, true},
		{"bad request", &tele.Error{Code: 400, Description: "chat not found"}, false},
	}
	for _, tc := range cases {
		if got := ShouldRetry(tc.err); got != tc.want {
			t.Fatalf("%s: ShouldRetry = %v, want %v", tc.name, got, tc.want)
		}
	}
}
