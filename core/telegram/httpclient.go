package telegram

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/enrollbot/core/logger"
	"github.com/m3rciful/enrollbot/core/telegram/netutil"
)

// HTTPClientOptions tunes BuildHTTPClient. Zero fields take defaults.
type HTTPClientOptions struct {
	Timeout        time.Duration
	RetryAttempts  int
	RetryBackoff   time.Duration
	ResponseHeader time.Duration
}

func (o HTTPClientOptions) withDefaults() HTTPClientOptions {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.RetryAttempts < 0 {
		o.RetryAttempts = 0
	} else if o.RetryAttempts == 0 {
		o.RetryAttempts = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.ResponseHeader <= 0 {
		// Long polling holds the response open for the poll timeout.
		o.ResponseHeader = defaultLongPollTimeout + 5*time.Second
	}
	return o
}

// BuildHTTPClient returns a client for Bot API calls that retries transport
// errors with linear backoff. HTTP error statuses are returned as is.
func BuildHTTPClient(opts HTTPClientOptions) *http.Client {
	opts = opts.withDefaults()
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: opts.ResponseHeader,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Timeout: opts.Timeout,
		Transport: &retryTransport{
			base:       base,
			maxRetries: opts.RetryAttempts,
			backoff:    opts.RetryBackoff,
		},
	}
}

type retryTransport struct {
	base       http.RoundTripper
	maxRetries int
	backoff    time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	ctx := req.Context()

	resp, err := base.RoundTrip(req)
	for attempt := 1; err != nil && attempt <= t.maxRetries && netutil.ShouldRetry(err); attempt++ {
		// A consumed body without GetBody cannot be replayed.
		if req.Body != nil && req.GetBody == nil {
			break
		}
		wait := t.backoff * time.Duration(attempt)
		logger.Debug(ctx, "tg", "http.retry",
			slog.Int("attempt", attempt),
			slog.Duration("backoff", wait),
			slog.String("err", err.Error()),
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		next := req.Clone(ctx)
		if req.GetBody != nil {
			body, berr := req.GetBody()
			if berr != nil {
				return nil, berr
			}
			next.Body = body
		}
		resp, err = base.RoundTrip(next)
	}
	return resp, err
}
