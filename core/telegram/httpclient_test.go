package telegram

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"
)

type scriptedTransport struct {
	errs   []error
	calls  int
	bodies []string
}

func (s *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	s.calls++
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		s.bodies = append(s.bodies, string(b))
	}
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("{}"))}, nil
}

func dialErr() error {
	return &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
}

func TestRetryTransportRecoversAfterDialError(t *testing.T) {
	base := &scriptedTransport{errs: []error{dialErr(), dialErr()}}
	rt := &retryTransport{base: base, maxRetries: 3, backoff: time.Millisecond}

	req, _ := http.NewRequest(http.MethodPost, "https://api.telegram.org/botX/sendMessage", strings.NewReader(`{"a":1}`))
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	resp.Body.Close()
	if base.calls != 3 {
		t.Fatalf("calls = %d, want 3", base.calls)
	}
	for i, b := range base.bodies {
		if b != `{"a":1}` {
			t.Fatalf("attempt %d body = %q", i, b)
		}
	}
}

func TestRetryTransportGivesUp(t *testing.T) {
	base := &scriptedTransport{errs: []error{dialErr(), dialErr(), dialErr()}}
	rt := &retryTransport{base: base, maxRetries: 1, backoff: time.Millisecond}

	req, _ := http.NewRequest(http.MethodGet, "https://api.telegram.org/botX/getMe", nil)
	if _, err := rt.RoundTrip(req); err == nil {
		t.Fatalf("expected error after retries are exhausted")
	}
	if base.calls != 2 {
		t.Fatalf("calls = %d, want 2", base.calls)
	}
}

func TestRetryTransportSkipsPermanentErrors(t *testing.T) {
	base := &scriptedTransport{errs: []error{errors.New("bad request")}}
	rt := &retryTransport{base: base, maxRetries: 3, backoff: time.Millisecond}

	req, _ := http.NewRequest(http.MethodGet, "https://api.telegram.org/botX/getMe", nil)
	if _, err := rt.RoundTrip(req); err == nil {
		t.Fatalf("expected error")
	}
	if base.calls != 1 {
		t.Fatalf("calls = %d, want 1", base.calls)
	}
}

func TestRetryTransportStopsOnCancel(t *testing.T) {
	base := &scriptedTransport{errs: []error{dialErr(), dialErr()}}
	rt := &retryTransport{base: base, maxRetries: 3, backoff: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.telegram.org/botX/getMe", nil)
	if _, err := rt.RoundTrip(req); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestHTTPClientOptionsDefaults(t *testing.T) {
	o := HTTPClientOptions{}.withDefaults()
	if o.Timeout != 30*time.Second || o.RetryAttempts != 3 || o.RetryBackoff != 2*time.Second {
		t.Fatalf("defaults = %+v", o)
	}
	if o.ResponseHeader <= defaultLongPollTimeout {
		t.Fatalf("response header timeout %v must exceed the poll timeout", o.ResponseHeader)
	}
	if got := (HTTPClientOptions{RetryAttempts: -1}).withDefaults().RetryAttempts; got != 0 {
		t.Fatalf("negative retries = %d, want 0", got)
	}
}
