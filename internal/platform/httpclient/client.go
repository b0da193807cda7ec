package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// RequestFunc builds the outbound request bound to the per-call context.
type RequestFunc func(ctx context.Context) (*http.Request, error)

// ResponseFunc consumes the response while the call deadline still holds.
// The body is closed by the client afterwards.
type ResponseFunc func(resp *http.Response) error

// TimeoutError reports that one outbound call exceeded its own deadline.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
	Cause   error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, FormatTimeout(e.Timeout))
}

func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// FormatTimeout renders whole seconds as "N seconds" and anything finer in
// milliseconds.
func FormatTimeout(d time.Duration) string {
	if d >= time.Second && d%time.Second == 0 {
		n := int64(d / time.Second)
		if n == 1 {
			return "1 second"
		}
		return fmt.Sprintf("%d seconds", n)
	}
	ms := d.Milliseconds()
	if ms == 1 {
		return "1 millisecond"
	}
	return fmt.Sprintf("%d milliseconds", ms)
}

// Options configures a Client.
type Options struct {
	UserAgent string
	// Transport defaults to a clone of http.DefaultTransport.
	Transport http.RoundTripper
}

// Client is safe for concurrent use. It never sets a client-wide timeout;
// every call gets its own deadline through Do.
type Client struct {
	http      *http.Client
	userAgent string
}

func New(opts Options) *Client {
	transport := opts.Transport
	if transport == nil {
		base := http.DefaultTransport.(*http.Transport).Clone()
		base.MaxIdleConnsPerHost = 8
		base.IdleConnTimeout = 90 * time.Second
		transport = base
	}
	return &Client{
		http:      &http.Client{Transport: transport},
		userAgent: opts.UserAgent,
	}
}

// Do runs one request under context.WithTimeout(ctx, timeout). Expiry of that
// deadline surfaces as *TimeoutError; cancellation of ctx itself is returned
// unchanged.
func (c *Client) Do(ctx context.Context, op string, timeout time.Duration, build RequestFunc, handle ResponseFunc) error {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := build(callCtx)
	if err != nil {
		return err
	}
	if c.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classify(ctx, callCtx, op, timeout, err)
	}
	defer resp.Body.Close()

	if handle == nil {
		return nil
	}
	if err := handle(resp); err != nil {
		return classify(ctx, callCtx, op, timeout, err)
	}
	return nil
}

func classify(parent, call context.Context, op string, timeout time.Duration, err error) error {
	if parent.Err() != nil {
		return err
	}
	if errors.Is(call.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Op: op, Timeout: timeout, Cause: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Op: op, Timeout: timeout, Cause: err}
	}
	return err
}

// IsTimeout reports whether err carries a *TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
