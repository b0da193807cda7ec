package display

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"matrix-server-go/internal/domain/endpoint"
	"matrix-server-go/internal/platform/httpclient"
	"matrix-server-go/internal/platform/logging"
	"matrix-server-go/internal/platform/observability"
)

const (
	ReasonConfigUnreachable = "config_unreachable"
	ReasonInvalidGeometry   = "invalid_geometry"

	// maxConfigBody caps the configuration document read from a device.
	maxConfigBody = 64 * 1024
)

// FetchError is returned when the device configuration cannot be used.
type FetchError struct {
	Reason     string
	HTTPStatus int
	Details    string
	Cause      error
}

func (e *FetchError) Error() string {
	switch {
	case e.HTTPStatus != 0:
		return fmt.Sprintf("%s: HTTP %d", e.Reason, e.HTTPStatus)
	case e.Details != "":
		return fmt.Sprintf("%s: %s", e.Reason, e.Details)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", e.Reason, e.Cause)
	default:
		return e.Reason
	}
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// Fetcher retrieves device geometry over HTTP. It never retries.
type Fetcher struct {
	client *httpclient.Client
	logger *logging.Logger
}

func NewFetcher(client *httpclient.Client, logger *logging.Logger) *Fetcher {
	return &Fetcher{client: client, logger: logger}
}

// FetchGeometry issues GET {endpoint}/configuration with its own deadline.
func (f *Fetcher) FetchGeometry(ctx context.Context, ep endpoint.Endpoint, timeout time.Duration) (geometry Geometry, err error) {
	ctx, finish := observability.StartSpan(ctx, "display", "fetch_geometry")
	defer func() { finish(err) }()

	target := ep.Join("configuration")
	err = f.client.Do(ctx, "configuration", timeout,
		func(ctx context.Context) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Accept", "application/json")
			return req, nil
		},
		func(resp *http.Response) error {
			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxConfigBody))
				return &FetchError{Reason: ReasonConfigUnreachable, HTTPStatus: resp.StatusCode}
			}
			body, err := io.ReadAll(io.LimitReader(resp.Body, maxConfigBody+1))
			if err != nil {
				return err
			}
			if len(body) > maxConfigBody {
				return invalidGeometry("configuration document too large")
			}
			geometry, err = ParseGeometry(body)
			return err
		},
	)
	if err != nil {
		if _, ok := err.(*FetchError); !ok && !httpclient.IsTimeout(err) && ctx.Err() == nil {
			err = &FetchError{Reason: ReasonConfigUnreachable, Cause: err}
		}
		f.logger.WarnTag("Device", "configuration fetch from %s failed: %v", ep, err)
		return Geometry{}, err
	}

	f.logger.DebugTag("Device", "%s reports %s", ep, geometry)
	return geometry, nil
}
