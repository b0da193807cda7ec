package frame

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"matrix-server-go/internal/domain/endpoint"
	"matrix-server-go/internal/platform/httpclient"
	"matrix-server-go/internal/platform/logging"
	"matrix-server-go/internal/platform/observability"
)

const (
	ReasonFrameRejected = "frame_rejected"
	ReasonNetwork       = "network"

	PartName = "frame"
	FileName = "frame.rgba"
)

// TransmitError is returned when the device does not accept a frame.
// Deadline expiry is reported separately as *httpclient.TimeoutError.
type TransmitError struct {
	Reason     string
	HTTPStatus int
	Cause      error
}

func (e *TransmitError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("%s: HTTP %d", e.Reason, e.HTTPStatus)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Cause)
	}
	return e.Reason
}

func (e *TransmitError) Unwrap() error {
	return e.Cause
}

// Transmitter posts frames to {endpoint}/frame as multipart form data.
type Transmitter struct {
	client *httpclient.Client
	logger *logging.Logger
}

func NewTransmitter(client *httpclient.Client, logger *logging.Logger) *Transmitter {
	return &Transmitter{client: client, logger: logger}
}

// Send verifies f and POSTs it under its own deadline.
func (t *Transmitter) Send(ctx context.Context, ep endpoint.Endpoint, f *Frame, timeout time.Duration) (err error) {
	if err := f.Verify(); err != nil {
		return err
	}

	ctx, finish := observability.StartSpan(ctx, "frame", "send")
	defer func() { finish(err) }()

	body, contentType, err := multipartBody(f.Pix)
	if err != nil {
		return &TransmitError{Reason: ReasonNetwork, Cause: err}
	}

	target := ep.Join("frame")
	err = t.client.Do(ctx, "frame", timeout,
		func(ctx context.Context) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
			if err != nil {
				return nil, err
			}
			req.Header.Set("Content-Type", contentType)
			return req, nil
		},
		func(resp *http.Response) error {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				return &TransmitError{Reason: ReasonFrameRejected, HTTPStatus: resp.StatusCode}
			}
			return nil
		},
	)
	if err != nil {
		if _, ok := err.(*TransmitError); !ok && !httpclient.IsTimeout(err) && ctx.Err() == nil {
			err = &TransmitError{Reason: ReasonNetwork, Cause: err}
		}
		t.logger.WarnTag("Transmit", "frame to %s failed: %v", ep, err)
		return err
	}

	t.logger.InfoTag("Transmit", "sent %d bytes (%s) to %s", len(f.Pix), f.Geometry(), ep)
	return nil
}

func multipartBody(pix []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, PartName, FileName))
	header.Set("Content-Type", "application/octet-stream")
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(pix); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}
