package transmission

import (
	"context"
	"errors"
	"fmt"

	"matrix-server-go/internal/domain/display"
	"matrix-server-go/internal/domain/endpoint"
	"matrix-server-go/internal/domain/frame"
	"matrix-server-go/internal/domain/image"
	platformerrors "matrix-server-go/internal/platform/errors"
	"matrix-server-go/internal/platform/httpclient"
)

// Result is the outcome of one transmission. Error is set only on failure.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// PanicError carries a value recovered from a panicking run.
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprint(e.Value)
}

func toResult(err error) Result {
	if err == nil {
		return Result{Success: true}
	}
	return Result{Success: false, Error: Message(err)}
}

// Message maps a pipeline failure to the message returned to callers.
func Message(err error) string {
	if err == nil {
		return ""
	}

	var panicErr *PanicError
	if errors.As(err, &panicErr) {
		return "Unexpected error: " + panicErr.Error()
	}

	var timeoutErr *httpclient.TimeoutError
	if errors.As(err, &timeoutErr) {
		return "Request timed out after " + httpclient.FormatTimeout(timeoutErr.Timeout)
	}

	var validationErr *endpoint.ValidationError
	if errors.As(err, &validationErr) {
		if validationErr.Field == FieldImageURL {
			return "Invalid image URL: " + validationErr.Reason
		}
		return "Invalid endpoint URL: " + validationErr.Reason
	}

	if errors.Is(err, ErrImageIDRequired) {
		return "Image ID is required"
	}
	if errors.Is(err, ErrImageNotFound) {
		return "Image not found"
	}

	var fetchErr *display.FetchError
	if errors.As(err, &fetchErr) {
		switch {
		case fetchErr.Reason == display.ReasonInvalidGeometry:
			return "Invalid device configuration: " + fetchErr.Details
		case fetchErr.HTTPStatus != 0:
			return fmt.Sprintf("Failed to fetch device configuration: HTTP %d", fetchErr.HTTPStatus)
		default:
			return "Failed to fetch device configuration: " + causeText(fetchErr.Cause, fetchErr.Reason)
		}
	}

	var downloadErr *image.DownloadError
	if errors.As(err, &downloadErr) {
		return "Failed to download image: " + downloadErr.Error()
	}

	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return "Failed to load image: " + storeText(loadErr.Cause)
	}

	var encodeErr *frame.EncodeError
	if errors.As(err, &encodeErr) {
		switch encodeErr.Reason {
		case frame.ReasonSizeMismatch:
			return fmt.Sprintf("Frame size mismatch: got %d bytes, expected %d", encodeErr.Got, encodeErr.Expected)
		case display.ReasonInvalidGeometry:
			return "Invalid device configuration: " + causeText(encodeErr.Cause, encodeErr.Reason)
		default:
			return "Failed to decode image: " + causeText(encodeErr.Cause, encodeErr.Reason)
		}
	}

	var transmitErr *frame.TransmitError
	if errors.As(err, &transmitErr) {
		if transmitErr.Reason == frame.ReasonFrameRejected {
			return fmt.Sprintf("Device rejected frame: HTTP %d", transmitErr.HTTPStatus)
		}
		return "Failed to send frame: " + causeText(transmitErr.Cause, transmitErr.Reason)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "Request cancelled: " + err.Error()
	}

	return err.Error()
}

func causeText(cause error, fallback string) string {
	if cause == nil {
		return fallback
	}
	return cause.Error()
}

// storeText prefers the platform error's own message over its "[kind:op]" form.
func storeText(err error) string {
	var perr *platformerrors.Error
	if errors.As(err, &perr) {
		if perr.Cause != nil {
			return perr.Message + ": " + perr.Cause.Error()
		}
		return perr.Message
	}
	return causeText(err, "unknown error")
}
