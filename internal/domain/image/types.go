package image

import (
	"fmt"
	"time"
)

// Image is the metadata of a stored source image.
type Image struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ValidationResult captures the outcome of security validation.
type ValidationResult struct {
	IsValid      bool
	Format       string
	Width        int
	Height       int
	FileSize     int64
	Error        error
	SecurityRisk string
}

// Err returns nil for a valid result, otherwise a *RejectedError.
func (r ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	cause := r.Error
	if cause == nil {
		cause = fmt.Errorf("image validation failed")
	}
	return &RejectedError{Risk: r.SecurityRisk, Cause: cause}
}

// RejectedError reports source bytes refused by the SecurityValidator.
type RejectedError struct {
	Risk  string
	Cause error
}

func (e *RejectedError) Error() string {
	return e.Cause.Error()
}

func (e *RejectedError) Unwrap() error {
	return e.Cause
}

const (
	DownloadReasonStatus      = "http_status"
	DownloadReasonContentType = "content_type"
	DownloadReasonTooLarge    = "too_large"
	DownloadReasonNetwork     = "network"
)

// DownloadError describes a failed remote image fetch.
type DownloadError struct {
	Reason     string
	HTTPStatus int
	Detail     string
	Cause      error
}

func (e *DownloadError) Error() string {
	switch e.Reason {
	case DownloadReasonStatus:
		return fmt.Sprintf("HTTP %d", e.HTTPStatus)
	case DownloadReasonNetwork:
		if e.Cause != nil {
			return e.Cause.Error()
		}
	}
	return e.Detail
}

func (e *DownloadError) Unwrap() error {
	return e.Cause
}
