// Package frame turns source images into raw RGBA frames and pushes them to
// matrix devices.
package frame

import (
	"fmt"

	"matrix-server-go/internal/domain/display"
)

const (
	ReasonDecodeFailed = "decode_failed"
	ReasonSizeMismatch = "size_mismatch"
)

// Frame is one row-major RGBA buffer, non-premultiplied, 4 bytes per pixel.
type Frame struct {
	Width  int
	Height int
	Pix    []byte
}

// Geometry returns the frame's dimensions.
func (f *Frame) Geometry() display.Geometry {
	return display.Geometry{Width: f.Width, Height: f.Height}
}

// Verify enforces len(Pix) == Width*Height*4.
func (f *Frame) Verify() error {
	if f == nil {
		return &EncodeError{Reason: ReasonSizeMismatch}
	}
	expected := f.Geometry().FrameSize()
	if len(f.Pix) != expected {
		return &EncodeError{Reason: ReasonSizeMismatch, Got: len(f.Pix), Expected: expected}
	}
	return nil
}

// VerifyFor checks f against the geometry the device reported rather than the
// frame's own dimensions.
func (f *Frame) VerifyFor(g display.Geometry) error {
	expected := g.FrameSize()
	if f == nil {
		return &EncodeError{Reason: ReasonSizeMismatch, Expected: expected}
	}
	if f.Width != g.Width || f.Height != g.Height || len(f.Pix) != expected {
		return &EncodeError{Reason: ReasonSizeMismatch, Got: len(f.Pix), Expected: expected}
	}
	return nil
}

// EncodeError is returned when a source cannot become a valid frame.
type EncodeError struct {
	Reason   string
	Got      int
	Expected int
	Cause    error
}

func (e *EncodeError) Error() string {
	if e.Reason == ReasonSizeMismatch {
		return fmt.Sprintf("frame size mismatch: got %d bytes, expected %d", e.Got, e.Expected)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Cause)
	}
	return e.Reason
}

func (e *EncodeError) Unwrap() error {
	return e.Cause
}
