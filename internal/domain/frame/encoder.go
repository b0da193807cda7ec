package frame

import (
	"bytes"
	stdimage "image"

	"golang.org/x/image/draw"

	"matrix-server-go/internal/domain/display"
	"matrix-server-go/internal/domain/image"
	"matrix-server-go/internal/platform/logging"
)

// Encoder converts encoded source bytes into a frame of exactly g.
type Encoder interface {
	Encode(src []byte, g display.Geometry) (*Frame, error)
}

// RGBAEncoder validates, decodes, cover-resizes and serializes to RGBA.
type RGBAEncoder struct {
	validator *image.SecurityValidator
	logger    *logging.Logger
}

func NewEncoder(validator *image.SecurityValidator, logger *logging.Logger) *RGBAEncoder {
	return &RGBAEncoder{validator: validator, logger: logger}
}

func (e *RGBAEncoder) Encode(src []byte, g display.Geometry) (*Frame, error) {
	if err := g.Validate(); err != nil {
		return nil, &EncodeError{Reason: display.ReasonInvalidGeometry, Cause: err}
	}

	if e.validator != nil {
		if err := e.validator.ValidateBytes(src, "").Err(); err != nil {
			return nil, &EncodeError{Reason: ReasonDecodeFailed, Cause: err}
		}
	}

	img, format, err := stdimage.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, &EncodeError{Reason: ReasonDecodeFailed, Cause: err}
	}

	dst := Cover(img, g)
	f := &Frame{
		Width:  g.Width,
		Height: g.Height,
		Pix:    append([]byte(nil), dst.Pix...),
	}
	if err := f.Verify(); err != nil {
		return nil, err
	}

	b := img.Bounds()
	e.logger.DebugTag("Image", "encoded %s %dx%d into %s frame (%d bytes)", format, b.Dx(), b.Dy(), g, len(f.Pix))
	return f, nil
}

// Cover scales src so it fills g in both dimensions and crops the centered
// overflow of the longer side. The result is never letterboxed.
func Cover(src stdimage.Image, g display.Geometry) *stdimage.NRGBA {
	dst := stdimage.NewNRGBA(stdimage.Rect(0, 0, g.Width, g.Height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, CoverCrop(src.Bounds(), g), draw.Src, nil)
	return dst
}

// CoverCrop returns the largest centered rectangle of bounds with g's aspect ratio.
func CoverCrop(bounds stdimage.Rectangle, g display.Geometry) stdimage.Rectangle {
	sw, sh := bounds.Dx(), bounds.Dy()
	if sw <= 0 || sh <= 0 {
		return bounds
	}

	cw, ch := sw, sh
	// compare sw/sh against g.Width/g.Height without floats
	if int64(sw)*int64(g.Height) > int64(sh)*int64(g.Width) {
		cw = int((int64(sh)*int64(g.Width) + int64(g.Height)/2) / int64(g.Height))
	} else {
		ch = int((int64(sw)*int64(g.Height) + int64(g.Width)/2) / int64(g.Width))
	}
	cw = max(1, min(cw, sw))
	ch = max(1, min(ch, sh))

	x0 := bounds.Min.X + (sw-cw)/2
	y0 := bounds.Min.Y + (sh-ch)/2
	return stdimage.Rect(x0, y0, x0+cw, y0+ch)
}
