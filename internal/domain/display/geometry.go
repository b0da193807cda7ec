// Package display reads and validates the geometry a matrix device reports.
package display

import (
	"fmt"
	"math"

	"github.com/bytedance/sonic"
)

const (
	MinDimension = 1
	MaxDimension = 1024
	// BytesPerPixel is the RGBA stride of a frame.
	BytesPerPixel = 4
)

// Geometry is a device's display size in pixels.
type Geometry struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// FrameSize is the exact byte length of an RGBA frame for g.
func (g Geometry) FrameSize() int {
	return g.Width * g.Height * BytesPerPixel
}

func (g Geometry) String() string {
	return fmt.Sprintf("%dx%d", g.Width, g.Height)
}

// Validate checks both dimensions are within [MinDimension, MaxDimension].
func (g Geometry) Validate() error {
	if err := checkDimension("width", float64(g.Width)); err != nil {
		return err
	}
	return checkDimension("height", float64(g.Height))
}

// ParseGeometry decodes a configuration document. Both width and height must
// be JSON numbers holding integers in range; nothing is clamped.
func ParseGeometry(body []byte) (Geometry, error) {
	var doc interface{}
	if err := sonic.Unmarshal(body, &doc); err != nil {
		return Geometry{}, invalidGeometry("response is not valid JSON")
	}
	obj, ok := doc.(map[string]interface{})
	if !ok {
		return Geometry{}, invalidGeometry("response is not a JSON object")
	}

	width, err := dimension(obj, "width")
	if err != nil {
		return Geometry{}, err
	}
	height, err := dimension(obj, "height")
	if err != nil {
		return Geometry{}, err
	}
	return Geometry{Width: width, Height: height}, nil
}

func dimension(obj map[string]interface{}, field string) (int, error) {
	raw, ok := obj[field]
	if !ok || raw == nil {
		return 0, invalidGeometry(fmt.Sprintf("%s is missing", field))
	}
	v, ok := raw.(float64)
	if !ok {
		return 0, invalidGeometry(fmt.Sprintf("%s must be a number", field))
	}
	if err := checkDimension(field, v); err != nil {
		return 0, err
	}
	return int(v), nil
}

func checkDimension(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
		return invalidGeometry(fmt.Sprintf("%s must be an integer", field))
	}
	if v < MinDimension || v > MaxDimension {
		return invalidGeometry(fmt.Sprintf("%s must be between %d and %d, got %v", field, MinDimension, MaxDimension, v))
	}
	return nil
}

func invalidGeometry(details string) *FetchError {
	return &FetchError{Reason: ReasonInvalidGeometry, Details: details}
}
