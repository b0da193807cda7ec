package image

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"matrix-server-go/internal/platform/config"
	"matrix-server-go/internal/platform/logging"
)

// SecurityValidator performs layered checks against source image bytes
// before they reach a decoder.
type SecurityValidator struct {
	config *config.SecurityConfig
	logger *logging.Logger
}

func NewSecurityValidator(cfg *config.SecurityConfig, logger *logging.Logger) *SecurityValidator {
	if cfg == nil {
		defaults := config.DefaultConfig().Security
		cfg = &defaults
	}
	return &SecurityValidator{
		config: cfg,
		logger: logger,
	}
}

var imageSignatures = map[string][]byte{
	"jpeg": {0xFF, 0xD8},
	"jpg":  {0xFF, 0xD8},
	"png":  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	"gif":  {0x47, 0x49, 0x46, 0x38},
	"webp": {0x52, 0x49, 0x46, 0x46},
	"bmp":  {0x42, 0x4D},
}

// ValidateBytes runs every check. declaredFormat may be empty.
func (v *SecurityValidator) ValidateBytes(raw []byte, declaredFormat string) ValidationResult {
	result := ValidationResult{}

	if len(raw) == 0 {
		result.Error = fmt.Errorf("empty image payload")
		return result
	}

	if int64(len(raw)) > v.config.MaxFileSize {
		result.Error = fmt.Errorf("file size exceeds limit: %d bytes (max %d bytes)", len(raw), v.config.MaxFileSize)
		result.SecurityRisk = "file too large"
		v.logger.WarnTag("Image", "oversized image: size=%d max_size=%d", len(raw), v.config.MaxFileSize)
		return result
	}

	if v.config.EnableDeepScan && v.scanForMaliciousContent(raw) {
		result.Error = fmt.Errorf("potential malicious content detected")
		result.SecurityRisk = "suspicious content"
		return result
	}

	if declaredFormat != "" && !v.isFormatAllowed(declaredFormat) {
		result.Error = fmt.Errorf("unsupported format: %s", declaredFormat)
		result.SecurityRisk = "unapproved format"
		return result
	}

	result = v.validateImageDecoding(raw)
	if !result.IsValid {
		if declaredFormat != "" && !v.validateFileSignature(raw, declaredFormat) {
			v.logger.WarnTag("Image", "file signature mismatch: declared_format=%s actual_header=%x",
				declaredFormat, raw[:min(len(raw), 16)])
		}
		return result
	}

	if !v.isFormatAllowed(result.Format) {
		result.IsValid = false
		result.Error = fmt.Errorf("unsupported format: %s", result.Format)
		result.SecurityRisk = "unapproved format"
	}
	return result
}

func (v *SecurityValidator) isFormatAllowed(format string) bool {
	if len(v.config.AllowedFormats) == 0 || format == "" {
		return true
	}
	format = strings.ToLower(format)
	for _, allowed := range v.config.AllowedFormats {
		if strings.ToLower(allowed) == format {
			return true
		}
	}
	return false
}

func (v *SecurityValidator) validateFileSignature(raw []byte, format string) bool {
	signature, ok := imageSignatures[strings.ToLower(format)]
	if !ok {
		return true
	}
	return bytes.HasPrefix(raw, signature)
}

func (v *SecurityValidator) scanForMaliciousContent(raw []byte) bool {
	executable := [][]byte{
		{0x4D, 0x5A},             // PE
		{0x7F, 0x45, 0x4C, 0x46}, // ELF
		{0x25, 0x50, 0x44, 0x46}, // PDF
	}
	for _, sig := range executable {
		if bytes.HasPrefix(raw, sig) {
			v.logger.WarnTag("Image", "detected executable signature: %x", sig)
			return true
		}
	}

	archives := [][]byte{
		{0x50, 0x4B, 0x03, 0x04},
		{0x1F, 0x8B, 0x08},
	}
	for _, sig := range archives {
		if bytes.HasPrefix(raw, sig) {
			v.logger.WarnTag("Image", "detected compressed archive: %x", sig)
			return true
		}
	}

	head := raw[:min(len(raw), 4096)]
	if bytes.Contains(bytes.ToLower(head), []byte("<svg")) {
		return v.checkSVGScripts(strings.ToLower(string(raw)))
	}
	return false
}

var suspiciousSVGTokens = []string{
	"<script",
	"javascript:",
	"vbscript:",
	"onload=",
	"onerror=",
	"eval(",
	"document.cookie",
	"window.location",
	"<iframe",
	"<object",
	"<embed",
}

func (v *SecurityValidator) checkSVGScripts(lower string) bool {
	for _, token := range suspiciousSVGTokens {
		if strings.Contains(lower, token) {
			v.logger.WarnTag("Image", "detected suspicious SVG content: token=%s", token)
			return true
		}
	}
	return false
}

func (v *SecurityValidator) validateImageDecoding(raw []byte) ValidationResult {
	result := ValidationResult{}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		result.Error = fmt.Errorf("unrecognized image data: %w", err)
		result.SecurityRisk = "corrupted image data"
		return result
	}
	result.Format = format

	if cfg.Width <= 0 || cfg.Height <= 0 {
		result.Error = fmt.Errorf("image has no pixels: %dx%d", cfg.Width, cfg.Height)
		result.SecurityRisk = "corrupted image data"
		return result
	}

	if cfg.Width > v.config.MaxWidth || cfg.Height > v.config.MaxHeight {
		result.Error = fmt.Errorf("dimensions exceed limit: %dx%d (max %dx%d)",
			cfg.Width, cfg.Height, v.config.MaxWidth, v.config.MaxHeight)
		result.SecurityRisk = "dimensions too large"
		return result
	}

	totalPixels := int64(cfg.Width) * int64(cfg.Height)
	if totalPixels > v.config.MaxPixels {
		result.Error = fmt.Errorf("pixel count exceeds limit: %d (max %d)", totalPixels, v.config.MaxPixels)
		result.SecurityRisk = "pixel count too high"
		return result
	}

	result.IsValid = true
	result.Width = cfg.Width
	result.Height = cfg.Height
	result.FileSize = int64(len(raw))

	v.logger.DebugTag("Image", "validated %s %dx%d (%d bytes)", result.Format, result.Width, result.Height, result.FileSize)
	return result
}
