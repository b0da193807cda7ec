package image

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"matrix-server-go/internal/platform/config"
	"matrix-server-go/internal/platform/logging"
)

// Ingestor reads uploaded image streams with a hard size cap and validates
// them before they are stored.
type Ingestor struct {
	validator *SecurityValidator
	logger    *logging.Logger
	maxSize   int64
}

// Input describes an uploaded image payload.
type Input struct {
	Reader         io.Reader
	DeclaredFormat string
	Name           string
}

// Output contains the validated bytes.
type Output struct {
	Bytes       []byte
	Format      string
	ContentType string
	Validation  ValidationResult
}

func NewIngestor(security *config.SecurityConfig, logger *logging.Logger) *Ingestor {
	validator := NewSecurityValidator(security, logger)
	return &Ingestor{
		validator: validator,
		logger:    logger,
		maxSize:   validator.config.MaxFileSize,
	}
}

// Validator exposes the validator shared with the frame encoder.
func (i *Ingestor) Validator() *SecurityValidator {
	return i.validator
}

// Ingest streams input through the size limit and security validation.
func (i *Ingestor) Ingest(ctx context.Context, input Input) (*Output, error) {
	if input.Reader == nil {
		return nil, fmt.Errorf("image reader is required")
	}

	raw, err := readLimited(ctx, input.Reader, i.maxSize)
	if err != nil {
		return nil, err
	}

	validation := i.validator.ValidateBytes(raw, input.DeclaredFormat)
	if err := validation.Err(); err != nil {
		i.logger.WarnTag("Image", "rejected upload %q: %v", input.Name, err)
		return nil, err
	}

	return &Output{
		Bytes:       raw,
		Format:      validation.Format,
		ContentType: http.DetectContentType(raw),
		Validation:  validation,
	}, nil
}

// readLimited reads at most maxSize bytes and fails if r holds more.
func readLimited(ctx context.Context, r io.Reader, maxSize int64) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = 10 * 1024 * 1024
	}
	limited := &io.LimitedReader{R: r, N: maxSize + 1}

	buf := bytes.NewBuffer(make([]byte, 0, 32*1024))
	if _, err := io.Copy(buf, limited); err != nil {
		return nil, fmt.Errorf("stream image bytes: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limited.N <= 0 {
		return nil, &DownloadError{
			Reason: DownloadReasonTooLarge,
			Detail: fmt.Sprintf("image exceeds maximum size of %d bytes", maxSize),
		}
	}
	return buf.Bytes(), nil
}
