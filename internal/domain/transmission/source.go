package transmission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"matrix-server-go/internal/domain/endpoint"
	"matrix-server-go/internal/domain/eventbus"
	platformerrors "matrix-server-go/internal/platform/errors"
	"matrix-server-go/internal/platform/logging"
)

// Field names reported in validation failures.
const (
	FieldEndpoint = "endpointUrl"
	FieldImageURL = "imageUrl"
	FieldImageID  = "imageId"
)

var (
	ErrImageNotFound   = errors.New("image not found")
	ErrImageIDRequired = errors.New("image id is required")
)

// LoadError wraps a store failure that survived every retry.
type LoadError struct {
	ID    string
	Cause error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load image %s: %v", e.ID, e.Cause)
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Source yields the encoded bytes of the image to transmit.
type Source interface {
	// Mode is one of eventbus.ModeURL or eventbus.ModeStored.
	Mode() string
	// Describe identifies the source in events and logs.
	Describe() string
	// Validate runs during input validation, before any network call.
	Validate() error
	// Fetch runs after the device configuration is known.
	Fetch(ctx context.Context, timeout time.Duration) ([]byte, error)
}

// Downloader fetches a remote image under a per-call deadline.
type Downloader interface {
	Download(ctx context.Context, src endpoint.Endpoint, timeout time.Duration) ([]byte, error)
}

// ImageStore returns (nil, nil) for an unknown id.
type ImageStore interface {
	GetBinaryByID(ctx context.Context, id string) ([]byte, error)
}

// URLSource downloads the image from a user supplied URL.
type URLSource struct {
	RawURL     string
	downloader Downloader
	url        endpoint.Endpoint
}

func NewURLSource(rawURL string, downloader Downloader) *URLSource {
	return &URLSource{RawURL: rawURL, downloader: downloader}
}

func (s *URLSource) Mode() string { return eventbus.ModeURL }

func (s *URLSource) Describe() string {
	if !s.url.IsZero() {
		return s.url.String()
	}
	return strings.TrimSpace(s.RawURL)
}

func (s *URLSource) Validate() error {
	u, err := endpoint.ValidateResource(FieldImageURL, s.RawURL)
	if err != nil {
		return err
	}
	s.url = u
	return nil
}

func (s *URLSource) Fetch(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if s.url.IsZero() {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}
	return s.downloader.Download(ctx, s.url, timeout)
}

// StoredSource loads the image from the ImageStore with bounded retries.
type StoredSource struct {
	ID     string
	store  ImageStore
	retry  RetryPolicy
	logger *logging.Logger
}

func NewStoredSource(id string, store ImageStore, retry RetryPolicy, logger *logging.Logger) *StoredSource {
	return &StoredSource{ID: id, store: store, retry: retry, logger: logger}
}

func (s *StoredSource) Mode() string { return eventbus.ModeStored }

func (s *StoredSource) Describe() string { return strings.TrimSpace(s.ID) }

func (s *StoredSource) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return ErrImageIDRequired
	}
	return nil
}

func (s *StoredSource) Fetch(ctx context.Context, _ time.Duration) ([]byte, error) {
	id := strings.TrimSpace(s.ID)

	var data []byte
	err := s.retry.Do(ctx, s.logger, "load image "+id, isTransient, func(ctx context.Context) error {
		var err error
		data, err = s.store.GetBinaryByID(ctx, id)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, &LoadError{ID: id, Cause: err}
	}
	if data == nil {
		return nil, ErrImageNotFound
	}
	return data, nil
}

// isTransient limits retries to data-layer failures.
func isTransient(err error) bool {
	return platformerrors.IsKind(err, platformerrors.KindStorage)
}
