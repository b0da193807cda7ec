package image

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"matrix-server-go/internal/domain/endpoint"
	"matrix-server-go/internal/platform/httpclient"
	"matrix-server-go/internal/platform/logging"
	"matrix-server-go/internal/platform/observability"
)

var validContentTypes = []string{
	"image/jpeg",
	"image/jpg",
	"image/png",
	"image/gif",
	"image/webp",
	"image/bmp",
	"image/x-ms-bmp",
}

// Downloader fetches remote source images under a per-call deadline.
type Downloader struct {
	client  *httpclient.Client
	logger  *logging.Logger
	maxSize int64
}

func NewDownloader(client *httpclient.Client, maxSize int64, logger *logging.Logger) *Downloader {
	return &Downloader{
		client:  client,
		logger:  logger,
		maxSize: maxSize,
	}
}

// Download GETs src and returns its bytes. Non-2xx responses, non-image
// content types and bodies above the size limit fail with *DownloadError.
// Untyped or octet-stream bodies are accepted when they sniff as an image.
func (d *Downloader) Download(ctx context.Context, src endpoint.Endpoint, timeout time.Duration) (data []byte, err error) {
	ctx, finish := observability.StartSpan(ctx, "image", "download")
	defer func() { finish(err) }()

	err = d.client.Do(ctx, "image download", timeout,
		func(ctx context.Context) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.String(), nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Accept", "image/*")
			return req, nil
		},
		func(resp *http.Response) error {
			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				drain(resp.Body)
				return &DownloadError{Reason: DownloadReasonStatus, HTTPStatus: resp.StatusCode}
			}

			contentType := resp.Header.Get("Content-Type")
			sniff := isGenericContentType(contentType)
			if !sniff && !isValidImageContentType(contentType) {
				drain(resp.Body)
				return unsupportedContentType(contentType)
			}

			if d.maxSize > 0 && resp.ContentLength > d.maxSize {
				return &DownloadError{
					Reason: DownloadReasonTooLarge,
					Detail: fmt.Sprintf("remote image exceeds max size: %d bytes", resp.ContentLength),
				}
			}

			body, err := readLimited(context.Background(), resp.Body, d.maxSize)
			if err != nil {
				return err
			}
			if sniff {
				detected := http.DetectContentType(body)
				if !isValidImageContentType(detected) {
					return unsupportedContentType(contentType)
				}
				d.logger.DebugTag("Image", "untyped download from %s sniffed as %s", src.Host(), detected)
			}
			data = body
			return nil
		},
	)
	if err != nil {
		if _, ok := err.(*DownloadError); !ok && !httpclient.IsTimeout(err) && ctx.Err() == nil {
			err = &DownloadError{Reason: DownloadReasonNetwork, Cause: err}
		}
		d.logger.WarnTag("Image", "download of %s failed: %v", src, err)
		return nil, err
	}

	d.logger.DebugTag("Image", "downloaded %d bytes from %s", len(data), src.Host())
	return data, nil
}

func unsupportedContentType(contentType string) *DownloadError {
	return &DownloadError{
		Reason: DownloadReasonContentType,
		Detail: fmt.Sprintf("unsupported content-type: %q", contentType),
	}
}

// isGenericContentType reports whether the host gave no usable type, in
// which case the body is sniffed instead.
func isGenericContentType(contentType string) bool {
	lower := strings.ToLower(strings.TrimSpace(contentType))
	return lower == "" ||
		strings.HasPrefix(lower, "application/octet-stream") ||
		strings.HasPrefix(lower, "binary/octet-stream")
}

func isValidImageContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	lower := strings.ToLower(contentType)
	for _, valid := range validContentTypes {
		if strings.HasPrefix(lower, valid) {
			return true
		}
	}
	return false
}

// drain discards what is left of a response body so the connection can be reused.
func drain(r io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, 64*1024))
}
