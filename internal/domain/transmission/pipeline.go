// Package transmission runs the validate, fetch, encode and transmit stages
// that push one image to one matrix device.
package transmission

import (
	"context"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/google/uuid"

	"matrix-server-go/internal/domain/display"
	"matrix-server-go/internal/domain/endpoint"
	"matrix-server-go/internal/domain/eventbus"
	"matrix-server-go/internal/domain/frame"
	"matrix-server-go/internal/platform/logging"
	"matrix-server-go/internal/platform/observability"
)

// DefaultTimeout applies to each outbound call when none is configured.
const DefaultTimeout = 15 * time.Second

// GeometryFetcher reads a device's display size.
type GeometryFetcher interface {
	FetchGeometry(ctx context.Context, ep endpoint.Endpoint, timeout time.Duration) (display.Geometry, error)
}

// FrameSender delivers an encoded frame to a device.
type FrameSender interface {
	Send(ctx context.Context, ep endpoint.Endpoint, f *frame.Frame, timeout time.Duration) error
}

// Dependencies are the collaborators of a Pipeline. Events may be nil.
type Dependencies struct {
	Fetcher    GeometryFetcher
	Encoder    frame.Encoder
	Sender     FrameSender
	Downloader Downloader
	Images     ImageStore
	Events     eventbus.Publisher
	Logger     *logging.Logger
}

// Options tunes deadlines and retries.
type Options struct {
	Timeout time.Duration
	Retry   RetryPolicy
}

// Pipeline is stateless between runs and safe for concurrent use. Runs
// against the same device are not serialized.
type Pipeline struct {
	fetcher    GeometryFetcher
	encoder    frame.Encoder
	sender     FrameSender
	downloader Downloader
	images     ImageStore
	events     eventbus.Publisher
	logger     *logging.Logger
	timeout    time.Duration
	retry      RetryPolicy
}

func NewPipeline(deps Dependencies, opts Options) *Pipeline {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Retry.Attempts <= 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	return &Pipeline{
		fetcher:    deps.Fetcher,
		encoder:    deps.Encoder,
		sender:     deps.Sender,
		downloader: deps.Downloader,
		images:     deps.Images,
		events:     deps.Events,
		logger:     deps.Logger,
		timeout:    opts.Timeout,
		retry:      opts.Retry,
	}
}

// Timeout returns the per-call deadline.
func (p *Pipeline) Timeout() time.Duration {
	return p.timeout
}

// SendImageByURL downloads imageURL and displays it on the device at endpointURL.
func (p *Pipeline) SendImageByURL(ctx context.Context, imageURL, endpointURL string) Result {
	return p.Run(ctx, NewURLSource(imageURL, p.downloader), endpointURL)
}

// SendStoredImage displays the stored image imageID on the device at endpointURL.
func (p *Pipeline) SendStoredImage(ctx context.Context, imageID, endpointURL string) Result {
	return p.Run(ctx, NewStoredSource(imageID, p.images, p.retry, p.logger), endpointURL)
}

// Run executes every stage for src and never panics.
func (p *Pipeline) Run(ctx context.Context, src Source, endpointURL string) (result Result) {
	id := uuid.NewString()
	started := time.Now()
	ctx, finish := observability.StartSpan(ctx, "transmission", src.Mode())

	var runErr error
	defer func() {
		if r := recover(); r != nil {
			runErr = &PanicError{Value: r}
			p.logger.ErrorTag("Transmit", "run %s panicked: %v\n%s", id, r, debug.Stack())
		}
		finish(runErr)
		result = toResult(runErr)
		p.complete(ctx, id, src, endpointURL, started, result)
	}()

	runErr = p.execute(ctx, src, endpointURL)
	return
}

func (p *Pipeline) execute(ctx context.Context, src Source, endpointURL string) error {
	// ValidateInputs
	ep, err := endpoint.ValidateField(FieldEndpoint, endpointURL)
	if err != nil {
		return err
	}
	if err := src.Validate(); err != nil {
		return err
	}

	// FetchConfig
	geometry, err := p.fetcher.FetchGeometry(ctx, ep, p.timeout)
	if err != nil {
		return err
	}

	// ObtainSourceBytes
	raw, err := src.Fetch(ctx, p.timeout)
	if err != nil {
		return err
	}

	// EncodeFrame
	f, err := p.encoder.Encode(raw, geometry)
	if err != nil {
		return err
	}

	// VerifyFrame
	if err := f.VerifyFor(geometry); err != nil {
		return err
	}

	// Transmit
	return p.sender.Send(ctx, ep, f, p.timeout)
}

func (p *Pipeline) complete(ctx context.Context, id string, src Source, endpointURL string, started time.Time, result Result) {
	elapsed := time.Since(started)

	observability.RecordMetric(ctx, "transmission.runs", 1, map[string]string{
		"mode":    src.Mode(),
		"success": strconv.FormatBool(result.Success),
	})
	if !result.Success {
		observability.RecordMetric(ctx, "transmission.failures", 1, map[string]string{"mode": src.Mode()})
		p.logger.WarnTag("Transmit", "%s run %s to %s failed: %s", src.Mode(), id, endpointURL, result.Error)
	} else {
		p.logger.InfoTag("Transmit", "%s run %s to %s done in %s", src.Mode(), id, endpointURL, elapsed.Round(time.Millisecond))
	}

	if p.events == nil {
		return
	}
	p.events.PublishAsync(eventbus.EventTransmissionCompleted, eventbus.TransmissionEvent{
		ID:         id,
		Mode:       src.Mode(),
		Source:     src.Describe(),
		Endpoint:   endpointURL,
		Success:    result.Success,
		Error:      result.Error,
		DurationMs: elapsed.Milliseconds(),
		FinishedAt: time.Now().UTC(),
	})
}
