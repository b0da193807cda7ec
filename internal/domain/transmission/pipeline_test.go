package transmission

import (
	"bytes"
	"context"
	"errors"
	stdimage "image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"matrix-server-go/internal/domain/display"
	"matrix-server-go/internal/domain/eventbus"
	"matrix-server-go/internal/domain/frame"
	"matrix-server-go/internal/domain/image"
	"matrix-server-go/internal/platform/config"
	platformerrors "matrix-server-go/internal/platform/errors"
	"matrix-server-go/internal/platform/httpclient"
	platformtesting "matrix-server-go/internal/platform/testing"
)

// fakeDevice serves /configuration and /frame like a matrix controller.
type fakeDevice struct {
	URL          string
	config       string
	configStatus int
	frameStatus  int
	hang         bool

	configHits atomic.Int32
	frameHits  atomic.Int32

	mu     sync.Mutex
	frames [][]byte
}

func newDevice(t *testing.T, configure func(d *fakeDevice)) *fakeDevice {
	t.Helper()
	d := &fakeDevice{
		config:       `{"width":64,"height":32}`,
		configStatus: http.StatusOK,
		frameStatus:  http.StatusOK,
	}
	if configure != nil {
		configure(d)
	}

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/configuration":
			d.configHits.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(d.configStatus)
			_, _ = io.WriteString(w, d.config)
		case r.Method == http.MethodPost && r.URL.Path == "/frame":
			d.frameHits.Add(1)
			if d.hang {
				select {
				case <-release:
				case <-r.Context().Done():
				}
				return
			}
			file, _, err := r.FormFile(frame.PartName)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			data, _ := io.ReadAll(file)
			d.mu.Lock()
			d.frames = append(d.frames, data)
			d.mu.Unlock()
			w.WriteHeader(d.frameStatus)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })
	d.URL = srv.URL
	return d
}

func (d *fakeDevice) received() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]byte(nil), d.frames...)
}

// imageHost serves one payload at /img.png.
type imageHost struct {
	URL  string
	hits atomic.Int32
}

func newImageHost(t *testing.T, contentType string, status int, body []byte) *imageHost {
	t.Helper()
	h := &imageHost{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.hits.Add(1)
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	h.URL = srv.URL + "/img.png"
	return h
}

func landscapePNG(t *testing.T) []byte {
	t.Helper()
	img := stdimage.NewNRGBA(stdimage.Rect(0, 0, 200, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 200; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type mockImageStore struct {
	mock.Mock
}

func (m *mockImageStore) GetBinaryByID(ctx context.Context, id string) ([]byte, error) {
	args := m.Called(ctx, id)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []eventbus.TransmissionEvent
}

func (r *eventRecorder) PublishAsync(topic string, args ...interface{}) {
	if topic != eventbus.EventTransmissionCompleted || len(args) != 1 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, args[0].(eventbus.TransmissionEvent))
}

func (r *eventRecorder) all() []eventbus.TransmissionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]eventbus.TransmissionEvent(nil), r.events...)
}

type harness struct {
	pipeline *Pipeline
	events   *eventRecorder
}

func newHarness(t *testing.T, images ImageStore, opts Options, override func(*Dependencies)) *harness {
	t.Helper()
	logger := platformtesting.SetupTestLogger(t)
	client := httpclient.New(httpclient.Options{UserAgent: "matrix-test"})
	sec := config.DefaultConfig().Security

	events := &eventRecorder{}
	deps := Dependencies{
		Fetcher:    display.NewFetcher(client, logger),
		Encoder:    frame.NewEncoder(image.NewSecurityValidator(&sec, logger), logger),
		Sender:     frame.NewTransmitter(client, logger),
		Downloader: image.NewDownloader(client, sec.MaxFileSize, logger),
		Images:     images,
		Events:     events,
		Logger:     logger,
	}
	if override != nil {
		override(&deps)
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = RetryPolicy{Attempts: 3}
	}
	return &harness{pipeline: NewPipeline(deps, opts), events: events}
}

func TestSendImageByURL_DisplaysCroppedFrame(t *testing.T) {
	device := newDevice(t, nil)
	host := newImageHost(t, "image/png", http.StatusOK, landscapePNG(t))
	h := newHarness(t, nil, Options{}, nil)

	res := h.pipeline.SendImageByURL(context.Background(), host.URL, device.URL+"/")

	assert.Equal(t, Result{Success: true}, res)
	frames := device.received()
	require.Len(t, frames, 1)
	assert.Len(t, frames[0], 64*32*4)
	assert.Equal(t, int32(1), device.configHits.Load())

	events := h.events.all()
	require.Len(t, events, 1)
	assert.True(t, events[0].Success)
	assert.Equal(t, eventbus.ModeURL, events[0].Mode)
	assert.Equal(t, host.URL, events[0].Source)
	assert.NotEmpty(t, events[0].ID)
}

func TestSendImageByURL_Idempotent(t *testing.T) {
	device := newDevice(t, nil)
	host := newImageHost(t, "image/png", http.StatusOK, landscapePNG(t))
	h := newHarness(t, nil, Options{}, nil)

	first := h.pipeline.SendImageByURL(context.Background(), host.URL, device.URL)
	second := h.pipeline.SendImageByURL(context.Background(), host.URL, device.URL)

	assert.Equal(t, Result{Success: true}, first)
	assert.Equal(t, first, second)
	frames := device.received()
	require.Len(t, frames, 2)
	assert.Equal(t, frames[0], frames[1])

	events := h.events.all()
	require.Len(t, events, 2)
	assert.NotEqual(t, events[0].ID, events[1].ID)
}

func TestSendImageByURL_RejectsUnsafeURLsBeforeNetwork(t *testing.T) {
	device := newDevice(t, nil)
	host := newImageHost(t, "image/png", http.StatusOK, landscapePNG(t))
	h := newHarness(t, nil, Options{}, nil)

	tests := []struct {
		name     string
		imageURL string
		endpoint string
		want     string
	}{
		{"empty endpoint", host.URL, "", "Invalid endpoint URL: URL is empty"},
		{"blank endpoint", host.URL, "   ", "Invalid endpoint URL: URL is empty"},
		{"ftp endpoint", host.URL, "ftp://device.local", `Invalid endpoint URL: scheme "ftp" is not allowed`},
		{"javascript endpoint", host.URL, "javascript:alert(1)", `Invalid endpoint URL: scheme "javascript" is not allowed`},
		{"file endpoint", host.URL, "file:///etc/passwd", `Invalid endpoint URL: scheme "file" is not allowed`},
		{"no host endpoint", host.URL, "http://", "Invalid endpoint URL: URL has no host"},
		{"query endpoint", host.URL, device.URL + "/?k=v", "Invalid endpoint URL: URL must not contain a query"},
		{"fragment endpoint", host.URL, device.URL + "#frag", "Invalid endpoint URL: URL must not contain a fragment"},
		{"empty image", "", device.URL, "Invalid image URL: URL is empty"},
		{"file image", "file:///etc/passwd", device.URL, `Invalid image URL: scheme "file" is not allowed`},
		{"data image", "data:image/png;base64,AAAA", device.URL, `Invalid image URL: scheme "data" is not allowed`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := h.pipeline.SendImageByURL(context.Background(), tt.imageURL, tt.endpoint)
			assert.Equal(t, Result{Success: false, Error: tt.want}, res)
		})
	}

	assert.Zero(t, device.configHits.Load())
	assert.Zero(t, device.frameHits.Load())
	assert.Zero(t, host.hits.Load())
}

func TestSendImageByURL_KeepsImageURLAsGiven(t *testing.T) {
	device := newDevice(t, nil)
	raw := landscapePNG(t)
	var gotURI atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURI.Store(r.URL.RequestURI())
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(raw)
	}))
	t.Cleanup(srv.Close)
	h := newHarness(t, nil, Options{}, nil)

	imageURL := srv.URL + "/img/?sig=abc"
	res := h.pipeline.SendImageByURL(context.Background(), imageURL, device.URL)

	assert.Equal(t, Result{Success: true}, res)
	assert.Equal(t, "/img/?sig=abc", gotURI.Load())
	require.Len(t, h.events.all(), 1)
	assert.Equal(t, imageURL, h.events.all()[0].Source)
}

func TestSendImageByURL_InvalidGeometryNeverPostsFrame(t *testing.T) {
	tests := []struct {
		config string
		want   string
	}{
		{`{"width":0,"height":32}`, "Invalid device configuration: width must be between 1 and 1024, got 0"},
		{`{"width":64,"height":1025}`, "Invalid device configuration: height must be between 1 and 1024, got 1025"},
		{`{"width":64.5,"height":32}`, "Invalid device configuration: width must be an integer"},
		{`{"width":"64","height":32}`, "Invalid device configuration: width must be a number"},
		{`{"height":32}`, "Invalid device configuration: width is missing"},
		{`[64,32]`, "Invalid device configuration: response is not a JSON object"},
		{`not json`, "Invalid device configuration: response is not valid JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.config, func(t *testing.T) {
			device := newDevice(t, func(d *fakeDevice) { d.config = tt.config })
			host := newImageHost(t, "image/png", http.StatusOK, landscapePNG(t))
			h := newHarness(t, nil, Options{}, nil)

			res := h.pipeline.SendImageByURL(context.Background(), host.URL, device.URL)

			assert.Equal(t, Result{Success: false, Error: tt.want}, res)
			assert.Zero(t, device.frameHits.Load())
			assert.Zero(t, host.hits.Load(), "configuration is checked before the image is fetched")
		})
	}
}

func TestSendImageByURL_StageFailures(t *testing.T) {
	pngData := landscapePNG(t)

	tests := []struct {
		name        string
		device      func(d *fakeDevice)
		contentType string
		status      int
		body        []byte
		want        string
	}{
		{
			name:        "configuration unavailable",
			device:      func(d *fakeDevice) { d.configStatus = http.StatusServiceUnavailable },
			contentType: "image/png", status: http.StatusOK, body: pngData,
			want: "Failed to fetch device configuration: HTTP 503",
		},
		{
			name:        "image missing",
			contentType: "image/png", status: http.StatusNotFound, body: nil,
			want: "Failed to download image: HTTP 404",
		},
		{
			name:        "not an image",
			contentType: "text/html", status: http.StatusOK, body: []byte("<html></html>"),
			want: `Failed to download image: unsupported content-type: "text/html"`,
		},
		{
			name:        "undecodable",
			contentType: "image/png", status: http.StatusOK, body: []byte("definitely not an image"),
			want: "Failed to decode image: ",
		},
		{
			name:        "device rejects",
			device:      func(d *fakeDevice) { d.frameStatus = http.StatusUnprocessableEntity },
			contentType: "image/png", status: http.StatusOK, body: pngData,
			want: "Device rejected frame: HTTP 422",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := newDevice(t, tt.device)
			host := newImageHost(t, tt.contentType, tt.status, tt.body)
			h := newHarness(t, nil, Options{}, nil)

			res := h.pipeline.SendImageByURL(context.Background(), host.URL, device.URL)

			assert.False(t, res.Success)
			assert.True(t, strings.HasPrefix(res.Error, tt.want), "got %q", res.Error)

			events := h.events.all()
			require.Len(t, events, 1)
			assert.False(t, events[0].Success)
			assert.Equal(t, res.Error, events[0].Error)
		})
	}
}

func TestSendImageByURL_FrameTimeout(t *testing.T) {
	device := newDevice(t, func(d *fakeDevice) { d.hang = true })
	host := newImageHost(t, "image/png", http.StatusOK, landscapePNG(t))
	h := newHarness(t, nil, Options{Timeout: 200 * time.Millisecond}, nil)

	res := h.pipeline.SendImageByURL(context.Background(), host.URL, device.URL)

	assert.Equal(t, Result{Success: false, Error: "Request timed out after 200 milliseconds"}, res)
	assert.Equal(t, int32(1), device.frameHits.Load())
}

func TestSendImageByURL_UnreachableDevice(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	deadURL := srv.URL
	srv.Close()
	host := newImageHost(t, "image/png", http.StatusOK, landscapePNG(t))
	h := newHarness(t, nil, Options{}, nil)

	res := h.pipeline.SendImageByURL(context.Background(), host.URL, deadURL)

	assert.False(t, res.Success)
	assert.True(t, strings.HasPrefix(res.Error, "Failed to fetch device configuration: "), res.Error)
}

type shortEncoder struct{}

func (shortEncoder) Encode(_ []byte, g display.Geometry) (*frame.Frame, error) {
	return &frame.Frame{Width: g.Width, Height: g.Height, Pix: make([]byte, 100)}, nil
}

type panickingEncoder struct{}

func (panickingEncoder) Encode([]byte, display.Geometry) (*frame.Frame, error) {
	panic("encoder exploded")
}

func TestRun_SizeMismatchBlocksTransmit(t *testing.T) {
	device := newDevice(t, nil)
	host := newImageHost(t, "image/png", http.StatusOK, landscapePNG(t))
	h := newHarness(t, nil, Options{}, func(d *Dependencies) { d.Encoder = shortEncoder{} })

	res := h.pipeline.SendImageByURL(context.Background(), host.URL, device.URL)

	assert.Equal(t, Result{Success: false, Error: "Frame size mismatch: got 100 bytes, expected 8192"}, res)
	assert.Zero(t, device.frameHits.Load())
}

func TestRun_RecoversPanics(t *testing.T) {
	device := newDevice(t, nil)
	host := newImageHost(t, "image/png", http.StatusOK, landscapePNG(t))
	h := newHarness(t, nil, Options{}, func(d *Dependencies) { d.Encoder = panickingEncoder{} })

	res := h.pipeline.SendImageByURL(context.Background(), host.URL, device.URL)

	assert.Equal(t, Result{Success: false, Error: "Unexpected error: encoder exploded"}, res)
	assert.Len(t, h.events.all(), 1)
}

func TestSendStoredImage_Success(t *testing.T) {
	device := newDevice(t, nil)
	store := &mockImageStore{}
	store.On("GetBinaryByID", mock.Anything, "img-1").Return(landscapePNG(t), nil).Once()
	h := newHarness(t, store, Options{}, nil)

	res := h.pipeline.SendStoredImage(context.Background(), "img-1", device.URL)

	assert.Equal(t, Result{Success: true}, res)
	require.Len(t, device.received(), 1)
	assert.Len(t, device.received()[0], 8192)
	store.AssertExpectations(t)

	events := h.events.all()
	require.Len(t, events, 1)
	assert.Equal(t, eventbus.ModeStored, events[0].Mode)
	assert.Equal(t, "img-1", events[0].Source)
}

func TestSendStoredImage_NotFoundAfterConfigFetch(t *testing.T) {
	device := newDevice(t, nil)
	store := &mockImageStore{}
	store.On("GetBinaryByID", mock.Anything, "nonexistent-id").Return(nil, nil).Once()
	h := newHarness(t, store, Options{}, nil)

	res := h.pipeline.SendStoredImage(context.Background(), "nonexistent-id", device.URL)

	assert.Equal(t, Result{Success: false, Error: "Image not found"}, res)
	// configuration is always fetched before the image lookup
	assert.Equal(t, int32(1), device.configHits.Load())
	assert.Zero(t, device.frameHits.Load())
	store.AssertExpectations(t)
}

func TestSendStoredImage_MissingID(t *testing.T) {
	device := newDevice(t, nil)
	store := &mockImageStore{}
	h := newHarness(t, store, Options{}, nil)

	res := h.pipeline.SendStoredImage(context.Background(), "  ", device.URL)

	assert.Equal(t, Result{Success: false, Error: "Image ID is required"}, res)
	assert.Zero(t, device.configHits.Load())
	store.AssertNotCalled(t, "GetBinaryByID", mock.Anything, mock.Anything)
}

func TestSendStoredImage_RetriesTransientFailures(t *testing.T) {
	device := newDevice(t, nil)
	outage := platformerrors.Wrap(platformerrors.KindStorage, "image.get", "lookup failed", errors.New("connection reset"))

	store := &mockImageStore{}
	store.On("GetBinaryByID", mock.Anything, "img-2").Return(nil, outage).Twice()
	store.On("GetBinaryByID", mock.Anything, "img-2").Return(landscapePNG(t), nil).Once()
	h := newHarness(t, store, Options{}, nil)

	res := h.pipeline.SendStoredImage(context.Background(), "img-2", device.URL)

	assert.Equal(t, Result{Success: true}, res)
	store.AssertNumberOfCalls(t, "GetBinaryByID", 3)
}

func TestSendStoredImage_GivesUpAfterRetries(t *testing.T) {
	device := newDevice(t, nil)
	outage := platformerrors.Wrap(platformerrors.KindStorage, "image.get", "lookup failed", errors.New("connection reset"))

	store := &mockImageStore{}
	store.On("GetBinaryByID", mock.Anything, "img-3").Return(nil, outage)
	h := newHarness(t, store, Options{}, nil)

	res := h.pipeline.SendStoredImage(context.Background(), "img-3", device.URL)

	assert.Equal(t, Result{Success: false, Error: "Failed to load image: lookup failed: connection reset"}, res)
	store.AssertNumberOfCalls(t, "GetBinaryByID", 3)
	assert.Zero(t, device.frameHits.Load())
}

func TestSendStoredImage_DoesNotRetryPermanentFailures(t *testing.T) {
	device := newDevice(t, nil)
	store := &mockImageStore{}
	store.On("GetBinaryByID", mock.Anything, "img-4").Return(nil, errors.New("corrupt record"))
	h := newHarness(t, store, Options{}, nil)

	res := h.pipeline.SendStoredImage(context.Background(), "img-4", device.URL)

	assert.Equal(t, Result{Success: false, Error: "Failed to load image: corrupt record"}, res)
	store.AssertNumberOfCalls(t, "GetBinaryByID", 1)
}

func TestPipeline_DefaultTimeout(t *testing.T) {
	p := NewPipeline(Dependencies{}, Options{})
	assert.Equal(t, 15*time.Second, p.Timeout())
	assert.Equal(t, DefaultRetryPolicy(), p.retry)
}
