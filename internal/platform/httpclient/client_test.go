package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(url string) RequestFunc {
	return func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}
}

func TestFormatTimeout(t *testing.T) {
	assert.Equal(t, "15 seconds", FormatTimeout(15*time.Second))
	assert.Equal(t, "1 second", FormatTimeout(time.Second))
	assert.Equal(t, "1500 milliseconds", FormatTimeout(1500*time.Millisecond))
	assert.Equal(t, "50 milliseconds", FormatTimeout(50*time.Millisecond))
	assert.Equal(t, "1 millisecond", FormatTimeout(time.Millisecond))
}

func TestClient_DoHandlesResponse(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("pong"))
	}))
	defer srv.Close()

	c := New(Options{UserAgent: "Matrix-Server/test"})
	var body string
	err := c.Do(context.Background(), "ping", time.Second, get(srv.URL), func(resp *http.Response) error {
		b, err := io.ReadAll(resp.Body)
		body = string(b)
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, "pong", body)
	assert.Equal(t, "Matrix-Server/test", gotUA)
}

func TestClient_DoTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := New(Options{})
	err := c.Do(context.Background(), "frame", 50*time.Millisecond, get(srv.URL), nil)

	require.Error(t, err)
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "frame", te.Op)
	assert.Equal(t, 50*time.Millisecond, te.Timeout)
	assert.True(t, IsTimeout(err))
	assert.Equal(t, "frame timed out after 50 milliseconds", err.Error())
}

func TestClient_DoParentCancelIsNotTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := New(Options{}).Do(ctx, "configuration", 5*time.Second, get(srv.URL), nil)
	require.Error(t, err)
	assert.False(t, IsTimeout(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_DoBuildError(t *testing.T) {
	err := New(Options{}).Do(context.Background(), "x", time.Second, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, "://bad", nil)
	}, nil)
	require.Error(t, err)
	assert.False(t, IsTimeout(err))
}
