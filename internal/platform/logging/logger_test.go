package logging

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T, level string) (*Logger, *bytes.Buffer, string) {
	t.Helper()
	dir := t.TempDir()
	console := &bytes.Buffer{}
	logger, err := New(Config{
		Level:    level,
		Dir:      dir,
		Filename: "test.log",
		Console:  console,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = logger.Close() })
	return logger, console, filepath.Join(dir, "test.log")
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(content)
}

func TestNew_DefaultsAndClose(t *testing.T) {
	logger, err := New(Config{Dir: t.TempDir(), Console: &bytes.Buffer{}})
	require.NoError(t, err)
	assert.Equal(t, "server.log", logger.config.Filename)

	assert.NoError(t, logger.Close())
	assert.NoError(t, logger.Close(), "second close must be a no-op")
}

func TestLogger_InfoWritesFileAndConsole(t *testing.T) {
	logger, console, path := newTestLogger(t, "info")

	logger.Info("frame pushed")

	assert.Contains(t, readFile(t, path), "frame pushed")
	assert.Contains(t, console.String(), "frame pushed")
}

func TestLogger_FormatArgs(t *testing.T) {
	logger, _, path := newTestLogger(t, "info")

	logger.Info("device %s reported %dx%d", "http://matrix.local", 64, 32)

	assert.Contains(t, readFile(t, path), "device http://matrix.local reported 64x32")
}

func TestLogger_StructuredFields(t *testing.T) {
	logger, _, path := newTestLogger(t, "info")

	logger.Info("transmission finished", map[string]interface{}{
		"endpoint": "http://matrix.local",
		"success":  true,
	})

	content := readFile(t, path)
	assert.Contains(t, content, `"endpoint":"http://matrix.local"`)
	assert.Contains(t, content, `"success":true`)
}

func TestLogger_TagPrefix(t *testing.T) {
	logger, console, path := newTestLogger(t, "debug")

	logger.InfoTag("Transmit", "sent %d bytes", 8192)
	logger.DebugTag("Device", "geometry ok")

	content := readFile(t, path)
	assert.Contains(t, content, "[Transmit] sent 8192 bytes")
	assert.Contains(t, content, "[Device] geometry ok")
	assert.Contains(t, console.String(), "[Transmit] sent 8192 bytes")
}

func TestLogger_LevelFiltering(t *testing.T) {
	logger, _, path := newTestLogger(t, "warn")

	logger.Debug("debug line")
	logger.Info("info line")
	logger.Warn("warn line")
	logger.Error("error line")

	content := readFile(t, path)
	assert.NotContains(t, content, "debug line")
	assert.NotContains(t, content, "info line")
	assert.Contains(t, content, "warn line")
	assert.Contains(t, content, "error line")
}

func TestLogger_NilReceiverIsSafe(t *testing.T) {
	var logger *Logger
	assert.NotPanics(t, func() {
		logger.Info("ignored")
		logger.WarnTag("HTTP", "ignored %d", 1)
		_ = logger.Slog()
		_ = logger.Close()
	})
}

func TestLogger_ConcurrentLogging(t *testing.T) {
	logger, _, path := newTestLogger(t, "info")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				logger.Info("worker %d message %d", n, j)
			}
		}(i)
	}
	wg.Wait()

	content := readFile(t, path)
	for i := 0; i < 10; i++ {
		assert.Contains(t, content, fmt.Sprintf("worker %d message 9", i))
	}
}

func TestFormatLog(t *testing.T) {
	assert.Equal(t, "[HTTP] ready", FormatLog("HTTP", "ready"))
	assert.Equal(t, "[Other] kept", FormatLog("HTTP", "[Other] kept"))
	assert.Equal(t, "plain", FormatLog("", " plain "))
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for input, want := range tests {
		assert.Equal(t, want, ParseLevel(input), input)
	}
}

func TestConsoleHandler_Enabled(t *testing.T) {
	h := newConsoleHandler(&bytes.Buffer{}, slog.LevelWarn)
	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
}

func TestConsoleHandler_WithAttrs(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(newConsoleHandler(buf, slog.LevelInfo)).With("component", "pipeline")

	logger.Info("stage done", "stage", "encode")

	assert.Contains(t, buf.String(), "component=pipeline")
	assert.Contains(t, buf.String(), "stage=encode")
}
