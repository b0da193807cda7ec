package testing

import (
	"bytes"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"matrix-server-go/internal/platform/config"
	"matrix-server-go/internal/platform/logging"
)

var dsnSeq int64

// SetupTestConfig returns the default configuration with an in-memory image
// store and short outbound deadlines.
func SetupTestConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Server.IP = "127.0.0.1"
	cfg.Log.Level = "DEBUG"
	cfg.Log.Dir = t.TempDir()
	cfg.Log.File = "test.log"
	cfg.Database.DSN = MemoryDSN(t)
	cfg.ImageStore.Driver = "memory"
	cfg.Transmission.RetryBaseDelay = 0
	cfg.Transmission.RetryMaxDelay = 0
	return cfg
}

// SetupTestLogger creates a logger writing into the test's temp dir. The
// console output is kept in memory.
func SetupTestLogger(t *testing.T) *logging.Logger {
	t.Helper()

	cfg := SetupTestConfig(t)
	logger, err := logging.New(logging.Config{
		Level:    cfg.Log.Level,
		Dir:      cfg.Log.Dir,
		Filename: cfg.Log.File,
		Console:  &bytes.Buffer{},
	})
	require.NoError(t, err, "failed to create test logger")
	t.Cleanup(func() { _ = logger.Close() })

	return logger
}

// MemoryDSN returns a unique shared-cache in-memory SQLite DSN.
func MemoryDSN(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("file:test-%d?mode=memory&cache=shared", atomic.AddInt64(&dsnSeq, 1))
}
