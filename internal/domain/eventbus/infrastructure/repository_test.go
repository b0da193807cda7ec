package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matrix-server-go/internal/domain/eventbus"
	"matrix-server-go/internal/platform/storage"
	platformtesting "matrix-server-go/internal/platform/testing"
)

func TestTransmissionRepository(t *testing.T) {
	ctx := context.Background()
	db, err := storage.Open(ctx, platformtesting.MemoryDSN(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close(db) })

	repo := NewTransmissionRepository(db)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	events := []eventbus.TransmissionEvent{
		{ID: "1", Mode: eventbus.ModeURL, Source: "http://img/a.png", Endpoint: "http://dev-a", Success: true, DurationMs: 40, FinishedAt: base},
		{ID: "2", Mode: eventbus.ModeStored, Source: "img-1", Endpoint: "http://dev-a", Error: "Image not found", FinishedAt: base.Add(time.Minute)},
		{ID: "3", Mode: eventbus.ModeURL, Source: "http://img/b.png", Endpoint: "http://dev-b", Success: true, FinishedAt: base.Add(2 * time.Minute)},
	}
	for _, ev := range events {
		require.NoError(t, repo.Store(ctx, ev))
	}

	recent, err := repo.FindRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "3", recent[0].ID)
	assert.Equal(t, "2", recent[1].ID)
	assert.Equal(t, "Image not found", recent[1].Error)

	devA, err := repo.FindByEndpoint(ctx, "http://dev-a", 0)
	require.NoError(t, err)
	assert.Len(t, devA, 2)

	stats, err := repo.GetEventStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(2), stats.Succeeded)
	assert.Equal(t, int64(1), stats.Failed)

	removed, err := repo.DeleteOldEvents(ctx, base.Add(90*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	rest, err := repo.FindRecent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "3", rest[0].ID)
}

func TestTransmissionRepository_DuplicateID(t *testing.T) {
	ctx := context.Background()
	db, err := storage.Open(ctx, platformtesting.MemoryDSN(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close(db) })

	repo := NewTransmissionRepository(db)
	ev := eventbus.TransmissionEvent{ID: "dup", Mode: eventbus.ModeURL, Source: "s", Endpoint: "e", FinishedAt: time.Now()}
	require.NoError(t, repo.Store(ctx, ev))
	assert.Error(t, repo.Store(ctx, ev))
}
