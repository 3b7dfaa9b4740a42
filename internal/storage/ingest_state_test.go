package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-pnl/internal/types"
)

func setupTestIngestState(t *testing.T) (*IngestStateStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewIngestStateStore(NewRedisStoreFromClient(client, "pnl")), mr
}

func TestIngestStateStore_LockIsExclusive(t *testing.T) {
	store, _ := setupTestIngestState(t)
	ctx := testContext(t)

	token, err := store.AcquireLock(ctx, time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	_, err = store.AcquireLock(ctx, time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, store.ReleaseLock(ctx, token))

	again, err := store.AcquireLock(ctx, time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, token, again)
}

func TestIngestStateStore_ReleaseIgnoresForeignToken(t *testing.T) {
	store, mr := setupTestIngestState(t)
	ctx := testContext(t)

	token, err := store.AcquireLock(ctx, time.Minute)
	require.NoError(t, err)

	require.NoError(t, store.ReleaseLock(ctx, "someone-else"))
	got, err := mr.Get("pnl:ingest:lock")
	require.NoError(t, err)
	assert.Equal(t, token, got)
}

func TestIngestStateStore_LockExpires(t *testing.T) {
	store, mr := setupTestIngestState(t)
	ctx := testContext(t)

	_, err := store.AcquireLock(ctx, time.Minute)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = store.AcquireLock(ctx, time.Minute)
	assert.NoError(t, err)
}

func TestIngestStateStore_LastRun(t *testing.T) {
	store, _ := setupTestIngestState(t)
	ctx := testContext(t)

	none, err := store.LastRun(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	summary := &types.IngestRunSummary{
		RunID:          "run-1",
		StartedAt:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		FinishedAt:     time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC),
		TokensIngested: []string{"bitcoin", "ethereum"},
		PointsStored:   336,
		Failures:       []types.IngestFailure{{TokenID: "dogecoin", Error: "upstream error"}},
	}
	require.NoError(t, store.SaveLastRun(ctx, summary))

	got, err := store.LastRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, summary.RunID, got.RunID)
	assert.Equal(t, summary.PointsStored, got.PointsStored)
	assert.Equal(t, summary.TokensIngested, got.TokensIngested)
	assert.Equal(t, summary.Failures, got.Failures)
	assert.True(t, summary.FinishedAt.Equal(got.FinishedAt))
}

func TestIngestStateStore_RecentRunsNewestFirst(t *testing.T) {
	store, _ := setupTestIngestState(t)
	ctx := testContext(t)

	empty, err := store.RecentRuns(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, empty)

	for i := 1; i <= runHistoryLen+5; i++ {
		require.NoError(t, store.SaveLastRun(ctx, &types.IngestRunSummary{
			RunID:        fmt.Sprintf("run-%d", i),
			PointsStored: i,
		}))
	}

	runs, err := store.RecentRuns(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, fmt.Sprintf("run-%d", runHistoryLen+5), runs[0].RunID)
	assert.Equal(t, fmt.Sprintf("run-%d", runHistoryLen+3), runs[2].RunID)

	all, err := store.RecentRuns(ctx, 1000)
	require.NoError(t, err)
	assert.Len(t, all, runHistoryLen)

	last, err := store.LastRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, runs[0].RunID, last.RunID)
}

func TestRedisStore_KeyPrefix(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	t.Cleanup(func() { _ = client.Close() })

	assert.Equal(t, "pnl:ingest:lock", NewRedisStoreFromClient(client, "pnl").Key("ingest", "lock"))
	assert.Equal(t, "pnl:ingest:lock", NewRedisStoreFromClient(client, "pnl:").Key("ingest", "lock"))
	assert.Equal(t, "ingest:lock", NewRedisStoreFromClient(client, "").Key("ingest", "lock"))
}

func TestIngestStateStore_PrefixesIsolateDeployments(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	staging := NewIngestStateStore(NewRedisStoreFromClient(client, "staging"))
	prod := NewIngestStateStore(NewRedisStoreFromClient(client, "prod"))
	ctx := testContext(t)

	_, err = staging.AcquireLock(ctx, time.Minute)
	require.NoError(t, err)
	_, err = prod.AcquireLock(ctx, time.Minute)
	assert.NoError(t, err)
}
