package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wallet-pnl/internal/types"
)

// runHistoryLen is how many run summaries are kept in the history list
const runHistoryLen = 20

// ErrLockHeld is returned when another ingestion run holds the lock
var ErrLockHeld = errors.New("ingest lock is held by another run")

// releaseScript deletes the lock only if it still carries our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// IngestStateStore keeps the ingestion lock and run summaries in Redis
type IngestStateStore struct {
	redis      *RedisStore
	lockKey    string
	lastRunKey string
	historyKey string
}

// NewIngestStateStore creates a new ingestion state store
func NewIngestStateStore(store *RedisStore) *IngestStateStore {
	return &IngestStateStore{
		redis:      store,
		lockKey:    store.Key("ingest", "lock"),
		lastRunKey: store.Key("ingest", "last_run"),
		historyKey: store.Key("ingest", "runs"),
	}
}

// AcquireLock takes the ingestion lock for ttl and returns the token needed
// to release it, or ErrLockHeld.
func (s *IngestStateStore) AcquireLock(ctx context.Context, ttl time.Duration) (string, error) {
	token := uuid.NewString()

	ok, err := s.redis.client.SetNX(ctx, s.lockKey, token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("failed to acquire ingest lock: %w", err)
	}
	if !ok {
		return "", ErrLockHeld
	}
	return token, nil
}

// ReleaseLock releases the lock if token still owns it. Releasing an expired
// or foreign lock is a no-op.
func (s *IngestStateStore) ReleaseLock(ctx context.Context, token string) error {
	if err := releaseScript.Run(ctx, s.redis.client, []string{s.lockKey}, token).Err(); err != nil {
		return fmt.Errorf("failed to release ingest lock: %w", err)
	}
	return nil
}

// SaveLastRun records summary as the latest run and prepends it to the
// capped run history
func (s *IngestStateStore) SaveLastRun(ctx context.Context, summary *types.IngestRunSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode run summary: %w", err)
	}

	_, err = s.redis.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.lastRunKey, data, 0)
		pipe.LPush(ctx, s.historyKey, data)
		pipe.LTrim(ctx, s.historyKey, 0, runHistoryLen-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save run summary: %w", err)
	}
	return nil
}

// LastRun returns the most recent run summary, or nil if none was recorded
func (s *IngestStateStore) LastRun(ctx context.Context) (*types.IngestRunSummary, error) {
	data, err := s.redis.client.Get(ctx, s.lastRunKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run summary: %w", err)
	}
	return decodeRunSummary(data)
}

// RecentRuns returns up to n run summaries, newest first
func (s *IngestStateStore) RecentRuns(ctx context.Context, n int) ([]*types.IngestRunSummary, error) {
	if n <= 0 {
		return []*types.IngestRunSummary{}, nil
	}
	if n > runHistoryLen {
		n = runHistoryLen
	}

	items, err := s.redis.client.LRange(ctx, s.historyKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load run history: %w", err)
	}

	runs := make([]*types.IngestRunSummary, 0, len(items))
	for _, item := range items {
		summary, err := decodeRunSummary([]byte(item))
		if err != nil {
			return nil, err
		}
		runs = append(runs, summary)
	}
	return runs, nil
}

func decodeRunSummary(data []byte) (*types.IngestRunSummary, error) {
	var summary types.IngestRunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to decode run summary: %w", err)
	}
	return &summary, nil
}
