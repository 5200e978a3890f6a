package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"qcwarehouse/internal/qc/ledger"

	"github.com/redis/go-redis/v9"
)

// SnapshotStore keeps in-progress ledgers so a session survives a restart or
// a closed browser tab.
type SnapshotStore interface {
	Load(ctx context.Context, qcID int) (ledger.Snapshot, bool, error)
	Save(ctx context.Context, qcID int, snapshot ledger.Snapshot) error
	Delete(ctx context.Context, qcID int) error
}

type MemorySnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[int][]byte
}

func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{snapshots: make(map[int][]byte)}
}

func (s *MemorySnapshotStore) Load(_ context.Context, qcID int) (ledger.Snapshot, bool, error) {
	s.mu.RLock()
	raw, ok := s.snapshots[qcID]
	s.mu.RUnlock()
	if !ok {
		return ledger.Snapshot{}, false, nil
	}

	var snap ledger.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return ledger.Snapshot{}, false, fmt.Errorf("decode snapshot of qc %d: %w", qcID, err)
	}
	return snap, true, nil
}

// Save stores an encoded copy so later ledger changes never leak into it.
func (s *MemorySnapshotStore) Save(_ context.Context, qcID int, snapshot ledger.Snapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot of qc %d: %w", qcID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[qcID] = raw
	return nil
}

func (s *MemorySnapshotStore) Delete(_ context.Context, qcID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, qcID)
	return nil
}

const DefaultSnapshotTTL = 24 * time.Hour

type RedisSnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSnapshotStore parses a redis:// URL. Snapshots expire after ttl.
func NewRedisSnapshotStore(url string, ttl time.Duration) (*RedisSnapshotStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &RedisSnapshotStore{client: redis.NewClient(opts), ttl: ttl}, nil
}

func (s *RedisSnapshotStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisSnapshotStore) Close() error {
	return s.client.Close()
}

func snapshotKey(qcID int) string {
	return fmt.Sprintf("qc:session:%d", qcID)
}

func (s *RedisSnapshotStore) Load(ctx context.Context, qcID int) (ledger.Snapshot, bool, error) {
	val, err := s.client.Get(ctx, snapshotKey(qcID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ledger.Snapshot{}, false, nil
		}
		return ledger.Snapshot{}, false, fmt.Errorf("load snapshot of qc %d: %w", qcID, err)
	}

	var snap ledger.Snapshot
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		return ledger.Snapshot{}, false, fmt.Errorf("decode snapshot of qc %d: %w", qcID, err)
	}
	return snap, true, nil
}

func (s *RedisSnapshotStore) Save(ctx context.Context, qcID int, snapshot ledger.Snapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot of qc %d: %w", qcID, err)
	}
	if err := s.client.Set(ctx, snapshotKey(qcID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save snapshot of qc %d: %w", qcID, err)
	}
	return nil
}

func (s *RedisSnapshotStore) Delete(ctx context.Context, qcID int) error {
	return s.client.Del(ctx, snapshotKey(qcID)).Err()
}
