package mapstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/mirrorfx/router/internal/models"
)

// RedisStore is the production Store: a Redis keyspace fronted by a
// write-through cache. The cache is populated on read and on write; reads
// serve from it first and fall back to Redis.
type RedisStore struct {
	rdb       redis.UniversalClient
	logger    *logrus.Logger
	closedTTL time.Duration

	mu    sync.RWMutex
	cache map[models.MappingKey]models.Mapping
}

var _ Store = (*RedisStore)(nil)

// RedisOption customizes a RedisStore.
type RedisOption func(*RedisStore)

// WithClosedTTL overrides the recently-closed TTL.
func WithClosedTTL(d time.Duration) RedisOption {
	return func(s *RedisStore) { s.closedTTL = d }
}

// NewRedisStore creates a store for the given redis URL
// (redis://[user:pass@]host:port/db).
func NewRedisStore(rawURL string, logger *logrus.Logger, opts ...RedisOption) (*RedisStore, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing mapping store URL: %w", err)
	}
	return NewRedisStoreWithClient(redis.NewClient(opt), logger, opts...), nil
}

// NewRedisStoreWithClient wraps an existing client (tests use miniredis here).
func NewRedisStoreWithClient(rdb redis.UniversalClient, logger *logrus.Logger, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		rdb:       rdb,
		logger:    logger,
		closedTTL: DefaultClosedTTL,
		cache:     make(map[models.MappingKey]models.Mapping),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateMapping implements Store. SETNX keeps the first writer's destination
// position; a retried create against an existing key is a no-op.
func (s *RedisStore) CreateMapping(ctx context.Context, m models.Mapping) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling mapping: %w", err)
	}
	key := mappingKey(m.SourceAccountID, m.SourcePositionID, m.DestAccountID)
	created, err := s.rdb.SetNX(ctx, key, payload, 0).Result()
	if err != nil {
		return fmt.Errorf("storing mapping: %w", err)
	}
	if !created {
		s.logger.WithFields(logrus.Fields{
			"source":   m.SourceAccountID,
			"position": m.SourcePositionID,
			"dest":     m.DestAccountID,
		}).Warn("mapping already exists, keeping original")
		return nil
	}
	member := indexMember(m.SourcePositionID, m.DestAccountID)
	if err := s.rdb.SAdd(ctx, indexKey(m.SourceAccountID), member).Err(); err != nil {
		return fmt.Errorf("indexing mapping: %w", err)
	}

	s.mu.Lock()
	s.cache[m.Key()] = m
	s.mu.Unlock()
	return nil
}

// GetMapping implements Store: cache first, Redis fallback.
func (s *RedisStore) GetMapping(ctx context.Context, sourceAccountID, sourcePositionID, destAccountID string) (*models.Mapping, error) {
	key := models.MappingKey{
		SourceAccountID:  sourceAccountID,
		SourcePositionID: sourcePositionID,
		DestAccountID:    destAccountID,
	}
	s.mu.RLock()
	if m, ok := s.cache[key]; ok {
		s.mu.RUnlock()
		return &m, nil
	}
	s.mu.RUnlock()

	raw, err := s.rdb.Get(ctx, mappingKey(sourceAccountID, sourcePositionID, destAccountID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching mapping: %w", err)
	}
	var m models.Mapping
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decoding mapping: %w", err)
	}

	s.mu.Lock()
	s.cache[key] = m
	s.mu.Unlock()
	return &m, nil
}

// GetPositionMappings implements Store.
func (s *RedisStore) GetPositionMappings(ctx context.Context, sourceAccountID, sourcePositionID string) ([]models.Mapping, error) {
	all, err := s.GetAccountMappings(ctx, sourceAccountID)
	if err != nil {
		return nil, err
	}
	var out []models.Mapping
	for i := range all {
		if all[i].SourcePositionID == sourcePositionID {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// GetAccountMappings implements Store.
func (s *RedisStore) GetAccountMappings(ctx context.Context, sourceAccountID string) ([]models.Mapping, error) {
	members, err := s.rdb.SMembers(ctx, indexKey(sourceAccountID)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading mapping index: %w", err)
	}
	mappings := make([]models.Mapping, 0, len(members))
	for _, member := range members {
		posID, destID, ok := splitIndexMember(member)
		if !ok {
			continue
		}
		m, err := s.GetMapping(ctx, sourceAccountID, posID, destID)
		if err != nil {
			return nil, err
		}
		if m == nil {
			// Index member without a record: a crashed best-effort delete.
			// Clean it up and move on.
			if err := s.rdb.SRem(ctx, indexKey(sourceAccountID), member).Err(); err != nil {
				s.logger.WithError(err).WithField("member", member).Warn("failed to prune stale index entry")
			}
			continue
		}
		mappings = append(mappings, *m)
	}
	return mappings, nil
}

func splitIndexMember(member string) (posID, destID string, ok bool) {
	i := strings.LastIndex(member, "/")
	if i <= 0 || i == len(member)-1 {
		return "", "", false
	}
	return member[:i], member[i+1:], true
}

// FindByDestPosition implements Store.
func (s *RedisStore) FindByDestPosition(ctx context.Context, destAccountID, destPositionID string, hintSourceAccountIDs []string) (*models.Mapping, error) {
	for _, src := range hintSourceAccountIDs {
		mappings, err := s.GetAccountMappings(ctx, src)
		if err != nil {
			return nil, err
		}
		for i := range mappings {
			if mappings[i].DestAccountID == destAccountID && mappings[i].DestPositionID == destPositionID {
				return &mappings[i], nil
			}
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.cache {
		if m.DestAccountID == destAccountID && m.DestPositionID == destPositionID {
			found := m
			return &found, nil
		}
	}
	return nil, nil
}

// DeleteMapping implements Store. Mapping record first, index second; a crash
// in between leaves a stale index member that GetAccountMappings prunes.
func (s *RedisStore) DeleteMapping(ctx context.Context, sourceAccountID, sourcePositionID, destAccountID string) error {
	if err := s.rdb.Del(ctx, mappingKey(sourceAccountID, sourcePositionID, destAccountID)).Err(); err != nil {
		return fmt.Errorf("deleting mapping: %w", err)
	}
	member := indexMember(sourcePositionID, destAccountID)
	if err := s.rdb.SRem(ctx, indexKey(sourceAccountID), member).Err(); err != nil {
		s.logger.WithError(err).Warn("failed to remove mapping index entry")
	}

	s.mu.Lock()
	delete(s.cache, models.MappingKey{
		SourceAccountID:  sourceAccountID,
		SourcePositionID: sourcePositionID,
		DestAccountID:    destAccountID,
	})
	s.mu.Unlock()
	return nil
}

// RecordClose implements Store.
func (s *RedisStore) RecordClose(ctx context.Context, info models.CloseInfo) error {
	payload, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshaling close record: %w", err)
	}
	key := closedKey(info.SourceAccountID, info.SourcePositionID)
	if err := s.rdb.SetEx(ctx, key, payload, s.closedTTL).Err(); err != nil {
		return fmt.Errorf("storing close record: %w", err)
	}
	return nil
}

// WasRecentlyClosed implements Store.
func (s *RedisStore) WasRecentlyClosed(ctx context.Context, sourceAccountID, sourcePositionID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, closedKey(sourceAccountID, sourcePositionID)).Result()
	if err != nil {
		return false, fmt.Errorf("checking close record: %w", err)
	}
	return n > 0, nil
}

// Warm implements Store: loads every mapping of the given sources into the
// cache. Called once at startup so restarts rehydrate lifecycle state.
func (s *RedisStore) Warm(ctx context.Context, sourceAccountIDs []string) error {
	total := 0
	for _, src := range sourceAccountIDs {
		mappings, err := s.GetAccountMappings(ctx, src)
		if err != nil {
			return fmt.Errorf("warming cache for %s: %w", src, err)
		}
		total += len(mappings)
	}
	s.logger.WithField("mappings", total).Info("mapping cache warmed")
	return nil
}

// Ping implements Store.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("mapping store unreachable: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
