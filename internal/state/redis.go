package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storyweaver/harvester/internal/domain"

	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	redisClient *redis.Client
	keyPrefix   string
}

// NewRedisStore keeps the state under <prefix>state and the slug cache in the <prefix>slugs hash
func NewRedisStore(redisClient *redis.Client, keyPrefix string) Store {
	return &redisStore{
		redisClient: redisClient,
		keyPrefix:   keyPrefix,
	}
}

func (s *redisStore) stateKey() string {
	return s.keyPrefix + "state"
}

func (s *redisStore) slugsKey() string {
	return s.keyPrefix + "slugs"
}

func (s *redisStore) Load(ctx context.Context) (*domain.QueueState, error) {
	val, err := s.redisClient.Get(ctx, s.stateKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // No progress saved yet
		}
		return nil, fmt.Errorf("failed to get queue state: %w", err)
	}
	return decodeState(val, s.stateKey()), nil
}

func (s *redisStore) Save(ctx context.Context, st *domain.QueueState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode queue state: %w", err)
	}
	if err := s.redisClient.Set(ctx, s.stateKey(), data, 0).Err(); err != nil { // No expiration
		return fmt.Errorf("failed to set queue state: %w", err)
	}
	return nil
}

func (s *redisStore) LoadSlugCache(ctx context.Context) (domain.SlugCache, error) {
	vals, err := s.redisClient.HGetAll(ctx, s.slugsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load slug cache: %w", err)
	}
	return domain.SlugCache(vals), nil
}

func (s *redisStore) RecordSlug(ctx context.Context, remoteID, slug string) error {
	// HSETNX keeps the cache append-only
	if err := s.redisClient.HSetNX(ctx, s.slugsKey(), remoteID, slug).Err(); err != nil {
		return fmt.Errorf("failed to record slug for %s: %w", remoteID, err)
	}
	return nil
}

func (s *redisStore) Reset(ctx context.Context) (string, error) {
	n, err := s.redisClient.Exists(ctx, s.stateKey()).Result()
	if err != nil {
		return "", fmt.Errorf("failed to check queue state: %w", err)
	}
	if n == 0 {
		return "", nil
	}
	archived := s.keyPrefix + "state:archive:" + archiveStamp(time.Now())
	if err := s.redisClient.Rename(ctx, s.stateKey(), archived).Err(); err != nil {
		return "", fmt.Errorf("failed to archive queue state: %w", err)
	}
	return archived, nil
}

func (s *redisStore) Close() error {
	return nil // The client is owned by the container
}
