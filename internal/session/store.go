package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dreampuff/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "dreampuff:session:"

	// StateTTL bounds how long abandoned session state survives in Redis
	StateTTL = 48 * time.Hour
)

// Store holds the per-identity work session state
type Store interface {
	StartTime(ctx context.Context, userID uuid.UUID) (time.Time, bool, error)
	SetStartTime(ctx context.Context, userID uuid.UUID, start time.Time) error
	ClearStartTime(ctx context.Context, userID uuid.UUID) error
	Info(ctx context.Context, userID uuid.UUID) (*domain.SessionInfo, error)
	SetInfo(ctx context.Context, userID uuid.UUID, info domain.SessionInfo) error
	ClearInfo(ctx context.Context, userID uuid.UUID) error
}

// RedisStore keeps session state in Redis under dreampuff:session:<uid>:*
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Store backed by the given client
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, ttl: StateTTL}
}

func startKey(userID uuid.UUID) string {
	return keyPrefix + userID.String() + ":start"
}

func infoKey(userID uuid.UUID) string {
	return keyPrefix + userID.String() + ":info"
}

// StartTime returns the recorded session start; ok is false when none is recorded
func (s *RedisStore) StartTime(ctx context.Context, userID uuid.UUID) (time.Time, bool, error) {
	raw, err := s.client.Get(ctx, startKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read session start: %w", err)
	}

	start, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		// A corrupt value is treated like a missing one.
		return time.Time{}, false, nil
	}
	return start, true, nil
}

func (s *RedisStore) SetStartTime(ctx context.Context, userID uuid.UUID, start time.Time) error {
	if err := s.client.Set(ctx, startKey(userID), start.UTC().Format(time.RFC3339Nano), s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write session start: %w", err)
	}
	return nil
}

func (s *RedisStore) ClearStartTime(ctx context.Context, userID uuid.UUID) error {
	if err := s.client.Del(ctx, startKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to clear session start: %w", err)
	}
	return nil
}

// Info returns the session info, or nil when none is stored
func (s *RedisStore) Info(ctx context.Context, userID uuid.UUID) (*domain.SessionInfo, error) {
	raw, err := s.client.Get(ctx, infoKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session info: %w", err)
	}

	var info domain.SessionInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, nil
	}
	return &info, nil
}

func (s *RedisStore) SetInfo(ctx context.Context, userID uuid.UUID, info domain.SessionInfo) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to encode session info: %w", err)
	}
	if err := s.client.Set(ctx, infoKey(userID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write session info: %w", err)
	}
	return nil
}

func (s *RedisStore) ClearInfo(ctx context.Context, userID uuid.UUID) error {
	if err := s.client.Del(ctx, infoKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to clear session info: %w", err)
	}
	return nil
}
