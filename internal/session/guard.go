package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrSaveInProgress = errors.New("a save is already in progress")

// releaseScript deletes the lock only while it still holds the caller's token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SaveGuard allows one in-flight save per identity
type SaveGuard interface {
	Acquire(ctx context.Context, userID uuid.UUID) (release func(), err error)
}

type redisSaveGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSaveGuard creates a SaveGuard whose locks expire after ttl if never released
func NewRedisSaveGuard(client *redis.Client, ttl time.Duration) SaveGuard {
	return &redisSaveGuard{client: client, ttl: ttl}
}

func (g *redisSaveGuard) Acquire(ctx context.Context, userID uuid.UUID) (func(), error) {
	key := keyPrefix + userID.String() + ":saving"
	token := uuid.NewString()

	acquired, err := g.client.SetNX(ctx, key, token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire save guard: %w", err)
	}
	if !acquired {
		return nil, ErrSaveInProgress
	}

	release := func() {
		// The lock may have expired and been taken by another save.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, g.client, []string{key}, token).Err()
	}
	return release, nil
}
