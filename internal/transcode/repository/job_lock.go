package repository

import (
	"context"
	"fmt"
	"time"

	"video_processor_worker/internal/transcode/domain"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// JobLock 防止同一支影片的重複投遞同時被處理
type JobLock interface {
	// Acquire return domain.ErrJobLocked when another holder exists
	Acquire(ctx context.Context, videoID string) (release func(context.Context) error, err error)
}

// NewNopJobLock lock that always succeeds, used when redis is disabled
func NewNopJobLock() JobLock {
	return nopJobLock{}
}

type nopJobLock struct{}

func (nopJobLock) Acquire(context.Context, string) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}

type redisJobLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisJobLock create redis backed JobLock, ttl should exceed the longest job
func NewRedisJobLock(client *redis.Client, ttl time.Duration) JobLock {
	return &redisJobLock{client: client, ttl: ttl}
}

// 只刪除自己持有的 lock
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

func lockKey(videoID string) string {
	return fmt.Sprintf("transcode:lock:%s", videoID)
}

func (l *redisJobLock) Acquire(ctx context.Context, videoID string) (func(context.Context) error, error) {
	key := lockKey(videoID)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx [%s]: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrJobLocked
	}

	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}, nil
}
