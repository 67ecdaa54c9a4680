package database

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// NewRedisClient init Redis connection, use Sentinel when SentinelAddrs is set
func NewRedisClient(ctx context.Context, r RedisConnection) (*redis.Client, error) {
	var rdb *redis.Client
	if len(r.SentinelAddrs) > 0 {
		masterName := r.MasterName
		if masterName == "" {
			masterName = "mymaster"
		}
		rdb = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    masterName,      // 哨兵主节点名称
			SentinelAddrs: r.SentinelAddrs, // 哨兵地址列表
			DB:            r.DB,
		})
	} else {
		rdb = redis.NewClient(&redis.Options{
			Addr: r.Addr,
			DB:   r.DB,
		})
	}

	// 测试连接
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return rdb, nil
}
