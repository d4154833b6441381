package registry

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyBlockedWorkers 被封禁 Worker 集合
const KeyBlockedWorkers = "match:workers:blocked"

// Redis 基于 Redis 集合的封禁名单
type Redis struct {
	client redis.Cmdable
	key    string
}

// NewRedis 连接 Redis 并创建封禁名单
func NewRedis(addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Printf("[registry.redis] connected addr=%s", addr)
	return NewRedisFromClient(client), nil
}

// NewRedisFromClient 从已有客户端创建
func NewRedisFromClient(client redis.Cmdable) *Redis {
	return &Redis{client: client, key: KeyBlockedWorkers}
}

func (r *Redis) IsBlocked(ctx context.Context, worker string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, r.key, worker).Result()
	if err != nil {
		return false, fmt.Errorf("registry: check %s: %w", worker, err)
	}
	return ok, nil
}

func (r *Redis) Block(ctx context.Context, worker string) error {
	return r.client.SAdd(ctx, r.key, worker).Err()
}

func (r *Redis) Unblock(ctx context.Context, worker string) error {
	return r.client.SRem(ctx, r.key, worker).Err()
}

// Close 关闭底层连接
func (r *Redis) Close() error {
	if c, ok := r.client.(*redis.Client); ok {
		return c.Close()
	}
	return nil
}
