package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"bizmail/backend/internal/domain"
)

// notRegisteredMarker 未注册地址的缓存占位值，避免穿透。
const notRegisteredMarker = "__none__"

// CachedDirectory 带 Redis 缓存的目录装饰器。缓存命中时不访问目录，
// 缓存故障降级为直查并记录日志。
type CachedDirectory struct {
	inner  Directory
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger

	// 合并同一地址的并发回源请求
	group singleflight.Group
}

// NewCachedDirectory 创建缓存目录。
func NewCachedDirectory(inner Directory, addr, password string, db int, ttl time.Duration, logger *zap.Logger) (*CachedDirectory, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: 10,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &CachedDirectory{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: logger,
	}, nil
}

// Lookup 先查缓存，未命中时回源目录并写回。
func (c *CachedDirectory) Lookup(ctx context.Context, email string) (*domain.Identity, error) {
	key := "directory:identity:" + domain.NormalizeEmail(email)

	data, err := c.client.Get(ctx, key).Result()
	if err == nil {
		if data == notRegisteredMarker {
			return nil, nil
		}
		var identity domain.Identity
		if err := json.Unmarshal([]byte(data), &identity); err == nil {
			return &identity, nil
		}
		// 缓存内容损坏，回源
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("目录缓存读取失败，降级直查",
			zap.String("email", email),
			zap.Error(err))
	}

	result, err, _ := c.group.Do(key, func() (interface{}, error) {
		identity, err := c.inner.Lookup(ctx, email)
		if err != nil {
			return nil, err
		}
		c.store(ctx, key, identity)
		return identity, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.Identity), nil
}

func (c *CachedDirectory) store(ctx context.Context, key string, identity *domain.Identity) {
	value := notRegisteredMarker
	if identity != nil {
		data, err := json.Marshal(identity)
		if err != nil {
			return
		}
		value = string(data)
	}
	if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
		c.logger.Warn("目录缓存写入失败", zap.String("key", key), zap.Error(err))
	}
}

// Ping 检查缓存连通性，供就绪探针使用。
func (c *CachedDirectory) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close 关闭缓存连接。
func (c *CachedDirectory) Close() error {
	return c.client.Close()
}
