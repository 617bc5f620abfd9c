package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/bulwark/cache/serializer"
	"github.com/ceyewan/bulwark/clog"
	"github.com/ceyewan/bulwark/connector"
	"github.com/ceyewan/bulwark/metrics"
	"github.com/ceyewan/bulwark/xerrors"
)

// redisCache 分布式缓存实现（非导出）
//
// 仅共享缓存值本身；熔断器与健康监控的状态始终是进程内的。
type redisCache struct {
	client     *redis.Client
	cfg        *Config
	serializer serializer.Serializer
	logger     clog.Logger

	hits   atomic.Uint64
	misses atomic.Uint64

	hitCounter  metrics.Counter
	missCounter metrics.Counter
}

// newRedis 创建 Redis 缓存实例
func newRedis(conn connector.RedisConnector, cfg *Config, logger clog.Logger, meter metrics.Meter) (Cache, error) {
	ser, err := serializer.New(cfg.Serializer)
	if err != nil {
		return nil, xerrors.Wrapf(err, "cache: serializer %q", cfg.Serializer)
	}

	rc := &redisCache{
		client:     conn.GetClient(),
		cfg:        cfg,
		serializer: ser,
		logger:     logger,
	}

	if meter != nil {
		rc.hitCounter, _ = meter.Counter("cache_hits_total", "Total cache hits.")
		rc.missCounter, _ = meter.Counter("cache_misses_total", "Total cache misses.")
	}

	logger.Info("redis cache created",
		clog.String("prefix", cfg.Prefix),
		clog.String("serializer", cfg.Serializer),
		clog.Duration("default_ttl", cfg.DefaultTTL))

	return rc, nil
}

func (c *redisCache) Get(ctx context.Context, key string, dest any) error {
	data, err := c.client.Get(ctx, c.cfg.Prefix+key).Bytes()
	if err != nil {
		if !xerrors.Is(err, redis.Nil) {
			// Redis 故障降级为未命中，不向请求路径传播
			c.logger.Warn("redis get failed, treating as miss",
				clog.String("key", key), clog.Error(err))
		}
		c.recordMiss(ctx)
		return ErrMiss
	}

	if err := c.serializer.Unmarshal(data, dest); err != nil {
		c.logger.Warn("cache value deserialization failed, treating as miss",
			clog.String("key", key), clog.Error(err))
		c.recordMiss(ctx)
		return xerrors.Join(ErrMiss, err)
	}

	c.recordHit(ctx)
	return nil
}

func (c *redisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}

	data, err := c.serializer.Marshal(value)
	if err != nil {
		c.logger.Warn("cache value serialization failed, skipping set",
			clog.String("key", key), clog.Error(err))
		return nil
	}

	if err := c.client.Set(ctx, c.cfg.Prefix+key, data, ttl).Err(); err != nil {
		c.logger.Warn("redis set failed, skipping",
			clog.String("key", key), clog.Error(err))
	}
	return nil
}

func (c *redisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.cfg.Prefix+key).Err(); err != nil {
		return xerrors.Wrapf(err, "cache: delete %s", key)
	}
	return nil
}

// Clear 按前缀扫描并删除所有条目
func (c *redisCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.cfg.Prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return xerrors.Wrap(err, "cache: clear")
		}
	}
	return iter.Err()
}

func (c *redisCache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	// Size 通过前缀扫描估算，仅用于可观测性
	size := 0
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	iter := c.client.Scan(ctx, 0, c.cfg.Prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		size++
	}

	return Stats{
		Hits:       hits,
		Misses:     misses,
		HitRate:    hitRate,
		Size:       size,
		DefaultTTL: c.cfg.DefaultTTL,
	}
}

func (c *redisCache) Close() error {
	// client 归 connector 所有，这里不关闭
	return nil
}

func (c *redisCache) recordHit(ctx context.Context) {
	c.hits.Add(1)
	if c.hitCounter != nil {
		c.hitCounter.Inc(ctx)
	}
}

func (c *redisCache) recordMiss(ctx context.Context) {
	c.misses.Add(1)
	if c.missCounter != nil {
		c.missCounter.Inc(ctx)
	}
}
