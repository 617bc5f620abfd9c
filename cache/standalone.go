package cache

import (
	"context"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/maypok86/otter/v2"
	"github.com/maypok86/otter/v2/stats"

	"github.com/ceyewan/bulwark/clog"
	"github.com/ceyewan/bulwark/metrics"
	"github.com/ceyewan/bulwark/xerrors"
)

// standaloneCache 进程内缓存实现（非导出）
type standaloneCache struct {
	cache  *otter.Cache[string, any]
	cfg    *Config
	logger clog.Logger

	hits   atomic.Uint64
	misses atomic.Uint64

	hitCounter  metrics.Counter
	missCounter metrics.Counter
}

// newStandalone 创建进程内缓存实例
func newStandalone(cfg *Config, logger clog.Logger, meter metrics.Meter) (Cache, error) {
	opts := &otter.Options[string, any]{
		MaximumSize:   cfg.Capacity,
		StatsRecorder: stats.NewCounter(),
		// 写入过期策略：过期时间从写入开始计算，读取不重置 TTL。
		// 具体 TTL 在 Set 时通过 SetExpiresAfter 覆盖。
		// otter 的维护例程会周期性移除过期条目，读取路径上的
		// 过期条目直接按未命中处理。
		ExpiryCalculator: otter.ExpiryWriting[string, any](cfg.DefaultTTL),
	}

	c, err := otter.New(opts)
	if err != nil {
		return nil, xerrors.Wrap(err, "cache: failed to build otter cache")
	}

	sc := &standaloneCache{
		cache:  c,
		cfg:    cfg,
		logger: logger,
	}

	if meter != nil {
		sc.hitCounter, _ = meter.Counter("cache_hits_total", "Total cache hits.")
		sc.missCounter, _ = meter.Counter("cache_misses_total", "Total cache misses.")
	}

	logger.Info("standalone cache created",
		clog.Int("capacity", cfg.Capacity),
		clog.Duration("default_ttl", cfg.DefaultTTL))

	return sc, nil
}

func (c *standaloneCache) Get(ctx context.Context, key string, dest any) error {
	val, ok := c.cache.GetIfPresent(key)
	if !ok {
		c.recordMiss(ctx)
		return ErrMiss
	}

	if err := assignValue(val, dest); err != nil {
		// 类型不匹配等内部故障一律按未命中降级
		c.logger.Warn("cache value assignment failed, treating as miss",
			clog.String("key", key), clog.Error(err))
		c.recordMiss(ctx)
		return xerrors.Join(ErrMiss, err)
	}

	c.recordHit(ctx)
	return nil
}

func (c *standaloneCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}

	// 写值和写 TTL 是两步操作，并发 Set 同一个键时可能出现
	// A 的值配上 B 的 TTL。键由 (操作名, 排序后参数) 确定性派生，
	// 同一个键的并发写入者缓存的是同一次远程操作的结果，值彼此
	// 等价，TTL 最多相差一次调用方覆盖，过期语义仍然成立。
	c.cache.Set(key, value)
	c.cache.SetExpiresAfter(key, ttl)
	return nil
}

func (c *standaloneCache) Delete(ctx context.Context, key string) error {
	c.cache.Invalidate(key)
	return nil
}

func (c *standaloneCache) Clear(ctx context.Context) error {
	c.cache.InvalidateAll()
	return nil
}

func (c *standaloneCache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Hits:       hits,
		Misses:     misses,
		HitRate:    hitRate,
		Size:       c.cache.EstimatedSize(),
		DefaultTTL: c.cfg.DefaultTTL,
	}
}

func (c *standaloneCache) Close() error {
	c.cache.StopAllGoroutines()
	return nil
}

func (c *standaloneCache) recordHit(ctx context.Context) {
	c.hits.Add(1)
	if c.hitCounter != nil {
		c.hitCounter.Inc(ctx)
	}
}

func (c *standaloneCache) recordMiss(ctx context.Context) {
	c.misses.Add(1)
	if c.missCounter != nil {
		c.missCounter.Inc(ctx)
	}
}

// assignValue 将缓存的原始对象赋值给 dest 指向的位置
//
// 【注意】这是基于反射的浅拷贝。如果缓存对象包含指针（map、slice 等），
// dest 将与缓存共享底层数据，调用方应将获取的对象视为只读。
func assignValue(val any, dest any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Ptr || dv.IsNil() {
		return ErrInvalidDest
	}
	dv = dv.Elem()

	sv := reflect.ValueOf(val)

	if sv.IsValid() && sv.Type().AssignableTo(dv.Type()) {
		dv.Set(sv)
		return nil
	}

	// dest 为 *any 时，任何值都可以赋给它
	if dv.Kind() == reflect.Interface && dv.NumMethod() == 0 {
		dv.Set(reflect.ValueOf(val))
		return nil
	}

	return xerrors.Wrapf(ErrInvalidDest, "cannot assign cached value of type %T to dest of type %T", val, dest)
}
