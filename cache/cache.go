// Package cache 提供远程预测结果的响应缓存组件。
//
// Cache 是 Bulwark 弹性层的记忆体：成功的远程调用结果按
// (操作名, 参数) 派生的确定性键缓存一段 TTL，远端故障期间
// 调用方可以退化到缓存结果。
//
// 支持两种模式：
//   - standalone（默认）：基于 otter 的进程内缓存，过期由 otter 的
//     维护例程自动清理，读写并发安全
//   - distributed：基于 Redis 的共享缓存，仅共享缓存值本身，
//     不共享任何弹性状态
//
// 失败语义：缓存是 best-effort 的。内部故障绝不作为请求失败向上
// 传播：Get 的任何内部错误都表现为未命中（ErrMiss），Set 的故障
// 只记录日志。
//
// 基本使用：
//
//	c, _ := cache.New(&cache.Config{DefaultTTL: 6 * time.Hour}, cache.WithLogger(logger))
//
//	key := cache.Key("predict", map[string]any{"text": "hello", "lang": "en"})
//	_ = c.Set(ctx, key, result, 0) // ttl<=0 时使用 DefaultTTL
//
//	var cached PredictResult
//	if err := c.Get(ctx, key, &cached); err == nil {
//	    // 命中
//	}
package cache

import (
	"context"
	"time"

	"github.com/ceyewan/bulwark/clog"
	"github.com/ceyewan/bulwark/xerrors"
)

// Cache 定义响应缓存的核心能力
type Cache interface {
	// Get 读取缓存值到 dest（必须是非 nil 指针）
	// 未命中、已过期或内部故障时返回 ErrMiss
	Get(ctx context.Context, key string, dest any) error

	// Set 写入缓存值，ttl<=0 时使用配置的 DefaultTTL
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Delete 删除单个键
	Delete(ctx context.Context, key string) error

	// Clear 清空所有缓存条目
	Clear(ctx context.Context) error

	// Stats 返回命中率等运行时统计
	Stats() Stats

	// Close 释放缓存持有的资源
	Close() error
}

// Stats 缓存运行时统计
type Stats struct {
	Hits       uint64        `json:"hits"`
	Misses     uint64        `json:"misses"`
	HitRate    float64       `json:"hit_rate"`
	Size       int           `json:"size"`
	DefaultTTL time.Duration `json:"default_ttl"`
}

// New 根据配置创建缓存实例
//
// Mode 为 "standalone" 或空时创建进程内缓存；
// Mode 为 "distributed" 时需要通过 WithRedisConnector 注入 Redis 连接器。
func New(cfg *Config, opts ...Option) (Cache, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opt := options{}
	for _, o := range opts {
		o(&opt)
	}
	if opt.Logger == nil {
		opt.Logger = clog.Discard()
	}

	switch cfg.Mode {
	case "", "standalone":
		return newStandalone(cfg, opt.Logger, opt.Meter)
	case "distributed":
		if opt.RedisConn == nil {
			return nil, xerrors.New("cache: redis connector is required for distributed mode, use WithRedisConnector")
		}
		return newRedis(opt.RedisConn, cfg, opt.Logger, opt.Meter)
	default:
		return nil, xerrors.Wrapf(ErrInvalidConfig, "unknown mode %q", cfg.Mode)
	}
}
