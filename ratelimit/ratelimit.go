// Package ratelimit 提供对远程预测服务的请求间隔控制。
//
// Spacer 是一个单槽漏桶：相邻两次放行之间至少间隔 MinInterval，
// 没有突发额度，每次调用都要付出完整的间隔成本。无论本地有多少
// 并发调用方，聚合后的出站调用速率都不会超过远端的限速。
//
// 基本使用：
//
//	spacer, _ := ratelimit.New(&ratelimit.Config{MinInterval: 100 * time.Millisecond})
//	defer spacer.Close()
//
//	if err := spacer.Wait(ctx); err != nil {
//	    return err // ctx 取消或超时
//	}
//	resp, err := callRemote(ctx)
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/ceyewan/bulwark/clog"
)

// Spacer 请求间隔控制器核心接口
type Spacer interface {
	// Wait 阻塞直到距上一次放行至少过去 MinInterval
	// 仅在 ctx 取消或 deadline 早于可放行时间时返回错误
	Wait(ctx context.Context) error

	// Allow 非阻塞检查：当前是否可以立即放行一次调用
	Allow() bool

	// Close 释放资源
	Close() error
}

// Config 请求间隔配置
type Config struct {
	// MinInterval 相邻两次出站调用之间的最小间隔（默认: 100ms）
	MinInterval time.Duration `json:"min_interval" yaml:"min_interval" mapstructure:"min_interval"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{MinInterval: 100 * time.Millisecond}
}

// setDefaults 填充默认值
func (c *Config) setDefaults() {
	if c.MinInterval <= 0 {
		c.MinInterval = 100 * time.Millisecond
	}
}

// spacer 单槽漏桶实现（非导出）
//
// burst=1 的令牌桶在数学上等价于最小间隔为 1/rate 的漏桶：
// 任意两次放行的间距不小于 MinInterval。
type spacer struct {
	limiter *rate.Limiter
	cfg     *Config
	logger  clog.Logger
}

// New 创建请求间隔控制器
func New(cfg *Config, opts ...Option) (Spacer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.setDefaults()

	opt := options{}
	for _, o := range opts {
		o(&opt)
	}
	if opt.logger == nil {
		opt.logger = clog.Discard()
	}

	s := &spacer{
		limiter: rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		cfg:     cfg,
		logger:  opt.logger,
	}

	opt.logger.Info("request spacer created", clog.Duration("min_interval", cfg.MinInterval))

	return s, nil
}

func (s *spacer) Wait(ctx context.Context) error {
	return s.limiter.Wait(ctx)
}

func (s *spacer) Allow() bool {
	return s.limiter.Allow()
}

func (s *spacer) Close() error {
	return nil
}
