package breaker

import (
	"context"

	"github.com/ceyewan/bulwark/clog"
	"github.com/ceyewan/bulwark/metrics"
)

// Option 组件初始化选项函数
type Option func(*options)

// FallbackFunc 降级函数类型
//
// 熔断器打开导致快速失败时调用，err 为原始的 *OpenError。
// 返回 (结果, nil) 表示降级成功，返回的错误会替代原始错误。
type FallbackFunc func(ctx context.Context, err error) (any, error)

// options 组件初始化选项配置（内部使用，小写）
type options struct {
	logger   clog.Logger
	meter    metrics.Meter
	fallback FallbackFunc
}

// WithLogger 设置 Logger，传入 nil 时使用 clog.Discard()
// 内部会自动添加 namespace: "breaker"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			o.logger = clog.Discard()
		} else {
			o.logger = logger.WithNamespace("breaker")
		}
	}
}

// WithMeter 设置指标 Meter
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}

// WithFallback 设置降级函数
// 熔断器打开时会调用此函数进行降级处理，例如返回缓存的旧值
//
// 使用示例:
//
//	brk, _ := breaker.New(cfg,
//		breaker.WithFallback(func(ctx context.Context, err error) (any, error) {
//			return cachedAnswer, nil
//		}),
//	)
func WithFallback(fallback FallbackFunc) Option {
	return func(o *options) {
		o.fallback = fallback
	}
}
