package health

import (
	"context"
	"net/http"

	"github.com/ceyewan/bulwark/breaker"
	"github.com/ceyewan/bulwark/clog"
	"github.com/ceyewan/bulwark/metrics"
)

// Resetter 远端恢复后需要被强制闭合的熔断器切面
// breaker.Breaker 直接满足此接口
type Resetter interface {
	State() breaker.State
	Reset()
}

// Warmer 远端恢复后需要异步触发的预热切面
// prewarm.Warmer 直接满足此接口
type Warmer interface {
	Run(ctx context.Context) error
}

// Option 组件初始化选项函数
type Option func(*options)

// options 组件初始化选项配置（内部使用，小写）
type options struct {
	logger   clog.Logger
	meter    metrics.Meter
	client   *http.Client
	resetter Resetter
	warmer   Warmer
}

// WithLogger 设置 Logger，传入 nil 时使用 clog.Discard()
// 内部会自动添加 namespace: "health"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			o.logger = clog.Discard()
		} else {
			o.logger = logger.WithNamespace("health")
		}
	}
}

// WithMeter 设置指标 Meter
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}

// WithHTTPClient 设置探测使用的 HTTP 客户端
// 不设置时使用超时为 ProbeTimeout 的默认客户端
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.client = client
	}
}

// WithResetter 设置恢复时需要闭合的熔断器
func WithResetter(r Resetter) Option {
	return func(o *options) {
		o.resetter = r
	}
}

// WithWarmer 设置恢复时需要异步触发的预热器
func WithWarmer(w Warmer) Option {
	return func(o *options) {
		o.warmer = w
	}
}
