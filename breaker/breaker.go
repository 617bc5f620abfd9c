// Package breaker 提供了保护远程预测服务调用的熔断器组件。
//
// breaker 是 Bulwark 弹性层的核心组件，它提供了：
//   - CLOSED / OPEN / HALF_OPEN 三态熔断协议
//   - 指数退避 + ±20% 均匀抖动的恢复窗口，避免同步重试风暴
//   - HALF_OPEN 探测预算：允许少量非破坏性探测后才延长退避
//   - 同一时刻只有一个真实探测在途（探测在途标记）
//   - 手动 Reset：健康监控在探测到远端恢复后强制闭合
//   - gRPC Unary Interceptor 无侵入集成
//
// ## 基本使用
//
//	brk, _ := breaker.New(&breaker.Config{
//		FailureThreshold:       5,
//		InitialRecoveryTimeout: 10 * time.Second,
//		MaxRecoveryTimeout:     300 * time.Second,
//		HalfOpenMaxAttempts:    3,
//	}, breaker.WithLogger(logger))
//
//	result, err := brk.Do(ctx, func() (any, error) {
//		return predictor.Predict(ctx, input)
//	})
//	var openErr *breaker.OpenError
//	if errors.As(err, &openErr) {
//		// 快速失败：openErr.RetryAfter 为预计剩余等待时间
//	}
//
// ## 降级策略
//
//	brk, _ := breaker.New(cfg,
//		breaker.WithFallback(func(ctx context.Context, err error) (any, error) {
//			// 返回缓存数据或降级结果
//			return staleAnswer, nil
//		}),
//	)
package breaker

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

// ========================================
// 接口定义 (Interface Definitions)
// ========================================

// Breaker 熔断器核心接口
type Breaker interface {
	// Do 执行受熔断保护的函数
	//
	// 成功时返回 fn 的结果；fn 失败时原样返回其错误（由调用方处理）；
	// 熔断器打开且退避窗口未过时不调用 fn，返回 *OpenError。
	Do(ctx context.Context, fn func() (any, error)) (any, error)

	// State 获取当前熔断器状态
	State() State

	// Reset 强制重置为 Closed 状态
	// 由健康监控在探测到远端恢复后调用，幂等
	Reset()

	// Stats 返回状态与计数器快照
	Stats() Stats

	// UnaryClientInterceptor 返回 gRPC 一元调用客户端拦截器
	// 为该连接上的每个 gRPC 调用提供熔断保护
	UnaryClientInterceptor() grpc.UnaryClientInterceptor
}

// State 熔断器状态
type State int

const (
	// StateClosed 闭合状态（正常），每个调用都会被尝试
	StateClosed State = iota
	// StateHalfOpen 半开状态（探测恢复），每次转换只放行一个探测
	StateHalfOpen
	// StateOpen 打开状态（熔断中），调用快速失败
	StateOpen
)

// String 返回状态的字符串表示
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Stats 熔断器运行时快照
type Stats struct {
	State                State         `json:"state"`
	FailureCount         int           `json:"failure_count"`
	HalfOpenAttempts     int           `json:"half_open_attempts"`
	ConsecutiveOpenCount int           `json:"consecutive_open_count"`
	CurrentTimeout       time.Duration `json:"current_timeout"`
	LastFailureTime      time.Time     `json:"last_failure_time"`
}

// ========================================
// 配置定义 (Configuration)
// ========================================

// Config 熔断器配置
type Config struct {
	// FailureThreshold 连续失败阈值（默认：5）
	// Closed 状态下连续失败达到此值时熔断
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold" mapstructure:"failure_threshold"`

	// InitialRecoveryTimeout 首次熔断的恢复窗口（默认：10s）
	// 第 k 轮熔断的窗口为 min(InitialRecoveryTimeout * 2^k, MaxRecoveryTimeout)
	InitialRecoveryTimeout time.Duration `json:"initial_recovery_timeout" yaml:"initial_recovery_timeout" mapstructure:"initial_recovery_timeout"`

	// MaxRecoveryTimeout 恢复窗口上限（默认：300s），防止退避无限增长
	MaxRecoveryTimeout time.Duration `json:"max_recovery_timeout" yaml:"max_recovery_timeout" mapstructure:"max_recovery_timeout"`

	// HalfOpenMaxAttempts 半开探测预算（默认：3）
	// 预算内的失败探测按当前窗口重试，预算耗尽才延长退避
	HalfOpenMaxAttempts int `json:"half_open_max_attempts" yaml:"half_open_max_attempts" mapstructure:"half_open_max_attempts"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		FailureThreshold:       5,
		InitialRecoveryTimeout: 10 * time.Second,
		MaxRecoveryTimeout:     300 * time.Second,
		HalfOpenMaxAttempts:    3,
	}
}

// setDefaults 填充默认值
func (c *Config) setDefaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.InitialRecoveryTimeout <= 0 {
		c.InitialRecoveryTimeout = 10 * time.Second
	}
	if c.MaxRecoveryTimeout <= 0 {
		c.MaxRecoveryTimeout = 300 * time.Second
	}
	if c.MaxRecoveryTimeout < c.InitialRecoveryTimeout {
		c.MaxRecoveryTimeout = c.InitialRecoveryTimeout
	}
	if c.HalfOpenMaxAttempts <= 0 {
		c.HalfOpenMaxAttempts = 3
	}
}

// ========================================
// 工厂函数 (Factory Functions)
// ========================================

// New 创建熔断器实例
//
// 每个被保护的远程依赖应该只创建一个实例，在应用启动时构造并
// 显式传递给所有使用方，不使用全局单例。
func New(cfg *Config, opts ...Option) (Breaker, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	cfg.setDefaults()

	opt := options{}
	for _, o := range opts {
		o(&opt)
	}

	return newBreaker(cfg, &opt)
}
