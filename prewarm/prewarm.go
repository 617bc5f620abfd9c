// Package prewarm 提供了响应缓存的后台预热组件。
//
// prewarm 维护一份固定的热点键列表，在两类时机主动发起调用
// 重建缓存：启动后（经过一段启动延迟）按长周期循环执行；
// 以及健康监控检测到远端恢复后立即执行一次（Run）。
//
// 每次运行把键列表切成小批次、批次间留出间隔，避免对刚恢复
// 的远端造成突发流量。单个键的失败只记录日志并跳过。
//
// ## 基本使用
//
//	entries := []prewarm.Entry{
//		{Operation: "predict", Params: map[string]any{"q": "popular question"}},
//	}
//	warmer, _ := prewarm.New(cfg, entries, func(ctx context.Context, e prewarm.Entry) error {
//		// 组合 spacer 等待 → 熔断保护调用 → 写缓存
//		return client.Refresh(ctx, e.Operation, e.Params)
//	}, prewarm.WithLogger(logger))
//	warmer.Start()
//	defer warmer.Stop()
package prewarm

import (
	"context"
	"time"

	"github.com/ceyewan/bulwark/xerrors"
)

// ========================================
// 接口定义 (Interface Definitions)
// ========================================

// Warmer 缓存预热核心接口
type Warmer interface {
	// Start 启动后台预热：启动延迟后执行首轮，之后按 CycleInterval 循环，幂等
	Start()

	// Run 立即执行一轮预热
	// 与后台循环的运行互斥串行，批次永远不会交错；
	// 由健康监控在检测到远端恢复后调用
	Run(ctx context.Context) error

	// Stop 停止后台预热并等待退出，幂等
	// 正在进行的批次在下一个检查点退出
	Stop()

	// LastRun 返回最近一轮预热的完成时间，从未运行过时为零值
	LastRun() time.Time
}

// Entry 预热键：操作名 + 参数，与缓存键的推导方式一致
type Entry struct {
	Operation string         `json:"operation" yaml:"operation" mapstructure:"operation"`
	Params    map[string]any `json:"params" yaml:"params" mapstructure:"params"`
}

// LoadFunc 单个键的加载函数，由调用方提供
// 典型实现组合限速等待、熔断保护的远程调用和缓存写入
type LoadFunc func(ctx context.Context, entry Entry) error

// ========================================
// 配置定义 (Configuration)
// ========================================

// Config 预热配置
type Config struct {
	// StartupDelay 启动后首轮预热前的延迟（默认：60s）
	// 给应用其他部分留出初始化时间，也避免和启动流量争抢
	StartupDelay time.Duration `json:"startup_delay" yaml:"startup_delay" mapstructure:"startup_delay"`

	// CycleInterval 两轮预热之间的间隔（默认：6h）
	CycleInterval time.Duration `json:"cycle_interval" yaml:"cycle_interval" mapstructure:"cycle_interval"`

	// BatchSize 每批键数（默认：3）
	BatchSize int `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size"`

	// InterBatchDelay 批次间延迟（默认：2s），避免突发
	InterBatchDelay time.Duration `json:"inter_batch_delay" yaml:"inter_batch_delay" mapstructure:"inter_batch_delay"`
}

// setDefaults 填充默认值
func (c *Config) setDefaults() {
	if c.StartupDelay <= 0 {
		c.StartupDelay = 60 * time.Second
	}
	if c.CycleInterval <= 0 {
		c.CycleInterval = 6 * time.Hour
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 3
	}
	if c.InterBatchDelay <= 0 {
		c.InterBatchDelay = 2 * time.Second
	}
}

// 错误定义
var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.New("prewarm: config is nil")

	// ErrLoadFuncNil 加载函数未提供
	ErrLoadFuncNil = xerrors.New("prewarm: load func is nil")

	// ErrStopped 预热器已停止，运行被中断
	ErrStopped = xerrors.New("prewarm: warmer stopped")

	// ErrLoadPanicked 加载函数 panic，按单键失败处理
	ErrLoadPanicked = xerrors.New("prewarm: load func panicked")
)

// ========================================
// 工厂函数 (Factory Functions)
// ========================================

// New 创建预热器实例
//
// entries 为固定的热点键列表，构造后不再变化；
// load 为必填的单键加载函数。
func New(cfg *Config, entries []Entry, load LoadFunc, opts ...Option) (Warmer, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	if load == nil {
		return nil, ErrLoadFuncNil
	}
	cfg.setDefaults()

	opt := options{}
	for _, o := range opts {
		o(&opt)
	}

	return newWarmer(cfg, entries, load, &opt), nil
}
