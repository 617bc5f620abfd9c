// Package health 提供了远程预测服务的后台健康监控组件。
//
// health 独立于请求路径，以固定节奏轮询远端的健康端点：
//   - 2xx 且在探测超时内返回 = 健康，其他一切（超时、连接失败）= 不健康
//   - 检测到 down → up 转换时累计停机时长、强制闭合熔断器、
//     异步触发缓存预热
//   - 探测失败只在内部计数，永远不会抛入请求路径
//
// ## 基本使用
//
//	mon, _ := health.New(&health.Config{
//		ProbeURL: "http://predictor:8000/health",
//	},
//		health.WithLogger(logger),
//		health.WithResetter(brk),
//		health.WithWarmer(warmer),
//	)
//	mon.Start()
//	defer mon.Stop()
//
//	status := mon.Status() // 只读快照，任意 goroutine 可调用
package health

import (
	"net/http"
	"time"

	"github.com/ceyewan/bulwark/xerrors"
)

// ========================================
// 接口定义 (Interface Definitions)
// ========================================

// Monitor 健康监控核心接口
type Monitor interface {
	// Start 启动后台监控循环，幂等
	Start()

	// Stop 停止监控循环并等待其退出（有界等待），幂等
	Stop()

	// Status 返回当前健康状态快照
	Status() Status
}

// Status 健康状态快照
//
// DowntimeStart 为零值表示当前没有进行中的停机；
// TotalDowntime 只在恢复转换时累计，不含进行中的停机。
type Status struct {
	Healthy          bool          `json:"healthy"`
	LastStatusKnown  bool          `json:"last_status_known"`
	TotalChecks      int64         `json:"total_checks"`
	SuccessfulChecks int64         `json:"successful_checks"`
	FailedChecks     int64         `json:"failed_checks"`
	TotalDowntime    time.Duration `json:"total_downtime"`
	DowntimeStart    time.Time     `json:"downtime_start,omitzero"`
	LastRecoveryTime time.Time     `json:"last_recovery_time,omitzero"`
}

// ========================================
// 配置定义 (Configuration)
// ========================================

// Config 健康监控配置
type Config struct {
	// ProbeURL 健康端点地址，必填
	// 独立于主调用端点，例如 http://predictor:8000/health
	ProbeURL string `json:"probe_url" yaml:"probe_url" mapstructure:"probe_url"`

	// Interval 轮询间隔（默认：30s）
	Interval time.Duration `json:"interval" yaml:"interval" mapstructure:"interval"`

	// ProbeTimeout 单次探测超时（默认：5s）
	// 与请求路径的超时无关，刻意保持很短
	ProbeTimeout time.Duration `json:"probe_timeout" yaml:"probe_timeout" mapstructure:"probe_timeout"`
}

// setDefaults 填充默认值
func (c *Config) setDefaults() {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 5 * time.Second
	}
}

// validate 验证配置
func (c *Config) validate() error {
	if c.ProbeURL == "" {
		return ErrProbeURLEmpty
	}
	return nil
}

// 错误定义
var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.New("health: config is nil")

	// ErrProbeURLEmpty 健康端点地址未配置
	ErrProbeURLEmpty = xerrors.New("health: probe url is empty")
)

// ========================================
// 工厂函数 (Factory Functions)
// ========================================

// New 创建健康监控实例
//
// 每个被监控的远程依赖创建一个实例，在应用启动时构造；
// 构造后需要调用 Start() 才会开始探测。
func New(cfg *Config, opts ...Option) (Monitor, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opt := options{}
	for _, o := range opts {
		o(&opt)
	}
	if opt.client == nil {
		opt.client = &http.Client{Timeout: cfg.ProbeTimeout}
	}

	return newMonitor(cfg, &opt), nil
}
