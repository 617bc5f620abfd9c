package config

import (
	"time"

	"github.com/ceyewan/bulwark/breaker"
	"github.com/ceyewan/bulwark/cache"
	"github.com/ceyewan/bulwark/clog"
	"github.com/ceyewan/bulwark/connector"
	"github.com/ceyewan/bulwark/health"
	"github.com/ceyewan/bulwark/metrics"
	"github.com/ceyewan/bulwark/prewarm"
	"github.com/ceyewan/bulwark/ratelimit"
	"github.com/ceyewan/bulwark/xerrors"
)

// Settings 汇总所有组件的配置，对应配置文件的根结构
//
// 每个字段都可以被 BULWARK_<SECTION>_<KEY> 形式的环境变量覆盖，
// 例如 BULWARK_BREAKER_FAILURE_THRESHOLD=10。
//
// 配置文件示例 (bulwark.yaml):
//
//	log:
//	  level: info
//	  format: json
//	breaker:
//	  failure_threshold: 5
//	  initial_recovery_timeout: 10s
//	cache:
//	  default_ttl: 6h
//	health:
//	  probe_url: http://predictor:8000/health
//	prewarm:
//	  cycle_interval: 6h
//	prewarm_entries:
//	  - operation: predict
//	    params: {q: "popular question"}
type Settings struct {
	Log       *clog.Config      `json:"log" yaml:"log" mapstructure:"log"`
	Metrics   *metrics.Config   `json:"metrics" yaml:"metrics" mapstructure:"metrics"`
	Breaker   *breaker.Config   `json:"breaker" yaml:"breaker" mapstructure:"breaker"`
	Cache     *cache.Config     `json:"cache" yaml:"cache" mapstructure:"cache"`
	RateLimit *ratelimit.Config `json:"ratelimit" yaml:"ratelimit" mapstructure:"ratelimit"`
	Health    *health.Config    `json:"health" yaml:"health" mapstructure:"health"`
	Prewarm   *prewarm.Config   `json:"prewarm" yaml:"prewarm" mapstructure:"prewarm"`

	// PrewarmEntries 预热热点键列表
	PrewarmEntries []prewarm.Entry `json:"prewarm_entries" yaml:"prewarm_entries" mapstructure:"prewarm_entries"`

	// Redis 分布式缓存后端连接，仅 cache.mode=distributed 时需要
	Redis *connector.RedisConfig `json:"redis" yaml:"redis" mapstructure:"redis"`
}

// DefaultSettings 返回带内置默认值的配置
// 先 DefaultSettings 再 Unmarshal，文件和环境变量只覆盖出现的字段
func DefaultSettings() *Settings {
	return &Settings{
		Log: &clog.Config{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: &metrics.Config{
			ServiceName: "bulwark",
			Path:        "/metrics",
		},
		Breaker: breaker.DefaultConfig(),
		Cache: &cache.Config{
			Mode:       "standalone",
			DefaultTTL: 6 * time.Hour,
			Serializer: "msgpack",
			Capacity:   10000,
		},
		RateLimit: &ratelimit.Config{
			MinInterval: 100 * time.Millisecond,
		},
		Health: &health.Config{
			Interval:     30 * time.Second,
			ProbeTimeout: 5 * time.Second,
		},
		Prewarm: &prewarm.Config{
			StartupDelay:    60 * time.Second,
			CycleInterval:   6 * time.Hour,
			BatchSize:       3,
			InterBatchDelay: 2 * time.Second,
		},
	}
}

// Validate 做跨组件的基础校验
// 更细的校验在各组件的构造函数里完成
func (s *Settings) Validate() error {
	if s.Breaker != nil && s.Breaker.MaxRecoveryTimeout > 0 &&
		s.Breaker.MaxRecoveryTimeout < s.Breaker.InitialRecoveryTimeout {
		return xerrors.Wrapf(ErrValidationFailed, "breaker: max_recovery_timeout is less than initial_recovery_timeout")
	}
	if s.Cache != nil && s.Cache.Mode == "distributed" && (s.Redis == nil || s.Redis.Addr == "") {
		return xerrors.Wrapf(ErrValidationFailed, "cache: distributed mode requires a redis section")
	}
	return nil
}
