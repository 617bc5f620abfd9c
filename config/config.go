// Package config 为 Bulwark 提供统一的配置管理能力。
// 支持多源配置加载、热更新和配置验证，基于 Viper 实现。
//
// 特性：
//   - 多源配置加载：YAML/JSON 文件、环境变量、.env 文件
//   - 配置优先级：环境变量 > .env > 配置文件 > 内置默认值
//   - 热更新支持：实时监听配置文件变化，自动通知应用
//   - 接口优先设计：基于接口的 API，隐藏实现细节
//
// 基本使用：
//
//	loader, _ := config.New(&config.Config{
//		Name:  "bulwark",
//		Paths: []string{".", "./config"},
//	}, config.WithLogger(logger))
//	if err := loader.Load(ctx); err != nil {
//		panic(err)
//	}
//
//	settings := config.DefaultSettings()
//	if err := loader.Unmarshal(settings); err != nil {
//		panic(err)
//	}
//
//	// 监听配置变化
//	ch, _ := loader.Watch(ctx, "bulwark.health.interval")
//	for event := range ch {
//		logger.Info("config changed", clog.String("key", event.Key))
//	}
package config

import (
	"strings"

	"github.com/ceyewan/bulwark/xerrors"
)

// Config 配置加载器自身的配置
type Config struct {
	// Name 配置文件名称（不含扩展名），默认 "bulwark"
	Name string `json:"name" yaml:"name"`

	// Paths 配置文件搜索路径，默认 ["./", "./config"]
	Paths []string `json:"paths" yaml:"paths"`

	// FileType 配置文件类型 (yaml, json, etc.)，默认 "yaml"
	FileType string `json:"file_type" yaml:"file_type"`

	// EnvPrefix 环境变量前缀，默认 "BULWARK"
	// 例如 BULWARK_BREAKER_FAILURE_THRESHOLD 覆盖 breaker.failure_threshold
	EnvPrefix string `json:"env_prefix" yaml:"env_prefix"`
}

// setDefaults 填充默认值
func (c *Config) setDefaults() {
	if c.Name == "" {
		c.Name = "bulwark"
	}
	if c.Paths == nil {
		c.Paths = []string{".", "./config"}
	}
	if c.FileType == "" {
		c.FileType = "yaml"
	}
	if c.EnvPrefix == "" {
		c.EnvPrefix = "BULWARK"
	}
	c.EnvPrefix = strings.ToUpper(c.EnvPrefix)
}

// 错误定义
var (
	// ErrValidationFailed 配置验证失败
	ErrValidationFailed = xerrors.New("config: validation failed")
)

// New 创建配置加载器
//
// cfg 为 nil 时使用默认配置；创建后需要调用 Load 才会读取配置源。
func New(cfg *Config, opts ...Option) (Loader, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.setDefaults()

	opt := options{}
	for _, o := range opts {
		o(&opt)
	}

	return newLoader(cfg, &opt), nil
}
