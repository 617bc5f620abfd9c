package cache

import "time"

// Config 缓存组件统一配置
type Config struct {
	// Mode 缓存模式: "standalone"（默认） | "distributed"
	Mode string `json:"mode" yaml:"mode" mapstructure:"mode"`

	// DefaultTTL 未显式指定 TTL 时的默认过期时间（默认: 6h）
	// 被保护的数据变化缓慢，默认 TTL 偏长
	DefaultTTL time.Duration `json:"default_ttl" yaml:"default_ttl" mapstructure:"default_ttl"`

	// Prefix 全局 Key 前缀（仅 distributed 模式使用，如 "bulwark:v1:"）
	Prefix string `json:"prefix" yaml:"prefix" mapstructure:"prefix"`

	// Serializer: "msgpack"（默认） | "json"（仅 distributed 模式使用）
	Serializer string `json:"serializer" yaml:"serializer" mapstructure:"serializer"`

	// Capacity 缓存最大容量（条目数，仅 standalone 模式，默认: 10000）
	Capacity int `json:"capacity" yaml:"capacity" mapstructure:"capacity"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Mode:       "standalone",
		DefaultTTL: 6 * time.Hour,
		Serializer: "msgpack",
		Capacity:   10000,
	}
}

// validate 校验配置并填充默认值
func (c *Config) validate() error {
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = 6 * time.Hour
	}
	if c.Capacity <= 0 {
		c.Capacity = 10000
	}
	if c.Serializer == "" {
		c.Serializer = "msgpack"
	}
	return nil
}
