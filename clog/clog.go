package clog

import "fmt"

// New 创建一个新的 Logger 实例
//
// config - 日志配置，为 nil 时使用 DefaultConfig()
// opts   - 函数式选项列表，用于设置初始命名空间等
func New(config *Config, opts ...Option) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	opt := applyOptions(opts...)

	return newLogger(config, opt)
}

// Must 类似 New，但出错时 panic，仅用于初始化阶段
func Must(config *Config, opts ...Option) Logger {
	logger, err := New(config, opts...)
	if err != nil {
		panic(fmt.Sprintf("clog: failed to create logger: %v", err))
	}
	return logger
}
