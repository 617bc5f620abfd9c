// Package clog 为 Bulwark 提供基于 slog 的结构化日志组件。
//
// 特性：
//   - 抽象接口，不暴露底层实现（slog）
//   - 支持层级命名空间，每个组件通过 WithNamespace 派生自己的 Logger
//   - 零外部依赖（仅依赖 Go 标准库）
//   - 支持运行时动态调整日志级别
//
// 基本使用：
//
//	logger, _ := clog.New(&clog.Config{
//	    Level:  "info",
//	    Format: "console",
//	    Output: "stdout",
//	})
//	logger.Info("breaker state changed", clog.String("to", "open"))
//
// 组件注入：
//
//	brk, _ := breaker.New(cfg, breaker.WithLogger(logger))
package clog

import "context"

// Logger 日志接口，提供结构化日志记录功能
//
// 支持四个日志级别：Debug、Info、Warn、Error，
// 每个级别都有带 Context 和不带 Context 的版本。
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// 带 Context 的日志级别方法，Context 仅用于透传给底层 Handler
	DebugContext(ctx context.Context, msg string, fields ...Field)
	InfoContext(ctx context.Context, msg string, fields ...Field)
	WarnContext(ctx context.Context, msg string, fields ...Field)
	ErrorContext(ctx context.Context, msg string, fields ...Field)

	// With 创建一个带有预设字段的子 Logger，预设字段出现在所有日志中
	With(fields ...Field) Logger

	// WithNamespace 创建一个扩展命名空间的子 Logger
	//
	// 命名空间会追加到现有命名空间后面：
	//
	//	logger.WithNamespace("breaker")            // namespace=breaker
	//	logger.WithNamespace("breaker", "probe")   // namespace=breaker.probe
	WithNamespace(parts ...string) Logger

	// SetLevel 运行时动态调整日志级别，对所有派生的子 Logger 生效
	SetLevel(level Level) error
}
