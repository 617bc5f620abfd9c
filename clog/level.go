package clog

import (
	"fmt"
	"log/slog"
	"strings"
)

// Level 日志级别类型，数值与 slog 对齐
type Level = slog.Level

const (
	DebugLevel Level = slog.LevelDebug
	InfoLevel  Level = slog.LevelInfo
	WarnLevel  Level = slog.LevelWarn
	ErrorLevel Level = slog.LevelError
)

// ParseLevel 将字符串解析为 Level（不区分大小写）
//
// 支持 "debug"、"info"、"warn"、"error"，
// 无法解析时返回 InfoLevel 和错误信息。
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel, nil
	case "info":
		return InfoLevel, nil
	case "warn":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level: %s", s)
	}
}
