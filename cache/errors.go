package cache

import "github.com/ceyewan/bulwark/xerrors"

// 错误定义
var (
	// ErrMiss 缓存未命中（包括条目已过期和内部故障降级）
	ErrMiss = xerrors.New("cache: miss")

	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = xerrors.New("cache: invalid config")

	// ErrInvalidDest dest 不是非 nil 指针
	ErrInvalidDest = xerrors.New("cache: dest must be a non-nil pointer")
)
