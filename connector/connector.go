// Package connector 为 Bulwark 提供 Redis 连接管理能力。
//
// Bulwark 的弹性状态（熔断器、健康监控）始终是进程内的，
// 本包只服务于可选的分布式响应缓存后端。
//
// 设计理念：
//   - 接口优先：定义清晰的接口契约，实现细节可替换
//   - 显式依赖注入：通过构造函数注入依赖，避免全局状态
//   - 幂等连接：Connect() 方法可安全重复调用
//   - 延迟连接：NewRedis() 创建连接器但不立即建立连接，Connect() 时才连接
//
// 基本使用：
//
//	conn, err := connector.NewRedis(&connector.RedisConfig{
//		Addr: "127.0.0.1:6379",
//	}, connector.WithLogger(logger))
//	if err != nil {
//		panic(err)
//	}
//	defer conn.Close()
//
//	if err := conn.Connect(ctx); err != nil {
//		panic(err)
//	}
//
// 资源所有权：
//
//	Connector 拥有底层连接的生命周期，应通过 defer 确保 Close() 被调用。
//	借用 Connector 的组件（如 cache）不应调用 Close()。
package connector

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Connector 定义连接器的通用行为，接口方法均为并发安全
type Connector interface {
	// Connect 建立连接，幂等，可安全多次调用
	Connect(ctx context.Context) error

	// Close 关闭连接并释放资源，幂等
	Close() error

	// HealthCheck 主动检查连接健康状态
	HealthCheck(ctx context.Context) error

	// IsHealthy 返回缓存的健康状态，不发起网络请求
	IsHealthy() bool

	// Name 返回连接器名称
	Name() string
}

// RedisConnector Redis 连接器接口
type RedisConnector interface {
	Connector

	// GetClient 返回底层的 Redis 客户端
	GetClient() *redis.Client
}
