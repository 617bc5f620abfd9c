package breaker

import (
	"context"

	"google.golang.org/grpc"

	"github.com/ceyewan/bulwark/clog"
)

// UnaryClientInterceptor 返回 gRPC 一元调用客户端拦截器
// 为每个 gRPC 调用提供熔断保护
//
// 熔断器实例与被保护的远程依赖一一对应，拦截器应该挂在指向
// 该依赖的连接上，不要在多个不相关的连接间共享。
//
// 使用示例:
//
//	brk, _ := breaker.New(cfg, breaker.WithLogger(logger))
//	conn, _ := grpc.NewClient(
//		"localhost:9001",
//		grpc.WithUnaryInterceptor(brk.UnaryClientInterceptor()),
//	)
func (cb *circuitBreaker) UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		cb.logger.Debug("unary call with circuit breaker",
			clog.String("method", method))

		_, err := cb.Do(ctx, func() (any, error) {
			return nil, invoker(ctx, method, req, reply, cc, opts...)
		})
		return err
	}
}
