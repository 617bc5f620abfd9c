package breaker

import (
	"fmt"
	"time"

	"github.com/ceyewan/bulwark/xerrors"
)

// 错误定义
var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.New("breaker: config is nil")

	// ErrOpenState 熔断器处于打开状态，请求被拒绝
	// 用于 errors.Is 判断，具体错误为 *OpenError
	ErrOpenState = xerrors.New("breaker: circuit breaker is open")
)

// errPanicked 被包装调用 panic 时用于失败计数的内部错误
// panic 会原样重新抛出，此错误不会出现在 Do 的返回值里
var errPanicked = xerrors.New("breaker: wrapped call panicked")

// OpenError 熔断器打开时的快速失败错误
//
// RetryAfter 是预计的剩余等待时间，调用方可以据此决定重试还是降级。
// 半开状态下已有探测在途时 RetryAfter 为 0，表示可以立即重试。
type OpenError struct {
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("breaker: circuit breaker is open, retry after %s", e.RetryAfter)
	}
	return "breaker: circuit breaker is open, probe in flight"
}

// Is 使 errors.Is(err, ErrOpenState) 对 *OpenError 成立
func (e *OpenError) Is(target error) bool {
	return target == ErrOpenState
}
