package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

var errRemote = errors.New("remote predictor unavailable")

// fakeClock 可手动推进的时钟，避免测试真实等待退避窗口
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

// newTestBreaker 创建注入了假时钟和固定随机源的熔断器
// randFloat 固定为 0.5，抖动为 0，退避窗口等于理论值
func newTestBreaker(t *testing.T, cfg *Config, opts ...Option) (*circuitBreaker, *fakeClock) {
	t.Helper()

	brk, err := New(cfg, opts...)
	require.NoError(t, err)

	cb := brk.(*circuitBreaker)
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb.now = clock.now
	cb.randFloat = func() float64 { return 0.5 }
	return cb, clock
}

// failTimes 连续触发 n 次失败调用
func failTimes(t *testing.T, cb *circuitBreaker, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := cb.Do(context.Background(), func() (any, error) {
			return nil, errRemote
		})
		require.ErrorIs(t, err, errRemote)
	}
}

func TestNew(t *testing.T) {
	t.Run("nil 配置应该返回错误", func(t *testing.T) {
		_, err := New(nil)
		assert.ErrorIs(t, err, ErrConfigNil)
	})

	t.Run("零值配置应该填充默认值", func(t *testing.T) {
		cfg := &Config{}
		brk, err := New(cfg)
		require.NoError(t, err)
		assert.Equal(t, 5, cfg.FailureThreshold)
		assert.Equal(t, 10*time.Second, cfg.InitialRecoveryTimeout)
		assert.Equal(t, 300*time.Second, cfg.MaxRecoveryTimeout)
		assert.Equal(t, 3, cfg.HalfOpenMaxAttempts)
		assert.Equal(t, StateClosed, brk.State())
	})

	t.Run("Max 小于 Initial 时应该被钳位", func(t *testing.T) {
		cfg := &Config{
			InitialRecoveryTimeout: 60 * time.Second,
			MaxRecoveryTimeout:     10 * time.Second,
		}
		_, err := New(cfg)
		require.NoError(t, err)
		assert.Equal(t, 60*time.Second, cfg.MaxRecoveryTimeout)
	})
}

func TestBreaker_ClosedState(t *testing.T) {
	t.Run("成功调用应该重置失败计数", func(t *testing.T) {
		cb, _ := newTestBreaker(t, &Config{FailureThreshold: 3})

		failTimes(t, cb, 2)
		assert.Equal(t, 2, cb.Stats().FailureCount)

		result, err := cb.Do(context.Background(), func() (any, error) {
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", result)
		assert.Equal(t, 0, cb.Stats().FailureCount)
	})

	t.Run("达到失败阈值应该熔断", func(t *testing.T) {
		cb, _ := newTestBreaker(t, &Config{FailureThreshold: 5})

		failTimes(t, cb, 4)
		assert.Equal(t, StateClosed, cb.State())

		failTimes(t, cb, 1)
		assert.Equal(t, StateOpen, cb.State())
	})

	t.Run("熔断后的调用应该快速失败且不执行 fn", func(t *testing.T) {
		cb, _ := newTestBreaker(t, &Config{
			FailureThreshold:       3,
			InitialRecoveryTimeout: 10 * time.Second,
		})
		failTimes(t, cb, 3)

		invoked := false
		_, err := cb.Do(context.Background(), func() (any, error) {
			invoked = true
			return nil, nil
		})
		assert.False(t, invoked)
		assert.ErrorIs(t, err, ErrOpenState)

		var openErr *OpenError
		require.ErrorAs(t, err, &openErr)
		assert.Greater(t, openErr.RetryAfter, time.Duration(0))
		assert.LessOrEqual(t, openErr.RetryAfter, 10*time.Second)
	})
}

func TestBreaker_RecoveryTimeout(t *testing.T) {
	cfg := &Config{
		FailureThreshold:       1,
		InitialRecoveryTimeout: 10 * time.Second,
		MaxRecoveryTimeout:     300 * time.Second,
		HalfOpenMaxAttempts:    1,
	}

	t.Run("无抖动时首轮窗口等于初始值", func(t *testing.T) {
		cb, _ := newTestBreaker(t, cfg)
		failTimes(t, cb, 1)
		assert.Equal(t, 10*time.Second, cb.Stats().CurrentTimeout)
	})

	t.Run("探测预算耗尽应该按指数延长窗口", func(t *testing.T) {
		cb, clock := newTestBreaker(t, cfg)
		failTimes(t, cb, 1)

		// 每轮：窗口过期 -> 探测失败（预算 1，立即耗尽） -> 退避翻倍
		expected := []time.Duration{20 * time.Second, 40 * time.Second, 80 * time.Second}
		for _, want := range expected {
			clock.advance(cb.Stats().CurrentTimeout)
			failTimes(t, cb, 1)
			assert.Equal(t, want, cb.Stats().CurrentTimeout)
		}
	})

	t.Run("窗口不应该超过上限", func(t *testing.T) {
		cb, clock := newTestBreaker(t, cfg)
		failTimes(t, cb, 1)

		for i := 0; i < 10; i++ {
			clock.advance(cb.Stats().CurrentTimeout)
			failTimes(t, cb, 1)
		}
		assert.Equal(t, 300*time.Second, cb.Stats().CurrentTimeout)
	})

	t.Run("抖动应该落在理论值的 ±20% 区间", func(t *testing.T) {
		cb, _ := newTestBreaker(t, cfg)

		cb.randFloat = func() float64 { return 0 }
		failTimes(t, cb, 1)
		assert.Equal(t, 8*time.Second, cb.Stats().CurrentTimeout)

		cb.Reset()
		cb.randFloat = func() float64 { return 0.999999 }
		failTimes(t, cb, 1)
		got := cb.Stats().CurrentTimeout
		assert.Greater(t, got, 11*time.Second)
		assert.LessOrEqual(t, got, 12*time.Second)
	})
}

func TestBreaker_HalfOpenState(t *testing.T) {
	cfg := &Config{
		FailureThreshold:       2,
		InitialRecoveryTimeout: 10 * time.Second,
		MaxRecoveryTimeout:     300 * time.Second,
		HalfOpenMaxAttempts:    3,
	}

	t.Run("探测成功应该完全恢复", func(t *testing.T) {
		cb, clock := newTestBreaker(t, cfg)
		failTimes(t, cb, 2)
		clock.advance(11 * time.Second)

		result, err := cb.Do(context.Background(), func() (any, error) {
			return "recovered", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "recovered", result)

		st := cb.Stats()
		assert.Equal(t, StateClosed, st.State)
		assert.Equal(t, 0, st.FailureCount)
		assert.Equal(t, 0, st.HalfOpenAttempts)
		assert.Equal(t, 0, st.ConsecutiveOpenCount)
	})

	t.Run("预算内的失败探测不延长退避", func(t *testing.T) {
		cb, clock := newTestBreaker(t, cfg)
		failTimes(t, cb, 2)

		// 前两次失败探测仍在预算内（预算 3）
		for i := 0; i < 2; i++ {
			clock.advance(cb.Stats().CurrentTimeout)
			failTimes(t, cb, 1)
			st := cb.Stats()
			assert.Equal(t, StateOpen, st.State)
			assert.Equal(t, 0, st.ConsecutiveOpenCount)
			assert.Equal(t, 10*time.Second, st.CurrentTimeout)
		}

		// 第三次失败探测耗尽预算，退避翻倍
		clock.advance(cb.Stats().CurrentTimeout)
		failTimes(t, cb, 1)
		st := cb.Stats()
		assert.Equal(t, 1, st.ConsecutiveOpenCount)
		assert.Equal(t, 0, st.HalfOpenAttempts)
		assert.Equal(t, 20*time.Second, st.CurrentTimeout)
	})

	t.Run("探测在途时其他调用应该快速失败", func(t *testing.T) {
		cb, clock := newTestBreaker(t, cfg)
		failTimes(t, cb, 2)
		clock.advance(11 * time.Second)

		// 第一个 acquire 进入半开并占用探测位
		isProbe, _, allowed := cb.acquire()
		require.True(t, allowed)
		require.True(t, isProbe)

		// 探测在途，第二个调用被拒绝
		_, _, allowed = cb.acquire()
		assert.False(t, allowed)

		// 探测返回成功后恢复
		cb.record(true, nil)
		assert.Equal(t, StateClosed, cb.State())
	})
}

func TestBreaker_Reset(t *testing.T) {
	cfg := &Config{
		FailureThreshold:       2,
		InitialRecoveryTimeout: 10 * time.Second,
	}

	t.Run("Reset 应该强制闭合并清空计数器", func(t *testing.T) {
		cb, _ := newTestBreaker(t, cfg)
		failTimes(t, cb, 2)
		require.Equal(t, StateOpen, cb.State())

		cb.Reset()

		st := cb.Stats()
		assert.Equal(t, StateClosed, st.State)
		assert.Equal(t, 0, st.FailureCount)
		assert.Equal(t, 0, st.ConsecutiveOpenCount)
		assert.Equal(t, time.Duration(0), st.CurrentTimeout)

		// Reset 后调用正常放行
		_, err := cb.Do(context.Background(), func() (any, error) {
			return "ok", nil
		})
		assert.NoError(t, err)
	})

	t.Run("Reset 应该幂等", func(t *testing.T) {
		cb, _ := newTestBreaker(t, cfg)
		cb.Reset()
		cb.Reset()
		assert.Equal(t, StateClosed, cb.State())
	})
}

func TestBreaker_Fallback(t *testing.T) {
	t.Run("熔断时应该调用降级函数", func(t *testing.T) {
		fallbackCalled := false
		cb, _ := newTestBreaker(t, &Config{
			FailureThreshold:       1,
			InitialRecoveryTimeout: 10 * time.Second,
		}, WithFallback(func(ctx context.Context, err error) (any, error) {
			fallbackCalled = true
			assert.ErrorIs(t, err, ErrOpenState)
			return "stale answer", nil
		}))

		failTimes(t, cb, 1)

		result, err := cb.Do(context.Background(), func() (any, error) {
			return nil, nil
		})
		require.NoError(t, err)
		assert.True(t, fallbackCalled)
		assert.Equal(t, "stale answer", result)
	})

	t.Run("fn 本身的失败不触发降级", func(t *testing.T) {
		cb, _ := newTestBreaker(t, &Config{FailureThreshold: 5},
			WithFallback(func(ctx context.Context, err error) (any, error) {
				t.Fatal("fallback should not be called for fn errors")
				return nil, nil
			}))

		_, err := cb.Do(context.Background(), func() (any, error) {
			return nil, errRemote
		})
		assert.ErrorIs(t, err, errRemote)
	})
}

func TestBreaker_PanicInWrappedCall(t *testing.T) {
	t.Run("panic 应该重新抛出并计入失败", func(t *testing.T) {
		cb, _ := newTestBreaker(t, &Config{
			FailureThreshold:       2,
			InitialRecoveryTimeout: 10 * time.Second,
		})

		boom := func() (any, error) { panic("remote client bug") }

		require.Panics(t, func() { _, _ = cb.Do(context.Background(), boom) })
		assert.Equal(t, 1, cb.Stats().FailureCount)

		require.Panics(t, func() { _, _ = cb.Do(context.Background(), boom) })
		assert.Equal(t, StateOpen, cb.State())
	})

	t.Run("半开探测 panic 应该释放探测位", func(t *testing.T) {
		cb, clock := newTestBreaker(t, &Config{
			FailureThreshold:       1,
			InitialRecoveryTimeout: 10 * time.Second,
		})
		failTimes(t, cb, 1)
		clock.advance(11 * time.Second)

		// 探测调用 panic：按失败处理，回到 OPEN 而不是卡在探测在途
		require.Panics(t, func() {
			_, _ = cb.Do(context.Background(), func() (any, error) {
				panic("probe crashed")
			})
		})
		assert.Equal(t, StateOpen, cb.State())

		// 远端恢复后的调用应该作为新探测放行并闭合熔断器
		clock.advance(cb.Stats().CurrentTimeout)
		invoked := false
		result, err := cb.Do(context.Background(), func() (any, error) {
			invoked = true
			return "ok", nil
		})
		require.NoError(t, err)
		assert.True(t, invoked)
		assert.Equal(t, "ok", result)
		assert.Equal(t, StateClosed, cb.State())
	})
}

func TestBreaker_ContextCanceled(t *testing.T) {
	cb, _ := newTestBreaker(t, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cb.Do(ctx, func() (any, error) {
		t.Fatal("fn should not be invoked with canceled context")
		return nil, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, cb.Stats().FailureCount)
}

func TestUnaryClientInterceptor(t *testing.T) {
	t.Run("invoker 错误应该被原样传递并计入失败", func(t *testing.T) {
		cb, _ := newTestBreaker(t, &Config{FailureThreshold: 2})
		interceptor := cb.UnaryClientInterceptor()

		err := interceptor(context.Background(), "/predict.Predictor/Predict", "req", "reply", nil,
			func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
				return errRemote
			})
		assert.ErrorIs(t, err, errRemote)
		assert.Equal(t, 1, cb.Stats().FailureCount)
	})

	t.Run("熔断后拦截器应该快速失败", func(t *testing.T) {
		cb, _ := newTestBreaker(t, &Config{
			FailureThreshold:       1,
			InitialRecoveryTimeout: 10 * time.Second,
		})
		failTimes(t, cb, 1)

		interceptor := cb.UnaryClientInterceptor()
		err := interceptor(context.Background(), "/predict.Predictor/Predict", "req", "reply", nil,
			func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
				t.Fatal("invoker should not be called while open")
				return nil
			})
		assert.ErrorIs(t, err, ErrOpenState)
	})
}
