package breaker

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/ceyewan/bulwark/clog"
	"github.com/ceyewan/bulwark/metrics"
)

// circuitBreaker 熔断器实现（非导出）
//
// 所有状态读写都在 mu 保护下进行；被包装的远程调用在锁外执行，
// 慢调用不会阻塞其他 goroutine 观察熔断状态。
type circuitBreaker struct {
	cfg      *Config
	logger   clog.Logger
	fallback FallbackFunc

	mu                   sync.Mutex
	state                State
	failureCount         int
	halfOpenAttempts     int
	consecutiveOpenCount int
	lastFailureTime      time.Time
	currentTimeout       time.Duration // 本轮 OPEN 的抖动后恢复窗口
	probeInFlight        bool          // HALF_OPEN 下是否已有探测在途

	// 测试注入点
	now       func() time.Time
	randFloat func() float64

	requestCounter     metrics.Counter
	rejectCounter      metrics.Counter
	stateChangeCounter metrics.Counter
	stateGauge         metrics.Gauge
}

// newBreaker 创建熔断器实例（内部函数）
func newBreaker(cfg *Config, opt *options) (Breaker, error) {
	logger := opt.logger
	if logger == nil {
		logger = clog.Discard()
	}

	cb := &circuitBreaker{
		cfg:       cfg,
		logger:    logger,
		fallback:  opt.fallback,
		state:     StateClosed,
		now:       time.Now,
		randFloat: rand.Float64,
	}

	if opt.meter != nil {
		cb.requestCounter, _ = opt.meter.Counter(MetricRequestsTotal, "Total guarded calls.")
		cb.rejectCounter, _ = opt.meter.Counter(MetricRejectsTotal, "Calls rejected while the circuit is open.")
		cb.stateChangeCounter, _ = opt.meter.Counter(MetricStateChanges, "Circuit breaker state transitions.")
		cb.stateGauge, _ = opt.meter.Gauge(MetricState, "Current circuit breaker state (0=closed, 1=half_open, 2=open).")
	}

	logger.Info("circuit breaker created",
		clog.Int("failure_threshold", cfg.FailureThreshold),
		clog.Duration("initial_recovery_timeout", cfg.InitialRecoveryTimeout),
		clog.Duration("max_recovery_timeout", cfg.MaxRecoveryTimeout),
		clog.Int("half_open_max_attempts", cfg.HalfOpenMaxAttempts))

	return cb, nil
}

// Do 执行受熔断保护的函数
func (cb *circuitBreaker) Do(ctx context.Context, fn func() (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	isProbe, retryAfter, allowed := cb.acquire()
	if !allowed {
		if cb.rejectCounter != nil {
			cb.rejectCounter.Inc(ctx)
		}

		openErr := &OpenError{RetryAfter: retryAfter}
		if cb.fallback != nil {
			cb.logger.Info("circuit breaker open, initiating fallback",
				clog.Duration("retry_after", retryAfter))
			return cb.fallback(ctx, openErr)
		}
		return nil, openErr
	}

	// 远程调用在锁外执行
	// panic 视作一次失败记录（尤其要释放半开探测位）后继续向上抛，
	// 否则探测位永远不会归还，恢复后的调用会被无限拒绝
	defer func() {
		if r := recover(); r != nil {
			cb.record(isProbe, errPanicked)
			panic(r)
		}
	}()

	result, err := fn()

	cb.record(isProbe, err)

	if cb.requestCounter != nil {
		outcome := metrics.OutcomeSuccess
		if err != nil {
			outcome = metrics.OutcomeFailure
		}
		cb.requestCounter.Inc(ctx, metrics.L(metrics.LabelResult, outcome))
	}

	// fn 的失败原样返回，本地恢复策略只是计数和熔断，不吞错误
	return result, err
}

// acquire 判断本次调用是否放行
// 返回 (是否为 HALF_OPEN 探测, 预计剩余等待时间, 是否放行)
func (cb *circuitBreaker) acquire() (isProbe bool, retryAfter time.Duration, allowed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return false, 0, true

	case StateOpen:
		elapsed := cb.now().Sub(cb.lastFailureTime)
		if elapsed < cb.currentTimeout {
			return false, cb.currentTimeout - elapsed, false
		}
		// 退避窗口已过：转入 HALF_OPEN 并放行唯一探测
		cb.transition(StateHalfOpen)
		cb.halfOpenAttempts++
		cb.probeInFlight = true
		return true, 0, true

	case StateHalfOpen:
		if cb.probeInFlight {
			// 已有探测在途，其他调用快速失败
			return false, 0, false
		}
		cb.halfOpenAttempts++
		cb.probeInFlight = true
		return true, 0, true

	default:
		return false, 0, false
	}
}

// record 根据调用结果推进状态机
func (cb *circuitBreaker) record(isProbe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if isProbe {
		cb.probeInFlight = false
	}

	if err == nil {
		cb.onSuccess(isProbe)
	} else {
		cb.onFailure(isProbe)
	}
}

// onSuccess 调用成功（持锁调用）
func (cb *circuitBreaker) onSuccess(isProbe bool) {
	switch cb.state {
	case StateClosed:
		cb.failureCount = 0
	case StateHalfOpen:
		if isProbe {
			// 探测成功：完全恢复
			cb.failureCount = 0
			cb.halfOpenAttempts = 0
			cb.consecutiveOpenCount = 0
			cb.currentTimeout = 0
			cb.transition(StateClosed)
			cb.logger.Info("circuit breaker recovered via probe")
		}
	case StateOpen:
		// 调用在熔断前发起、熔断后才返回成功，不影响退避窗口
	}
}

// onFailure 调用失败（持锁调用）
func (cb *circuitBreaker) onFailure(isProbe bool) {
	cb.lastFailureTime = cb.now()

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.cfg.FailureThreshold {
			// 新一轮熔断从头开始退避
			cb.consecutiveOpenCount = 0
			cb.open()
		}

	case StateHalfOpen:
		if !isProbe {
			return
		}
		if cb.halfOpenAttempts >= cb.cfg.HalfOpenMaxAttempts {
			// 探测预算耗尽：延长退避
			cb.consecutiveOpenCount++
			cb.halfOpenAttempts = 0
			cb.logger.Warn("half-open probe budget exhausted, extending backoff",
				clog.Int("consecutive_open_count", cb.consecutiveOpenCount))
		}
		cb.open()

	case StateOpen:
		// 晚到的失败只刷新 lastFailureTime
	}
}

// open 转入 OPEN 并计算本轮抖动后的恢复窗口（持锁调用）
func (cb *circuitBreaker) open() {
	cb.currentTimeout = cb.nextTimeout()
	cb.transition(StateOpen)
	cb.logger.Warn("circuit breaker opened",
		clog.Int("failure_count", cb.failureCount),
		clog.Int("consecutive_open_count", cb.consecutiveOpenCount),
		clog.Duration("recovery_timeout", cb.currentTimeout))
}

// nextTimeout 计算 min(initial * 2^k, max) 并应用 ±20% 均匀抖动
func (cb *circuitBreaker) nextTimeout() time.Duration {
	base := cb.cfg.InitialRecoveryTimeout
	for i := 0; i < cb.consecutiveOpenCount && base < cb.cfg.MaxRecoveryTimeout; i++ {
		base *= 2
	}
	if base > cb.cfg.MaxRecoveryTimeout {
		base = cb.cfg.MaxRecoveryTimeout
	}

	// jitter ∈ [-0.2, +0.2)
	jitter := (cb.randFloat()*0.4 - 0.2) * float64(base)
	return base + time.Duration(jitter)
}

// transition 切换状态并记录（持锁调用）
func (cb *circuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to

	ctx := context.Background()
	if cb.stateChangeCounter != nil {
		cb.stateChangeCounter.Inc(ctx,
			metrics.L(metrics.LabelFromState, from.String()),
			metrics.L(metrics.LabelToState, to.String()))
	}
	if cb.stateGauge != nil {
		cb.stateGauge.Set(ctx, float64(to))
	}

	cb.logger.Info("circuit breaker state changed",
		clog.String("from", from.String()),
		clog.String("to", to.String()))
}

// State 获取当前熔断器状态
func (cb *circuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset 强制重置为 Closed 状态
//
// 与在途探测的竞争是允许的：探测成功闭合和 Reset 闭合都是幂等的，
// 无论哪个先发生，最终状态都是 Closed 且计数器清零。
func (cb *circuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateClosed && cb.failureCount == 0 {
		return
	}

	cb.failureCount = 0
	cb.halfOpenAttempts = 0
	cb.consecutiveOpenCount = 0
	cb.currentTimeout = 0
	cb.probeInFlight = false
	cb.transition(StateClosed)
	cb.logger.Info("circuit breaker reset to closed")
}

// Stats 返回状态与计数器快照
func (cb *circuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Stats{
		State:                cb.state,
		FailureCount:         cb.failureCount,
		HalfOpenAttempts:     cb.halfOpenAttempts,
		ConsecutiveOpenCount: cb.consecutiveOpenCount,
		CurrentTimeout:       cb.currentTimeout,
		LastFailureTime:      cb.lastFailureTime,
	}
}
