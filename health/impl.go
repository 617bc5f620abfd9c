package health

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ceyewan/bulwark/breaker"
	"github.com/ceyewan/bulwark/clog"
	"github.com/ceyewan/bulwark/metrics"
)

// stopJoinTimeout Stop() 等待循环退出的上限
// 在途探测不会被强制中断，只能等它自然超时
const stopJoinTimeout = 10 * time.Second

// monitor 健康监控实现（非导出）
//
// status 由监控循环单写，读者通过 RWMutex 获取快照。
type monitor struct {
	cfg      *Config
	logger   clog.Logger
	client   *http.Client
	resetter Resetter
	warmer   Warmer

	mu     sync.RWMutex
	status Status

	lifeMu  sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	// 测试注入点
	now func() time.Time

	checksCounter     metrics.Counter
	recoveriesCounter metrics.Counter
	healthyGauge      metrics.Gauge
	downtimeGauge     metrics.Gauge
}

func newMonitor(cfg *Config, opt *options) *monitor {
	logger := opt.logger
	if logger == nil {
		logger = clog.Discard()
	}

	m := &monitor{
		cfg:      cfg,
		logger:   logger,
		client:   opt.client,
		resetter: opt.resetter,
		warmer:   opt.warmer,
		now:      time.Now,
	}

	if opt.meter != nil {
		m.checksCounter, _ = opt.meter.Counter(MetricChecksTotal, "Total health probes.")
		m.recoveriesCounter, _ = opt.meter.Counter(MetricRecoveriesTotal, "Detected recovery transitions.")
		m.healthyGauge, _ = opt.meter.Gauge(MetricHealthy, "Current health status (1=healthy).")
		m.downtimeGauge, _ = opt.meter.Gauge(MetricDowntimeSeconds, "Accumulated downtime in seconds.", metrics.WithUnit("s"))
	}

	return m
}

// Start 启动后台监控循环，幂等
func (m *monitor) Start() {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	if m.running {
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})

	m.logger.Info("health monitor started",
		clog.String("probe_url", m.cfg.ProbeURL),
		clog.Duration("interval", m.cfg.Interval),
		clog.Duration("probe_timeout", m.cfg.ProbeTimeout))

	go m.run(m.stopCh, m.doneCh)
}

// Stop 停止监控循环并等待其退出，幂等
func (m *monitor) Stop() {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	if !m.running {
		return
	}
	m.running = false
	close(m.stopCh)

	select {
	case <-m.doneCh:
		m.logger.Info("health monitor stopped")
	case <-time.After(stopJoinTimeout):
		m.logger.Warn("health monitor stop timed out waiting for loop exit")
	}
}

// Status 返回当前健康状态快照
func (m *monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// run 监控主循环
// 停止信号在探测前和休眠中都会被观察，保证关闭及时
func (m *monitor) run(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		m.tick()

		select {
		case <-stopCh:
			return
		case <-ticker.C:
		}
	}
}

// tick 执行一次探测并推进状态
// 任何 panic 都被吸收，单次坏探测不能终止循环
func (m *monitor) tick() {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("health check tick panicked",
				clog.Any("panic", r))
		}
	}()

	healthy := m.probe()
	now := m.now()

	m.mu.Lock()
	st := &m.status
	st.TotalChecks++
	if healthy {
		st.SuccessfulChecks++
	} else {
		st.FailedChecks++
	}

	recovered := st.LastStatusKnown && !st.Healthy && healthy
	wentDown := !healthy && st.DowntimeStart.IsZero()

	if recovered {
		if !st.DowntimeStart.IsZero() {
			st.TotalDowntime += now.Sub(st.DowntimeStart)
			st.DowntimeStart = time.Time{}
		}
		st.LastRecoveryTime = now
	}
	if wentDown {
		// 首个样本就不健康时同样开始计停机
		st.DowntimeStart = now
	}

	st.Healthy = healthy
	st.LastStatusKnown = true
	downtime := st.TotalDowntime
	m.mu.Unlock()

	m.recordTick(healthy, downtime)

	if wentDown {
		m.logger.Warn("remote service became unhealthy",
			clog.String("probe_url", m.cfg.ProbeURL))
	}
	if recovered {
		m.onRecovery(downtime)
	}
}

// probe 执行一次健康探测
// 2xx 且在超时内返回视为健康，其他一切视为不健康
func (m *monitor) probe() bool {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.ProbeURL, nil)
	if err != nil {
		m.logger.Error("failed to build health probe request",
			clog.Error(err))
		return false
	}

	resp, err := m.client.Do(req)
	if err != nil {
		m.logger.Debug("health probe failed",
			clog.Error(err))
		return false
	}
	defer resp.Body.Close()

	// 排空响应体以复用连接
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// onRecovery down → up 转换的恢复动作
// 恢复动作自身的失败只记录日志，不影响监控循环
func (m *monitor) onRecovery(downtime time.Duration) {
	m.logger.Info("remote service recovered",
		clog.String("probe_url", m.cfg.ProbeURL),
		clog.Duration("total_downtime", downtime))

	if m.recoveriesCounter != nil {
		m.recoveriesCounter.Inc(context.Background())
	}

	if m.resetter != nil && m.resetter.State() != breaker.StateClosed {
		m.logger.Info("resetting circuit breaker after recovery")
		m.resetter.Reset()
	}

	if m.warmer != nil {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("recovery prewarm panicked",
						clog.Any("panic", r))
				}
			}()
			if err := m.warmer.Run(context.Background()); err != nil {
				m.logger.Warn("recovery prewarm failed",
					clog.Error(err))
			}
		}()
	}
}

func (m *monitor) recordTick(healthy bool, downtime time.Duration) {
	ctx := context.Background()

	if m.checksCounter != nil {
		outcome := metrics.OutcomeSuccess
		if !healthy {
			outcome = metrics.OutcomeFailure
		}
		m.checksCounter.Inc(ctx, metrics.L(metrics.LabelResult, outcome))
	}
	if m.healthyGauge != nil {
		v := 0.0
		if healthy {
			v = 1.0
		}
		m.healthyGauge.Set(ctx, v)
	}
	if m.downtimeGauge != nil {
		m.downtimeGauge.Set(ctx, downtime.Seconds())
	}
}
