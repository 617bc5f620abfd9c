package prewarm

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/ceyewan/bulwark/clog"
	"github.com/ceyewan/bulwark/metrics"
	"github.com/ceyewan/bulwark/xerrors"
)

// cronJoinTimeout Stop() 等待在途预热批次退出的上限
const cronJoinTimeout = 10 * time.Second

// warmer 缓存预热实现（非导出）
//
// runMu 串行化所有预热轮次：后台循环和健康监控触发的 Run
// 互斥执行，批次永远不会交错。请求路径不经过这里的任何锁。
type warmer struct {
	cfg     *Config
	entries []Entry
	load    LoadFunc
	logger  clog.Logger

	runMu sync.Mutex

	lastMu  sync.RWMutex
	lastRun time.Time

	lifeMu  sync.Mutex
	running bool
	stopCh  chan struct{}
	cron    *cron.Cron

	runsCounter    metrics.Counter
	entriesCounter metrics.Counter
	runHistogram   metrics.Histogram
}

func newWarmer(cfg *Config, entries []Entry, load LoadFunc, opt *options) *warmer {
	logger := opt.logger
	if logger == nil {
		logger = clog.Discard()
	}

	w := &warmer{
		cfg:     cfg,
		entries: entries,
		load:    load,
		logger:  logger,
	}

	if opt.meter != nil {
		w.runsCounter, _ = opt.meter.Counter(MetricRunsTotal, "Total prewarm runs.")
		w.entriesCounter, _ = opt.meter.Counter(MetricEntriesTotal, "Total prewarm entries processed.")
		w.runHistogram, _ = opt.meter.Histogram(MetricRunDuration, "Prewarm run duration.", metrics.WithUnit("s"))
	}

	return w
}

// Start 启动后台预热，幂等
func (w *warmer) Start() {
	w.lifeMu.Lock()
	defer w.lifeMu.Unlock()

	if w.running {
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	// 调度 goroutine 里的 panic 绝不能杀死进程
	w.cron = cron.New(cron.WithChain(cron.Recover(cronLogger{logger: w.logger})))
	w.cron.Schedule(cron.Every(w.cfg.CycleInterval), cron.FuncJob(func() {
		if err := w.Run(context.Background()); err != nil {
			w.logger.Warn("scheduled prewarm run failed", clog.Error(err))
		}
	}))

	w.logger.Info("prewarmer started",
		clog.Int("entries", len(w.entries)),
		clog.Duration("startup_delay", w.cfg.StartupDelay),
		clog.Duration("cycle_interval", w.cfg.CycleInterval))

	go w.startup(w.stopCh)
}

// startup 启动延迟后执行首轮预热，然后开启周期调度
func (w *warmer) startup(stopCh <-chan struct{}) {
	timer := time.NewTimer(w.cfg.StartupDelay)
	defer timer.Stop()

	select {
	case <-stopCh:
		return
	case <-timer.C:
	}

	if err := w.Run(context.Background()); err != nil {
		w.logger.Warn("startup prewarm run failed", clog.Error(err))
	}

	// 周期从首轮结束起算；Stop 竞争时不再开启调度
	w.lifeMu.Lock()
	if w.running {
		w.cron.Start()
	}
	w.lifeMu.Unlock()
}

// Stop 停止后台预热并等待在途批次退出，幂等
func (w *warmer) Stop() {
	w.lifeMu.Lock()
	if !w.running {
		w.lifeMu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	c := w.cron
	// 等待期间不持有 lifeMu，在途的 Run 还需要读它
	w.lifeMu.Unlock()

	ctx := c.Stop()
	select {
	case <-ctx.Done():
		w.logger.Info("prewarmer stopped")
	case <-time.After(cronJoinTimeout):
		w.logger.Warn("prewarmer stop timed out waiting for running batch")
	}
}

// LastRun 返回最近一轮预热的完成时间
func (w *warmer) LastRun() time.Time {
	w.lastMu.RLock()
	defer w.lastMu.RUnlock()
	return w.lastRun
}

// Run 立即执行一轮预热
//
// 重复运行是安全的，只是重新填充已经热的条目；
// ctx 取消和 Stop 都会让本轮在批次边界尽快退出。
func (w *warmer) Run(ctx context.Context) error {
	w.runMu.Lock()
	defer w.runMu.Unlock()

	w.lifeMu.Lock()
	stopCh := w.stopCh // nil 时 select 永远不会命中该分支
	w.lifeMu.Unlock()

	runID := uuid.NewString()
	logger := w.logger.With(clog.String("run_id", runID))
	start := time.Now()

	logger.Info("prewarm run started", clog.Int("entries", len(w.entries)))

	var loaded, failed int
	for i := 0; i < len(w.entries); i += w.cfg.BatchSize {
		if i > 0 {
			if err := w.sleepBetweenBatches(ctx, stopCh); err != nil {
				logger.Warn("prewarm run interrupted",
					clog.Int("loaded", loaded),
					clog.Error(err))
				return err
			}
		}

		end := min(i+w.cfg.BatchSize, len(w.entries))
		for _, entry := range w.entries[i:end] {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-stopCh:
				return ErrStopped
			default:
			}

			// 单键失败跳过，不中断本批次
			if err := w.safeLoad(ctx, entry); err != nil {
				failed++
				logger.Warn("prewarm entry failed",
					clog.String("operation", entry.Operation),
					clog.Error(err))
				continue
			}
			loaded++
		}
	}

	elapsed := time.Since(start)
	w.lastMu.Lock()
	w.lastRun = time.Now()
	w.lastMu.Unlock()

	w.recordRun(ctx, loaded, failed, elapsed)

	logger.Info("prewarm run finished",
		clog.Int("loaded", loaded),
		clog.Int("failed", failed),
		clog.Duration("elapsed", elapsed))
	return nil
}

// safeLoad 执行单键加载并吸收 panic
// 预热机制内部的任何故障都不能传播到调用方或后台 goroutine
func (w *warmer) safeLoad(ctx context.Context, entry Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = xerrors.Wrapf(ErrLoadPanicked, "%v", r)
		}
	}()
	return w.load(ctx, entry)
}

// cronLogger 把 cron 的恢复日志桥接到 clog
type cronLogger struct {
	logger clog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Info(msg, clog.Any("details", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, clog.Error(err), clog.Any("details", keysAndValues))
}

func (w *warmer) sleepBetweenBatches(ctx context.Context, stopCh <-chan struct{}) error {
	timer := time.NewTimer(w.cfg.InterBatchDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-stopCh:
		return ErrStopped
	case <-timer.C:
		return nil
	}
}

func (w *warmer) recordRun(ctx context.Context, loaded, failed int, elapsed time.Duration) {
	if w.runsCounter != nil {
		w.runsCounter.Inc(ctx)
	}
	if w.entriesCounter != nil {
		w.entriesCounter.Add(ctx, float64(loaded), metrics.L(metrics.LabelResult, metrics.OutcomeSuccess))
		w.entriesCounter.Add(ctx, float64(failed), metrics.L(metrics.LabelResult, metrics.OutcomeFailure))
	}
	if w.runHistogram != nil {
		w.runHistogram.Record(ctx, elapsed.Seconds())
	}
}
