package prewarm

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/bulwark/xerrors"
)

// testEntries 生成 n 个预热键
func testEntries(n int) []Entry {
	entries := make([]Entry, n)
	for i := range entries {
		entries[i] = Entry{
			Operation: "predict",
			Params:    map[string]any{"idx": i},
		}
	}
	return entries
}

// recordingLoader 记录加载顺序和时间的 LoadFunc
type recordingLoader struct {
	mu    sync.Mutex
	calls []time.Time
	fail  func(entry Entry) error
}

func (r *recordingLoader) load(ctx context.Context, entry Entry) error {
	r.mu.Lock()
	r.calls = append(r.calls, time.Now())
	r.mu.Unlock()
	if r.fail != nil {
		return r.fail(entry)
	}
	return nil
}

func (r *recordingLoader) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestNew(t *testing.T) {
	t.Run("nil 配置应该返回错误", func(t *testing.T) {
		_, err := New(nil, nil, func(ctx context.Context, e Entry) error { return nil })
		assert.ErrorIs(t, err, ErrConfigNil)
	})

	t.Run("缺少加载函数应该返回错误", func(t *testing.T) {
		_, err := New(&Config{}, nil, nil)
		assert.ErrorIs(t, err, ErrLoadFuncNil)
	})

	t.Run("零值配置应该填充默认值", func(t *testing.T) {
		cfg := &Config{}
		_, err := New(cfg, nil, func(ctx context.Context, e Entry) error { return nil })
		require.NoError(t, err)
		assert.Equal(t, 60*time.Second, cfg.StartupDelay)
		assert.Equal(t, 6*time.Hour, cfg.CycleInterval)
		assert.Equal(t, 3, cfg.BatchSize)
		assert.Equal(t, 2*time.Second, cfg.InterBatchDelay)
	})
}

func TestWarmer_Run(t *testing.T) {
	t.Run("应该按批次加载所有键", func(t *testing.T) {
		loader := &recordingLoader{}
		w, err := New(&Config{
			BatchSize:       2,
			InterBatchDelay: 20 * time.Millisecond,
		}, testEntries(5), loader.load)
		require.NoError(t, err)

		require.NoError(t, w.Run(context.Background()))
		assert.Equal(t, 5, loader.count())

		// 批次边界（第 2→3 个调用之间）应该有批间延迟
		loader.mu.Lock()
		gap := loader.calls[2].Sub(loader.calls[1])
		loader.mu.Unlock()
		assert.GreaterOrEqual(t, gap, 15*time.Millisecond)
	})

	t.Run("单键失败应该跳过而不中断", func(t *testing.T) {
		loader := &recordingLoader{
			fail: func(entry Entry) error {
				if entry.Params["idx"] == 1 {
					return xerrors.New("remote unavailable")
				}
				return nil
			},
		}
		w, err := New(&Config{
			BatchSize:       10,
			InterBatchDelay: time.Millisecond,
		}, testEntries(4), loader.load)
		require.NoError(t, err)

		require.NoError(t, w.Run(context.Background()))
		assert.Equal(t, 4, loader.count())
	})

	t.Run("加载函数 panic 应该按单键失败吸收", func(t *testing.T) {
		var loaded atomic.Int32
		load := func(ctx context.Context, entry Entry) error {
			if entry.Params["idx"] == 1 {
				panic("loader bug")
			}
			loaded.Add(1)
			return nil
		}
		w, err := New(&Config{
			BatchSize:       10,
			InterBatchDelay: time.Millisecond,
		}, testEntries(4), load)
		require.NoError(t, err)

		require.NotPanics(t, func() {
			err = w.Run(context.Background())
		})
		assert.NoError(t, err)
		// panic 的键被跳过，其余键照常加载
		assert.Equal(t, int32(3), loaded.Load())
	})

	t.Run("重复运行应该安全且更新 LastRun", func(t *testing.T) {
		loader := &recordingLoader{}
		w, err := New(&Config{
			BatchSize:       10,
			InterBatchDelay: time.Millisecond,
		}, testEntries(2), loader.load)
		require.NoError(t, err)

		assert.True(t, w.LastRun().IsZero())

		require.NoError(t, w.Run(context.Background()))
		first := w.LastRun()
		assert.False(t, first.IsZero())

		require.NoError(t, w.Run(context.Background()))
		assert.False(t, w.LastRun().Before(first))
		assert.Equal(t, 4, loader.count())
	})

	t.Run("ctx 取消应该中断本轮", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		loader := &recordingLoader{
			fail: func(entry Entry) error {
				cancel() // 第一个键加载后取消
				return nil
			},
		}
		w, err := New(&Config{
			BatchSize:       1,
			InterBatchDelay: 10 * time.Millisecond,
		}, testEntries(5), loader.load)
		require.NoError(t, err)

		err = w.Run(ctx)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Less(t, loader.count(), 5)
	})

	t.Run("并发 Run 应该串行不交错", func(t *testing.T) {
		var inFlight, maxInFlight atomic.Int32
		load := func(ctx context.Context, e Entry) error {
			cur := inFlight.Add(1)
			if cur > maxInFlight.Load() {
				maxInFlight.Store(cur)
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return nil
		}
		w, err := New(&Config{
			BatchSize:       10,
			InterBatchDelay: time.Millisecond,
		}, testEntries(3), load)
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = w.Run(context.Background())
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), maxInFlight.Load())
	})
}

func TestWarmer_Lifecycle(t *testing.T) {
	t.Run("Start 应该在启动延迟后执行首轮", func(t *testing.T) {
		loader := &recordingLoader{}
		w, err := New(&Config{
			StartupDelay:    20 * time.Millisecond,
			CycleInterval:   time.Hour,
			BatchSize:       10,
			InterBatchDelay: time.Millisecond,
		}, testEntries(2), loader.load)
		require.NoError(t, err)

		w.Start()
		defer w.Stop()

		assert.Equal(t, 0, loader.count(), "nothing before startup delay")
		assert.Eventually(t, func() bool {
			return loader.count() == 2
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("启动延迟内 Stop 应该取消首轮", func(t *testing.T) {
		loader := &recordingLoader{}
		w, err := New(&Config{
			StartupDelay:    time.Hour,
			CycleInterval:   time.Hour,
			BatchSize:       10,
			InterBatchDelay: time.Millisecond,
		}, testEntries(2), loader.load)
		require.NoError(t, err)

		w.Start()
		w.Stop()

		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, 0, loader.count())
	})

	t.Run("Stop 后的 Run 应该返回 ErrStopped", func(t *testing.T) {
		loader := &recordingLoader{}
		w, err := New(&Config{
			StartupDelay:    time.Hour,
			CycleInterval:   time.Hour,
			BatchSize:       10,
			InterBatchDelay: time.Millisecond,
		}, testEntries(2), loader.load)
		require.NoError(t, err)

		w.Start()
		w.Stop()

		err = w.Run(context.Background())
		assert.ErrorIs(t, err, ErrStopped)
	})

	t.Run("Start 和 Stop 应该幂等", func(t *testing.T) {
		w, err := New(&Config{
			StartupDelay:  time.Hour,
			CycleInterval: time.Hour,
		}, nil, func(ctx context.Context, e Entry) error { return nil })
		require.NoError(t, err)

		w.Start()
		w.Start()
		w.Stop()
		w.Stop()
	})
}
