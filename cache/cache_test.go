package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/bulwark/clog"
)

// newStandaloneCache 创建测试用的进程内缓存
func newStandaloneCache(t *testing.T, cfg *Config) Cache {
	t.Helper()

	if cfg == nil {
		cfg = &Config{Mode: "standalone", DefaultTTL: time.Hour, Capacity: 100}
	}
	logger, _ := clog.New(&clog.Config{Level: "error"})
	c, err := New(cfg, WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c
}

func TestNewDefaults(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()
	assert.Equal(t, 6*time.Hour, c.Stats().DefaultTTL, "默认 TTL 应该是 6 小时")
}

func TestNewUnknownMode(t *testing.T) {
	_, err := New(&Config{Mode: "clustered"})
	assert.Error(t, err)
}

func TestNewDistributedRequiresConnector(t *testing.T) {
	_, err := New(&Config{Mode: "distributed"})
	assert.Error(t, err, "distributed 模式缺少连接器应该报错")
}

func TestSetGetRoundTrip(t *testing.T) {
	c := newStandaloneCache(t, nil)
	ctx := context.Background()

	type result struct {
		Label string
		Score float64
	}

	key := Key("predict", map[string]any{"text": "hello"})
	require.NoError(t, c.Set(ctx, key, result{Label: "positive", Score: 0.97}, 0))

	var got result
	require.NoError(t, c.Get(ctx, key, &got))
	assert.Equal(t, "positive", got.Label)
	assert.InDelta(t, 0.97, got.Score, 1e-9)
}

func TestGetMiss(t *testing.T) {
	c := newStandaloneCache(t, nil)

	var dest string
	err := c.Get(context.Background(), "absent", &dest)
	assert.ErrorIs(t, err, ErrMiss)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, uint64(0), stats.Hits)
}

func TestTTLExpiry(t *testing.T) {
	c := newStandaloneCache(t, nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short-lived", "value", 50*time.Millisecond))

	var got string
	require.NoError(t, c.Get(ctx, "short-lived", &got), "过期前应该命中")
	assert.Equal(t, "value", got)

	time.Sleep(100 * time.Millisecond)

	missesBefore := c.Stats().Misses
	err := c.Get(ctx, "short-lived", &got)
	assert.ErrorIs(t, err, ErrMiss, "过期后应该按未命中处理")
	assert.Equal(t, missesBefore+1, c.Stats().Misses, "过期未命中应该计入 miss 计数")
}

func TestTypeMismatchTreatedAsMiss(t *testing.T) {
	c := newStandaloneCache(t, nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", 42, 0))

	var dest struct{ Name string }
	err := c.Get(ctx, "k", &dest)
	assert.ErrorIs(t, err, ErrMiss, "类型不匹配按未命中降级，不抛内部错误")
}

func TestGetInvalidDest(t *testing.T) {
	c := newStandaloneCache(t, nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 0))

	err := c.Get(ctx, "k", nil)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestDeleteAndClear(t *testing.T) {
	c := newStandaloneCache(t, nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", 1, 0))
	require.NoError(t, c.Set(ctx, "b", 2, 0))

	require.NoError(t, c.Delete(ctx, "a"))
	var got int
	assert.ErrorIs(t, c.Get(ctx, "a", &got), ErrMiss)
	assert.NoError(t, c.Get(ctx, "b", &got))

	require.NoError(t, c.Clear(ctx))
	assert.ErrorIs(t, c.Get(ctx, "b", &got), ErrMiss)
}

func TestStatsHitRate(t *testing.T) {
	c := newStandaloneCache(t, nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 0))

	var got string
	require.NoError(t, c.Get(ctx, "k", &got))
	require.NoError(t, c.Get(ctx, "k", &got))
	_ = c.Get(ctx, "absent", &got)
	_ = c.Get(ctx, "absent", &got)

	stats := c.Stats()
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(2), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
}

func TestKeyDeterministic(t *testing.T) {
	k1 := Key("predict", map[string]any{"text": "hello", "lang": "en", "n": 3})
	k2 := Key("predict", map[string]any{"n": 3, "lang": "en", "text": "hello"})
	assert.Equal(t, k1, k2, "参数顺序不应该影响缓存键")

	k3 := Key("predict", map[string]any{"text": "hello", "lang": "en", "n": 4})
	assert.NotEqual(t, k1, k3, "参数值不同应该产生不同的键")

	k4 := Key("classify", map[string]any{"text": "hello", "lang": "en", "n": 3})
	assert.NotEqual(t, k1, k4, "操作名不同应该产生不同的键")

	assert.Equal(t, "status", Key("status", nil), "无参数时直接使用操作名")
}
