package clog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFileLogger 创建一个输出到临时文件的 Logger，返回 Logger 和读取输出的函数
func newFileLogger(t *testing.T, cfg *Config) (Logger, func() string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.log")
	if cfg == nil {
		cfg = &Config{Level: "debug", Format: "json"}
	}
	cfg.Output = path

	logger, err := New(cfg)
	require.NoError(t, err)

	return logger, func() string {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		return string(data)
	}
}

func TestNewDefaults(t *testing.T) {
	logger, err := New(nil)
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestNewInvalidConfig(t *testing.T) {
	_, err := New(&Config{Level: "verbose"})
	assert.Error(t, err, "未知级别应该报错")

	_, err = New(&Config{Format: "xml"})
	assert.Error(t, err, "未知格式应该报错")
}

func TestJSONOutput(t *testing.T) {
	logger, read := newFileLogger(t, nil)

	logger.Info("probe succeeded",
		String("url", "http://localhost/health"),
		Int("status", 200),
		Bool("healthy", true))

	line := strings.TrimSpace(read())
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))

	assert.Equal(t, "probe succeeded", entry["msg"])
	assert.Equal(t, "http://localhost/health", entry["url"])
	assert.Equal(t, float64(200), entry["status"])
	assert.Equal(t, true, entry["healthy"])
}

func TestLevelFiltering(t *testing.T) {
	logger, read := newFileLogger(t, &Config{Level: "warn", Format: "json"})

	logger.Debug("dropped")
	logger.Info("dropped too")
	logger.Warn("kept")

	out := read()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "kept")
}

func TestSetLevelDynamic(t *testing.T) {
	logger, read := newFileLogger(t, &Config{Level: "error", Format: "json"})

	logger.Info("before")
	require.NoError(t, logger.SetLevel(DebugLevel))
	logger.Info("after")

	out := read()
	assert.NotContains(t, out, "before")
	assert.Contains(t, out, "after")
}

func TestSetLevelAffectsChildren(t *testing.T) {
	logger, read := newFileLogger(t, &Config{Level: "error", Format: "json"})
	child := logger.WithNamespace("breaker")

	require.NoError(t, logger.SetLevel(DebugLevel))
	child.Debug("child visible")

	assert.Contains(t, read(), "child visible", "SetLevel 应该对子 Logger 生效")
}

func TestWithNamespace(t *testing.T) {
	logger, read := newFileLogger(t, nil)

	logger.WithNamespace("bulwark").WithNamespace("health").Info("tick")

	line := strings.TrimSpace(read())
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "bulwark.health", entry["namespace"])
}

func TestWithFields(t *testing.T) {
	logger, read := newFileLogger(t, nil)

	child := logger.With(String("component", "prewarm"))
	child.Info("cycle done")

	assert.Contains(t, read(), `"component":"prewarm"`)
}

func TestWithDoesNotMutateParent(t *testing.T) {
	logger, read := newFileLogger(t, nil)

	_ = logger.With(String("leak", "yes"))
	logger.Info("parent log")

	assert.NotContains(t, read(), "leak")
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	// 所有调用都不应该 panic
	logger.Debug("x")
	logger.Info("x")
	logger.Warn("x")
	logger.Error("x", Error(nil))
	assert.Equal(t, logger, logger.With(String("a", "b")))
	assert.Equal(t, logger, logger.WithNamespace("n"))
	assert.NoError(t, logger.SetLevel(DebugLevel))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"Warn", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"fatal", InfoLevel, true},
		{"", InfoLevel, true},
	}

	for _, tc := range tests {
		got, err := ParseLevel(tc.in)
		if tc.wantErr {
			assert.Error(t, err, "input %q", tc.in)
		} else {
			require.NoError(t, err, "input %q", tc.in)
			assert.Equal(t, tc.want, got)
		}
	}
}
