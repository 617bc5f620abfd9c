package prewarm

// Metrics 指标常量定义
const (
	// MetricRunsTotal 预热轮次总数 (Counter)
	MetricRunsTotal = "prewarm_runs_total"

	// MetricEntriesTotal 预热键处理总数 (Counter, label: result)
	MetricEntriesTotal = "prewarm_entries_total"

	// MetricRunDuration 单轮预热耗时 (Histogram)
	MetricRunDuration = "prewarm_run_duration_seconds"
)
