package health

// Metrics 指标常量定义
const (
	// MetricChecksTotal 健康探测总数 (Counter, label: result)
	MetricChecksTotal = "health_checks_total"

	// MetricHealthy 当前健康状态 (Gauge: 1=healthy, 0=unhealthy)
	MetricHealthy = "health_healthy"

	// MetricRecoveriesTotal 检测到的恢复次数 (Counter)
	MetricRecoveriesTotal = "health_recoveries_total"

	// MetricDowntimeSeconds 累计停机秒数 (Gauge)
	MetricDowntimeSeconds = "health_downtime_seconds"
)
