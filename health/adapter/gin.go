package adapter

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/bulwark/health"
)

// GinHandler 创建暴露健康状态快照的 Gin 处理器
//
// 远端不健康时返回 503，便于直接挂接负载均衡探活；
// 响应体始终携带完整的状态快照。
//
// 使用示例:
//
//	r := gin.New()
//	r.GET("/healthz/predictor", adapter.GinHandler(mon))
func GinHandler(mon health.Monitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := mon.Status()

		code := http.StatusOK
		if status.LastStatusKnown && !status.Healthy {
			code = http.StatusServiceUnavailable
		}

		c.JSON(code, status)
	}
}
