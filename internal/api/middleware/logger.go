package middleware

import (
	"time"

	"github.com/applyguard/applyguard-backend/pkg/logger"
	"github.com/gin-gonic/gin"
)

// Logger HTTP 요청 로깅 미들웨어. health check는 노이즈라 건너뛰고,
// 5xx는 에러 레벨로 기록한다.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		if path == "/health" {
			return
		}

		status := c.Writer.Status()
		fields := []interface{}{
			"method", c.Request.Method,
			"path", path,
			"query", query,
			"status", status,
			"latency", time.Since(start),
			"ip", c.ClientIP(),
		}

		if status >= 500 {
			fields = append(fields, "errors", c.Errors.String())
			logger.Error("HTTP Request", fields...)
			return
		}

		logger.Info("HTTP Request", fields...)
	}
}
