package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/applyguard/applyguard-backend/pkg/ratelimit"
	"github.com/gin-gonic/gin"
)

// RateLimitConfig 엔드포인트별 토큰 버킷 설정
type RateLimitConfig struct {
	Capacity   int64
	RefillRate int64 // requests per second
	KeyFunc    func(*gin.Context) string
}

// DefaultKeyFunc 인증된 운영자 ID, 없으면 IP
func DefaultKeyFunc(c *gin.Context) string {
	if operatorID, exists := c.Get("operatorId"); exists {
		return fmt.Sprintf("operator:%v", operatorID)
	}
	return fmt.Sprintf("ip:%s", c.ClientIP())
}

// IPKeyFunc IP 기반 (인증 전 엔드포인트용)
func IPKeyFunc(c *gin.Context) string {
	return fmt.Sprintf("ip:%s", c.ClientIP())
}

// RateLimit 토큰 버킷 기반 요청 제한 미들웨어
func RateLimit(config RateLimitConfig) gin.HandlerFunc {
	limiter := ratelimit.NewLimiter(config.Capacity, config.RefillRate)

	if config.KeyFunc == nil {
		config.KeyFunc = DefaultKeyFunc
	}

	return func(c *gin.Context) {
		key := config.KeyFunc(c)

		if !limiter.Allow(key) {
			c.Header("X-RateLimit-Limit", strconv.FormatInt(config.Capacity, 10))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", "1")

			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "Rate limit exceeded",
				"message": fmt.Sprintf("Too many requests. Limit: %d requests per second", config.RefillRate),
			})
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(config.Capacity, 10))

		c.Next()
	}
}

// AssessRateLimit 평가 엔드포인트 제한 - 초당 10건
func AssessRateLimit() gin.HandlerFunc {
	return RateLimit(RateLimitConfig{
		Capacity:   20,
		RefillRate: 10,
		KeyFunc:    DefaultKeyFunc,
	})
}

// AdminRateLimit 관리 엔드포인트 제한 - 분당 30건
func AdminRateLimit() gin.HandlerFunc {
	return RateLimit(RateLimitConfig{
		Capacity:   30,
		RefillRate: 1,
		KeyFunc:    DefaultKeyFunc,
	})
}
