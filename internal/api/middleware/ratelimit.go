package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/eshaffer321/bankrecon/internal/api/dto"
)

// RateLimit allows perMinute requests per minute with bursts of the same
// size, answering 429 once the bucket is empty. A non-positive perMinute
// disables the limit.
func RateLimit(perMinute int) gin.HandlerFunc {
	if perMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	interval := time.Minute / time.Duration(perMinute)
	limiter := rate.NewLimiter(rate.Every(interval), perMinute)
	retryAfter := strconv.Itoa(max(1, int((interval+time.Second-1)/time.Second)))

	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.Header("Retry-After", retryAfter)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.RateLimitedError())
			return
		}
		c.Next()
	}
}
