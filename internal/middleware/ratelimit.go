package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"ideabox/internal/utils"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimit allows perMinute requests per client IP with a burst of the same size.
// Idle limiters fall out of the LRU after ten minutes. perMinute <= 0 disables it.
func RateLimit(perMinute int) gin.HandlerFunc {
	if perMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	limiters, err := utils.NewTTLCache[string, *rate.Limiter](4096, 10*time.Minute)
	if err != nil {
		panic(err)
	}
	var mu sync.Mutex
	every := rate.Every(time.Minute / time.Duration(perMinute))

	return func(c *gin.Context) {
		ip := c.ClientIP()

		mu.Lock()
		l, ok := limiters.Get(ip)
		if !ok {
			l = rate.NewLimiter(every, perMinute)
		}
		// 每次访问都续期
		limiters.Set(ip, l)
		mu.Unlock()

		if !l.Allow() {
			retry := int(time.Minute.Seconds()) / perMinute
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limited",
				"message": "too many attempts, try again later",
			})
			return
		}
		c.Next()
	}
}
