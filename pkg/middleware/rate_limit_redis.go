package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/webaffe/webaffe/backend/console/pkg/logger"
	"github.com/webaffe/webaffe/backend/console/pkg/metrics"
)

// RedisRateLimitMiddleware limits each key to floor(rps*window)+burst
// requests per fixed window, counted in Redis so several console processes
// share one budget. Keys follow RateLimitMiddleware. When Redis errors the
// request is judged by an in-process limiter instead.
func RedisRateLimitMiddleware(client *redis.Client, rps float64, burst int, window time.Duration) gin.HandlerFunc {
	local := RateLimitMiddleware(rps, burst)
	if client == nil {
		return local
	}
	if window < time.Second {
		window = time.Second
	}
	secs := int64(window / time.Second)
	allowed := int64(rps*float64(secs)) + int64(burst)

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		key := fmt.Sprintf("rl:%s:%d", limitKey(c), time.Now().Unix()/secs)

		var incr *redis.IntCmd
		_, err := client.TxPipelined(ctx, func(p redis.Pipeliner) error {
			incr = p.Incr(ctx, key)
			p.Expire(ctx, key, window+time.Second)
			return nil
		})
		if err != nil {
			logger.Warnf("redis rate limit %s: %v; using local limiter", key, err)
			local(c)
			return
		}
		if incr.Val() > allowed {
			c.Header("Retry-After", strconv.FormatInt(secs, 10))
			metrics.RateLimitRejected.WithLabelValues("redis").Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		metrics.RateLimitAllowed.WithLabelValues("redis").Inc()
		c.Next()
	}
}
