package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// RateLimit 返回一个基于 Redis 固定窗口计数的限流中间件。
// 已认证的请求按用户计数，否则按客户端 IP 计数。
// keyPrefix: Redis 键前缀，多个部署共用一个 Redis 时用于隔离。
func RateLimit(redisClient *redis.Client, keyPrefix string, maxRequests int, window time.Duration) gin.HandlerFunc {
	if redisClient == nil {
		panic("Redis client cannot be nil for RateLimit middleware")
	}
	if maxRequests <= 0 {
		panic("maxRequests must be positive for RateLimit middleware")
	}
	if window <= 0 {
		panic("window duration must be positive for RateLimit middleware")
	}

	return func(c *gin.Context) {
		key := keyPrefix + "ratelimit:ip:" + c.ClientIP()
		if userID, ok := c.Get(ContextUserID); ok {
			if id, ok := userID.(uint); ok {
				key = keyPrefix + "ratelimit:user:" + strconv.FormatUint(uint64(id), 10)
			}
		}

		ctx := c.Request.Context()
		count, err := redisClient.Incr(ctx, key).Result()
		if err != nil {
			// Redis 不可用时放行
			logrus.WithError(err).Error("RateLimit: Redis INCR failed")
			c.Next()
			return
		}
		if count == 1 {
			// 窗口从第一次请求开始计时
			if err := redisClient.Expire(ctx, key, window).Err(); err != nil {
				logrus.WithError(err).Error("RateLimit: Redis EXPIRE failed")
			}
		}

		remaining := int64(maxRequests) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(maxRequests) {
			logrus.WithField("key", key).Warn("RateLimit: request limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			return
		}
		c.Next()
	}
}
