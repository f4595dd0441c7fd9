package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"recipe-curator/internal/pkg/common"
)

// tokenBucket 匯入端點共用的令牌桶。
// 抽取會打外部供應商，整體節流比逐 IP 計數更符合成本模型。
type tokenBucket struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64
	lastFill time.Time
}

func newTokenBucket(requests int, window time.Duration) *tokenBucket {
	return &tokenBucket{
		tokens:   float64(requests),
		capacity: float64(requests),
		rate:     float64(requests) / window.Seconds(),
		lastFill: time.Now(),
	}
}

func (b *tokenBucket) take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.tokens += now.Sub(b.lastFill).Seconds() * b.rate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastFill = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// RateLimit 匯入端點的節流中間件
func RateLimit(requests int, window time.Duration) gin.HandlerFunc {
	bucket := newTokenBucket(requests, window)

	return func(c *gin.Context) {
		if !bucket.take() {
			common.LogWarn("匯入節流觸發",
				zap.String("ip", c.ClientIP()),
				zap.String("path", c.Request.URL.Path))

			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			common.AbortWithError(c, common.ErrTooManyRequests)
			return
		}

		c.Next()
	}
}
