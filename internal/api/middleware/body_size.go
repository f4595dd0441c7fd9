package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"recipe-curator/internal/pkg/common"
)

// BodySizeLimit 限制請求體大小。
// 上限沿用圖片匯入的設定，文字與 URL 匯入遠小於此。
func BodySizeLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			common.LogWarn("請求體超過上限",
				zap.Int64("content_length", c.Request.ContentLength),
				zap.Int64("max_size", maxSize),
				zap.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, common.ErrorResponse{
				Code:    common.ErrCodeInvalidRequest,
				Message: fmt.Sprintf("請求體超過上限 %d bytes", maxSize),
				Action:  "correct",
			})
			return
		}

		// Content-Length 可以造假，讀取端同樣設限
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)

		c.Next()
	}
}
