package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"recipe-curator/internal/infrastructure/config"
	"recipe-curator/internal/pkg/common"
)

// importDeduper 記錄去重視窗內看過的匯入指紋
type importDeduper struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time
}

// remember 回報指紋是否第一次出現，順手清掉視窗外的舊紀錄
func (d *importDeduper) remember(fingerprint string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.seen[fingerprint]; ok && now.Sub(last) <= d.window {
		return false
	}
	for key, ts := range d.seen {
		if now.Sub(ts) > d.window {
			delete(d.seen, key)
		}
	}
	d.seen[fingerprint] = now
	return true
}

// Deduplication 擋下去重視窗內重複送出的匯入。
// 指紋取路徑加請求體雜湊：同一份食譜文字或圖片連按兩次，只會跑一次抽取。
func Deduplication(cfg *config.Config) gin.HandlerFunc {
	window := time.Second
	if cfg != nil && cfg.DedupWindow > 0 {
		window = cfg.DedupWindow
	}
	deduper := &importDeduper{
		window: window,
		seen:   make(map[string]time.Time),
	}

	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost || c.Request.Body == nil {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			common.LogWarn("讀取匯入請求體失敗", zap.Error(err))
			c.Next()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		digest := sha256.Sum256(body)
		fingerprint := c.Request.URL.Path + ":" + hex.EncodeToString(digest[:])
		if !deduper.remember(fingerprint, time.Now()) {
			common.LogInfo("擋下重複匯入",
				zap.String("path", c.Request.URL.Path),
				zap.String("ip", c.ClientIP()))
			common.AbortWithError(c, common.ErrDuplicateImport)
			return
		}

		c.Next()
	}
}
