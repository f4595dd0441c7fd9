package health

import (
	"net/http"
	"runtime"
	"time"

	"recipe-curator/internal/infrastructure/cache"
	"recipe-curator/internal/infrastructure/config"
	"recipe-curator/internal/infrastructure/storage"
	"recipe-curator/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HealthResponse 健康檢查響應
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Runtime   map[string]interface{} `json:"runtime"`
}

// Checker 健康檢查處理器，持有需要探測的依賴
type Checker struct {
	cfg   *config.Config
	db    *storage.DB
	cache *cache.Service
}

// NewChecker 創建健康檢查處理器
func NewChecker(cfg *config.Config, db *storage.DB, cacheService *cache.Service) *Checker {
	return &Checker{
		cfg:   cfg,
		db:    db,
		cache: cacheService,
	}
}

// HealthCheck 健康檢查處理器
func (h *Checker) HealthCheck(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   h.cfg.App.Version,
		Runtime: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]interface{}{
				"alloc":       m.Alloc,
				"total_alloc": m.TotalAlloc,
				"sys":         m.Sys,
				"num_gc":      m.NumGC,
			},
		},
	}

	common.LogDebug("Health check request",
		zap.String("client_ip", c.ClientIP()),
		zap.String("path", c.Request.URL.Path),
	)

	c.JSON(http.StatusOK, response)
}

// ReadinessCheck 就緒檢查：資料庫必須可用，快取只在啟用時檢查
func (h *Checker) ReadinessCheck(c *gin.Context) {
	checks := gin.H{}

	if err := h.db.PingContext(c.Request.Context()); err != nil {
		common.LogError("資料庫就緒檢查失敗", zap.Error(err))
		checks["storage"] = "unavailable"
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"checks": checks,
		})
		return
	}
	checks["storage"] = "ok"

	if h.cache != nil && h.cache.Enabled() {
		if err := h.cache.Ping(c.Request.Context()); err != nil {
			checks["cache"] = "unavailable"
		} else {
			checks["cache"] = "ok"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"checks": checks,
	})
}

// LivenessCheck 存活檢查處理器
func (h *Checker) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}
