package curation

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"recipe-curator/internal/core/ingest"
	"recipe-curator/internal/pkg/common"
)

// ManualImportRequest 手動貼上文字匯入
type ManualImportRequest struct {
	Text string `json:"text" binding:"required"` // 貼上的食譜文字
}

// ImageImportRequest 圖片匯入
type ImageImportRequest struct {
	Image string `json:"image" binding:"required"` // base64 data URI
	Hint  string `json:"hint,omitempty"`           // 伴隨文字（照片說明、OCR 旁註）
}

// URLImportRequest 網址匯入
type URLImportRequest struct {
	URL string `json:"url" binding:"required"`
}

// HandleManualImport 手動文字匯入
func (h *Handler) HandleManualImport(c *gin.Context) {
	var req ManualImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.LogError("請求格式無效", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text must not be blank"})
		return
	}

	h.intake(c, ingest.ModalityManual, req.Text, "")
}

// HandleImageImport 圖片匯入
func (h *Handler) HandleImageImport(c *gin.Context) {
	var req ImageImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.LogError("請求格式無效", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	normalized, err := h.images.Normalize(c.Request.Context(), req.Image)
	if err != nil {
		common.LogError("圖片驗證失敗", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.intake(c, ingest.ModalityImage, normalized, req.Hint)
}

// HandleURLImport 網址匯入
func (h *Handler) HandleURLImport(c *gin.Context) {
	var req URLImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.LogError("請求格式無效", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	parsed, err := url.ParseRequestURI(req.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url must be an absolute http(s) address"})
		return
	}

	h.intake(c, ingest.ModalityURL, req.URL, "")
}
