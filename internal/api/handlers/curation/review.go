package curation

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"recipe-curator/internal/core/review"
	"recipe-curator/internal/pkg/common"
)

// EditRequest 欄位修正請求。version 是樂觀並發控制的門票。
type EditRequest struct {
	Version int64            `json:"version" binding:"required"`
	Edit    review.FieldEdit `json:"edit"`
}

// ResolveRequest 候選處置請求
type ResolveRequest struct {
	Version int64                    `json:"version" binding:"required"`
	Actions []review.CandidateAction `json:"actions" binding:"required"`
}

// VersionRequest 只帶版本號的狀態轉換請求
type VersionRequest struct {
	Version int64 `json:"version" binding:"required"`
}

// HandleGetReview 載入審核草稿，跨會話續作的入口
func (h *Handler) HandleGetReview(c *gin.Context) {
	pending, err := h.reviews.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, reviewResponse(pending))
}

// HandleEdit 修正草稿欄位
func (h *Handler) HandleEdit(c *gin.Context) {
	var req EditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	h.mutate(c, req.Version, func(pending *review.PendingReview) error {
		return pending.ApplyEdit(&req.Edit)
	})
}

// HandleResolve 處置一或多筆食材候選
func (h *Handler) HandleResolve(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	h.mutate(c, req.Version, func(pending *review.PendingReview) error {
		for i := range req.Actions {
			if err := pending.ResolveCandidate(&req.Actions[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// HandleConfirm 確認草稿，前提是所有待確認項目都已處理
func (h *Handler) HandleConfirm(c *gin.Context) {
	var req VersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	h.mutate(c, req.Version, func(pending *review.PendingReview) error {
		return pending.Confirm()
	})
}

// HandleDiscard 放棄草稿
func (h *Handler) HandleDiscard(c *gin.Context) {
	var req VersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	h.mutate(c, req.Version, func(pending *review.PendingReview) error {
		return pending.Discard()
	})
}

// HandleCommit 提交已確認的草稿，產出不可變食譜
func (h *Handler) HandleCommit(c *gin.Context) {
	var req VersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	draftID := c.Param("id")
	recipe, err := h.commits.Commit(c.Request.Context(), draftID, req.Version)
	if err != nil {
		common.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, recipe)
}

// mutate 審核變更的共用路徑：載入、套用、帶版本寫回。
// 寫回撞到版本衝突時回 409，呼叫端重新載入後再試。
func (h *Handler) mutate(c *gin.Context, version int64, apply func(*review.PendingReview) error) {
	ctx := c.Request.Context()
	draftID := c.Param("id")

	pending, err := h.reviews.Get(ctx, draftID)
	if err != nil {
		common.AbortWithError(c, err)
		return
	}

	if err := apply(pending); err != nil {
		common.AbortWithError(c, err)
		return
	}

	if err := h.reviews.Update(ctx, pending, version); err != nil {
		common.LogWarn("審核寫回失敗",
			zap.String("draft_id", draftID),
			zap.Int64("version", version),
			zap.Error(err),
		)
		common.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, reviewResponse(pending))
}
