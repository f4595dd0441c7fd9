package curation

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"recipe-curator/internal/core/catalog"
	"recipe-curator/internal/core/commit"
	"recipe-curator/internal/core/image"
	"recipe-curator/internal/core/ingest"
	"recipe-curator/internal/core/review"
	"recipe-curator/internal/pkg/common"
)

// Handler 食譜匯入與審核流程的處理程序
type Handler struct {
	orchestrator *ingest.Orchestrator
	resolver     *catalog.Resolver
	entries      *catalog.Store
	reviews      *review.Store
	commits      *commit.Service
	recipes      *commit.RecipeStore
	images       *image.Normalizer
}

// NewHandler 創建新的處理程序
func NewHandler(orchestrator *ingest.Orchestrator, resolver *catalog.Resolver, entries *catalog.Store, reviews *review.Store, commits *commit.Service, recipes *commit.RecipeStore, images *image.Normalizer) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		resolver:     resolver,
		entries:      entries,
		reviews:      reviews,
		commits:      commits,
		recipes:      recipes,
		images:       images,
	}
}

// ReviewResponse 審核草稿的 API 表示
type ReviewResponse struct {
	DraftID             string                             `json:"draft_id"`
	Version             int64                              `json:"version"`
	State               string                             `json:"state"`
	Draft               ingest.ExtractionDraft             `json:"draft"`
	Candidates          []catalog.IngredientMatchCandidate `json:"candidates"`
	LowConfidenceFields []string                           `json:"low_confidence_fields"`
	Outstanding         []string                           `json:"outstanding,omitempty"`
	RecipeID            string                             `json:"recipe_id,omitempty"`
}

func reviewResponse(pending *review.PendingReview) ReviewResponse {
	return ReviewResponse{
		DraftID:             pending.DraftID,
		Version:             pending.Version,
		State:               string(pending.State),
		Draft:               pending.Draft,
		Candidates:          pending.Candidates,
		LowConfidenceFields: pending.LowConfidenceFields,
		Outstanding:         pending.OutstandingItems(),
		RecipeID:            pending.RecipeID,
	}
}

// intake 匯入的共用路徑：抽取、目錄解析、建立待審核
func (h *Handler) intake(c *gin.Context, modality ingest.Modality, payload, hint string) {
	ctx := c.Request.Context()
	source := &ingest.RawSource{
		ID:        common.GenerateUUID(),
		Modality:  modality,
		Payload:   payload,
		Hint:      hint,
		CreatedAt: time.Now().UTC(),
	}

	draft, err := h.orchestrator.Extract(ctx, source)
	if err != nil {
		common.AbortWithError(c, err)
		return
	}

	snapshot, err := h.entries.Snapshot(ctx)
	if err != nil {
		common.LogError("目錄快照載入失敗", zap.Error(err))
		common.AbortWithError(c, err)
		return
	}

	candidates := h.resolver.Resolve(draft.Mentions, snapshot)
	pending := review.NewPendingReview(draft, candidates, h.orchestrator.LowConfidenceFields(draft))
	if err := h.reviews.Create(ctx, pending); err != nil {
		common.LogError("待審核建立失敗", zap.Error(err), zap.String("draft_id", draft.DraftID))
		common.AbortWithError(c, err)
		return
	}

	common.LogInfo("匯入完成，進入審核",
		zap.String("draft_id", pending.DraftID),
		zap.String("modality", string(modality)),
		zap.String("method", draft.Method),
		zap.Float64("confidence", draft.Confidence),
		zap.Bool("fully_manual", draft.FullyManual),
		zap.Int("candidates", len(candidates)),
	)

	c.JSON(http.StatusCreated, reviewResponse(pending))
}
