package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"recipe-curator/internal/infrastructure/cache"
	"recipe-curator/internal/infrastructure/config"
	"recipe-curator/internal/pkg/common"
)

// Orchestrator 抽取協調器。
// 選擇符合來源型態的轉接器、跑主策略、信心不足或失敗時沿後備鏈遞補，
// 合併採 most-specific-wins。此層不做任何持久化。
type Orchestrator struct {
	config   *config.Config
	registry *AdapterRegistry
	cache    *cache.Service
}

// NewOrchestrator 創建抽取協調器
func NewOrchestrator(cfg *config.Config, registry *AdapterRegistry, cacheSvc *cache.Service) *Orchestrator {
	return &Orchestrator{
		config:   cfg,
		registry: registry,
		cache:    cacheSvc,
	}
}

// Extract 把原始來源變成結構化草稿。
// 所有策略耗盡時回傳 FullyManual 草稿而不是丟棄來源；
// 只有找不到轉接器這類呼叫端錯誤才回傳 error。
func (o *Orchestrator) Extract(ctx context.Context, source *RawSource) (*ExtractionDraft, error) {
	adapter, err := o.registry.Lookup(source.Modality)
	if err != nil {
		return nil, err
	}

	// 同一來源重抽直接還原快取結果，欄位與信心保證一致
	cacheKey := cache.Key("extract", string(source.Modality), source.Payload, source.Hint)
	if raw, err := o.cache.Get(ctx, cacheKey); err == nil {
		var cached ExtractionDraft
		if err := common.ParseJSON(raw, &cached); err == nil {
			cached.DraftID = common.GenerateUUID()
			cached.SourceID = source.ID
			cached.CreatedAt = time.Now().UTC()
			return &cached, nil
		}
	}

	threshold := o.config.Extract.ConfidenceThreshold
	maxDepth := o.config.Extract.MaxFallbackDepth

	var (
		merged     *StrategyResult
		method     string
		depthUsed  int
		anySuccess bool
	)

	strategies := adapter.Strategies()
	for depth, strategy := range strategies {
		if depth > maxDepth {
			break
		}
		// 主結果已達閾值就不再往下走
		if merged != nil && merged.OverallConfidence() >= threshold {
			break
		}

		start := time.Now()
		result, err := o.runStrategy(ctx, strategy, source)
		if err != nil {
			common.LogExtraction(strategy.Method(), depth, 0, time.Since(start), err)
			continue
		}
		common.LogExtraction(strategy.Method(), depth, result.OverallConfidence(), time.Since(start), nil)

		anySuccess = true
		depthUsed = depth
		if merged == nil {
			merged = result
			method = result.Method
			continue
		}
		mergeResult(merged, result, threshold)
	}

	draft := o.buildDraft(source, merged, method, depthUsed, !anySuccess)

	// 只快取成功的抽取；FullyManual 代表所有策略失敗，重試應該真的重跑
	if anySuccess {
		if raw, err := common.ToJSON(draft); err == nil {
			if err := o.cache.Set(ctx, cacheKey, raw); err != nil {
				common.LogWarn("failed to cache extraction draft", zap.Error(err))
			}
		}
	}

	return draft, nil
}

// runStrategy 帶單次超時與有界指數退避重試地執行一個策略。
// 只有錯誤（暫時性失敗）觸發重試；低信心的成功結果不重試。
func (o *Orchestrator) runStrategy(ctx context.Context, strategy Strategy, source *RawSource) (*StrategyResult, error) {
	backoff := o.config.Extract.RetryBackoff
	var lastErr error

	for attempt := 0; attempt <= o.config.Extract.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
		}

		callCtx, cancel := context.WithTimeout(ctx, o.config.Extract.StrategyTimeout)
		result, err := strategy.Run(callCtx, source)
		cancel()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// mergeResult most-specific-wins：後備結果只能補上主結果留空或低於閾值的欄位，
// 不得覆寫已達信心的欄位。
func mergeResult(merged, fallback *StrategyResult, threshold float64) {
	if merged.FieldConfidence == nil {
		merged.FieldConfidence = map[string]float64{}
	}

	take := func(field string) bool {
		return merged.FieldConfidence[field] < threshold &&
			fallback.FieldConfidence[field] > merged.FieldConfidence[field]
	}

	if take(FieldTitle) && fallback.Title != "" {
		merged.Title = fallback.Title
		merged.FieldConfidence[FieldTitle] = fallback.FieldConfidence[FieldTitle]
	}
	if take(FieldIngredients) && len(fallback.Mentions) > 0 {
		merged.Mentions = fallback.Mentions
		merged.FieldConfidence[FieldIngredients] = fallback.FieldConfidence[FieldIngredients]
	}
	if take(FieldInstructions) && len(fallback.Instructions) > 0 {
		merged.Instructions = fallback.Instructions
		merged.FieldConfidence[FieldInstructions] = fallback.FieldConfidence[FieldInstructions]
	}
	if take(FieldCategory) && fallback.Category != "" {
		merged.Category = fallback.Category
		merged.FieldConfidence[FieldCategory] = fallback.FieldConfidence[FieldCategory]
	}
}

// buildDraft 組出草稿；merged 為 nil 時是全人工草稿
func (o *Orchestrator) buildDraft(source *RawSource, merged *StrategyResult, method string, depthUsed int, fullyManual bool) *ExtractionDraft {
	draft := &ExtractionDraft{
		DraftID:         common.GenerateUUID(),
		SourceID:        source.ID,
		SourceModality:  source.Modality,
		FieldConfidence: map[string]float64{},
		FallbackDepth:   depthUsed,
		FullyManual:     fullyManual,
		CreatedAt:       time.Now().UTC(),
	}
	if source.Modality == ModalityURL {
		draft.SourceRef = source.Payload
	}

	if merged == nil {
		draft.Method = "none"
		return draft
	}

	draft.Title = merged.Title
	draft.Mentions = merged.Mentions
	draft.Instructions = merged.Instructions
	draft.Category = merged.Category
	for field, score := range merged.FieldConfidence {
		draft.FieldConfidence[field] = clampScore(score)
	}
	draft.Confidence = merged.OverallConfidence()
	draft.Method = method
	return draft
}

// LowConfidenceFields 低於閾值、需要人工確認的欄位，順序固定
func (o *Orchestrator) LowConfidenceFields(draft *ExtractionDraft) []string {
	var fields []string
	for _, field := range confidenceFields {
		if draft.FieldConfidence[field] < o.config.Extract.ConfidenceThreshold {
			fields = append(fields, field)
		}
	}
	return fields
}
