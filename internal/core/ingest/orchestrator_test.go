package ingest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipe-curator/internal/infrastructure/config"
)

// stubStrategy 可編程的假策略：回傳固定結果或固定錯誤並記錄呼叫次數
type stubStrategy struct {
	method string
	result *StrategyResult
	err    error
	calls  int
}

func (s *stubStrategy) Method() string { return s.method }

func (s *stubStrategy) Run(_ context.Context, _ *RawSource) (*StrategyResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	// 每次回傳拷貝，避免協調器的合併污染共用狀態
	copied := *s.result
	return &copied, nil
}

// stubAdapter 固定策略鏈的假轉接器
type stubAdapter struct {
	modality   Modality
	strategies []Strategy
}

func (a *stubAdapter) Modality() Modality     { return a.modality }
func (a *stubAdapter) Strategies() []Strategy { return a.strategies }

func testConfig() *config.Config {
	return &config.Config{
		Extract: config.ExtractConfig{
			ConfidenceThreshold: 0.6,
			MaxFallbackDepth:    2,
			StrategyTimeout:     time.Second,
			MaxRetries:          2,
			RetryBackoff:        time.Millisecond,
		},
	}
}

func newTestOrchestrator(strategies ...Strategy) *Orchestrator {
	registry := NewAdapterRegistry(&stubAdapter{
		modality:   ModalityManual,
		strategies: strategies,
	})
	return NewOrchestrator(testConfig(), registry, nil)
}

func manualSource(payload string) *RawSource {
	return &RawSource{
		ID:        "src-1",
		Modality:  ModalityManual,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}

func TestExtractConfidentPrimarySkipsFallback(t *testing.T) {
	primary := &stubStrategy{
		method: MethodManualStructured,
		result: &StrategyResult{
			Title:    "Tomato Soup",
			Mentions: []RawIngredientMention{{Index: 0, Name: "tomato"}},
			Instructions: []string{
				"Simmer.",
			},
			Category: "soup",
			FieldConfidence: map[string]float64{
				FieldTitle:        1.0,
				FieldIngredients:  0.9,
				FieldInstructions: 0.8,
				FieldCategory:     1.0,
			},
			Method: MethodManualStructured,
		},
	}
	fallback := &stubStrategy{method: MethodHeuristic, err: fmt.Errorf("should not run")}

	orch := newTestOrchestrator(primary, fallback)
	draft, err := orch.Extract(context.Background(), manualSource("text"))
	require.NoError(t, err)

	assert.Equal(t, 0, fallback.calls)
	assert.Equal(t, MethodManualStructured, draft.Method)
	assert.Equal(t, 0, draft.FallbackDepth)
	assert.False(t, draft.FullyManual)
	assert.InDelta(t, 0.925, draft.Confidence, 1e-9)
}

func TestExtractFallbackFillsWeakFields(t *testing.T) {
	// 主策略標題可信但食材空白；後備策略補食材，不得覆寫標題
	primary := &stubStrategy{
		method: MethodManualStructured,
		result: &StrategyResult{
			Title: "Primary Title",
			FieldConfidence: map[string]float64{
				FieldTitle: 1.0,
			},
			Method: MethodManualStructured,
		},
	}
	fallback := &stubStrategy{
		method: MethodHeuristic,
		result: &StrategyResult{
			Title:    "Fallback Title",
			Mentions: []RawIngredientMention{{Index: 0, Name: "flour"}},
			FieldConfidence: map[string]float64{
				FieldTitle:       0.5,
				FieldIngredients: 0.9,
			},
			Method: MethodHeuristic,
		},
	}

	orch := newTestOrchestrator(primary, fallback)
	draft, err := orch.Extract(context.Background(), manualSource("text"))
	require.NoError(t, err)

	assert.Equal(t, 1, fallback.calls)
	assert.Equal(t, "Primary Title", draft.Title)
	require.Len(t, draft.Mentions, 1)
	assert.Equal(t, "flour", draft.Mentions[0].Name)
	assert.Equal(t, 0.9, draft.FieldConfidence[FieldIngredients])
	// method 記錄第一個成功的策略
	assert.Equal(t, MethodManualStructured, draft.Method)
	assert.Equal(t, 1, draft.FallbackDepth)
}

func TestExtractFullyManualWhenAllStrategiesFail(t *testing.T) {
	first := &stubStrategy{method: MethodManualStructured, err: fmt.Errorf("boom")}
	second := &stubStrategy{method: MethodHeuristic, err: fmt.Errorf("boom")}

	orch := newTestOrchestrator(first, second)
	draft, err := orch.Extract(context.Background(), manualSource("text"))
	require.NoError(t, err)

	assert.True(t, draft.FullyManual)
	assert.Equal(t, "none", draft.Method)
	assert.Empty(t, draft.Mentions)
	assert.Zero(t, draft.Confidence)
}

func TestExtractRetriesAreBounded(t *testing.T) {
	failing := &stubStrategy{method: MethodManualStructured, err: fmt.Errorf("transient")}

	orch := newTestOrchestrator(failing)
	_, err := orch.Extract(context.Background(), manualSource("text"))
	require.NoError(t, err)

	// 1 次原始呼叫 + MaxRetries 次重試
	assert.Equal(t, 3, failing.calls)
}

func TestExtractLowConfidenceSuccessIsNotRetried(t *testing.T) {
	weak := &stubStrategy{
		method: MethodHeuristic,
		result: &StrategyResult{
			Title:           "x",
			FieldConfidence: map[string]float64{FieldTitle: 0.1},
			Method:          MethodHeuristic,
		},
	}

	orch := newTestOrchestrator(weak)
	_, err := orch.Extract(context.Background(), manualSource("text"))
	require.NoError(t, err)
	assert.Equal(t, 1, weak.calls)
}

func TestExtractRespectsFallbackDepthBound(t *testing.T) {
	cfg := testConfig()
	cfg.Extract.MaxFallbackDepth = 0

	first := &stubStrategy{method: MethodManualStructured, err: fmt.Errorf("boom")}
	second := &stubStrategy{method: MethodHeuristic, err: fmt.Errorf("boom")}

	registry := NewAdapterRegistry(&stubAdapter{
		modality:   ModalityManual,
		strategies: []Strategy{first, second},
	})
	orch := NewOrchestrator(cfg, registry, nil)

	draft, err := orch.Extract(context.Background(), manualSource("text"))
	require.NoError(t, err)

	assert.True(t, draft.FullyManual)
	assert.Equal(t, 3, first.calls)
	assert.Equal(t, 0, second.calls)
}

func TestExtractUnknownModality(t *testing.T) {
	orch := newTestOrchestrator()
	_, err := orch.Extract(context.Background(), &RawSource{Modality: ModalityURL})
	assert.Error(t, err)
}

func TestLowConfidenceFields(t *testing.T) {
	orch := newTestOrchestrator()
	draft := &ExtractionDraft{
		FieldConfidence: map[string]float64{
			FieldTitle:        1.0,
			FieldIngredients:  0.4,
			FieldInstructions: 0.6,
		},
	}
	// category 缺席計 0，也要列入
	assert.Equal(t, []string{FieldIngredients, FieldCategory}, orch.LowConfidenceFields(draft))
}

func TestExtractIsRepeatable(t *testing.T) {
	build := func() *Orchestrator {
		return newTestOrchestrator(&stubStrategy{
			method: MethodManualStructured,
			result: &StrategyResult{
				Title:    "Tomato Soup",
				Mentions: []RawIngredientMention{{Index: 0, Name: "tomato"}},
				FieldConfidence: map[string]float64{
					FieldTitle:       1.0,
					FieldIngredients: 0.7,
				},
				Method: MethodManualStructured,
			},
		})
	}

	first, err := build().Extract(context.Background(), manualSource("text"))
	require.NoError(t, err)
	second, err := build().Extract(context.Background(), manualSource("text"))
	require.NoError(t, err)

	// 同一來源、同一策略鏈，抽取結果欄位完全一致
	assert.Equal(t, first.Title, second.Title)
	assert.Equal(t, first.Mentions, second.Mentions)
	assert.Equal(t, first.FieldConfidence, second.FieldConfidence)
	assert.Equal(t, first.Confidence, second.Confidence)
	assert.Equal(t, first.Method, second.Method)
	assert.Equal(t, first.FallbackDepth, second.FallbackDepth)
}
