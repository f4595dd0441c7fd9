package ingest

import (
	"context"
	"fmt"
	"strings"
)

// ManualAdapter 手動輸入轉接器。永不觸網，解析貼上的文字。
type ManualAdapter struct {
	strategies []Strategy
}

// NewManualAdapter 創建手動輸入轉接器
func NewManualAdapter() *ManualAdapter {
	return &ManualAdapter{
		strategies: []Strategy{
			&structuredTextStrategy{},
			&heuristicTextStrategy{},
		},
	}
}

// Modality 來源型態
func (a *ManualAdapter) Modality() Modality {
	return ModalityManual
}

// Strategies 策略鏈
func (a *ManualAdapter) Strategies() []Strategy {
	return a.strategies
}

// structuredTextStrategy 解析帶明確段落標題的文字（Title: / Ingredients: / Instructions:）
type structuredTextStrategy struct{}

func (s *structuredTextStrategy) Method() string {
	return MethodManualStructured
}

func (s *structuredTextStrategy) Run(_ context.Context, source *RawSource) (*StrategyResult, error) {
	text := strings.TrimSpace(source.Payload)
	if text == "" {
		return nil, fmt.Errorf("manual payload is empty")
	}

	// 沒有任何段落標題時視為失敗，交給啟發式策略
	if !ingredientHeading.MatchString(text) &&
		!strings.Contains(strings.ToLower(text), "ingredients") {
		hasHeading := false
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if ingredientHeading.MatchString(line) || instructionHeading.MatchString(line) {
				hasHeading = true
				break
			}
		}
		if !hasHeading {
			return nil, fmt.Errorf("no section headings in manual payload")
		}
	}

	return heuristicParse(text, true), nil
}

// heuristicTextStrategy 無結構文字的逐行啟發式解析
type heuristicTextStrategy struct{}

func (s *heuristicTextStrategy) Method() string {
	return MethodHeuristic
}

func (s *heuristicTextStrategy) Run(_ context.Context, source *RawSource) (*StrategyResult, error) {
	text := strings.TrimSpace(source.Payload)
	if text == "" {
		text = strings.TrimSpace(source.Hint)
	}
	if text == "" {
		return nil, fmt.Errorf("no text to parse")
	}
	return heuristicParse(text, false), nil
}
