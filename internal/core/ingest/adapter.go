package ingest

import (
	"context"
	"fmt"
)

// 抽取方法名稱
const (
	MethodManualStructured = "manual-structured"
	MethodHeuristic        = "heuristic-lines"
	MethodVision           = "vision-ai"
	MethodJSONLD           = "jsonld"
	MethodReadability      = "readability"
)

// Strategy 單一抽取策略。鏈上的策略可互換，協調器對它們一視同仁。
type Strategy interface {
	Method() string
	Run(ctx context.Context, source *RawSource) (*StrategyResult, error)
}

// SourceAdapter 每種來源型態一個，持有依優先序排列的策略鏈
type SourceAdapter interface {
	Modality() Modality
	Strategies() []Strategy
}

// AdapterRegistry 依來源型態查找轉接器
type AdapterRegistry struct {
	adapters map[Modality]SourceAdapter
}

// NewAdapterRegistry 創建轉接器註冊表
func NewAdapterRegistry(adapters ...SourceAdapter) *AdapterRegistry {
	registry := &AdapterRegistry{adapters: make(map[Modality]SourceAdapter, len(adapters))}
	for _, adapter := range adapters {
		registry.adapters[adapter.Modality()] = adapter
	}
	return registry
}

// Lookup 取得來源型態對應的轉接器
func (r *AdapterRegistry) Lookup(modality Modality) (SourceAdapter, error) {
	adapter, ok := r.adapters[modality]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for modality %q", modality)
	}
	return adapter, nil
}
