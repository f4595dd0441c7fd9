package ingest

import (
	"context"
	"fmt"
	"strings"
)

// ImageAdapter 掃描／拍照文件轉接器。
// 主策略交給影像理解供應商；後備策略只剩伴隨文字（OCR 旁註）可用。
type ImageAdapter struct {
	strategies []Strategy
}

// NewImageAdapter 創建影像來源轉接器
func NewImageAdapter(vision *VisionClient) *ImageAdapter {
	return &ImageAdapter{
		strategies: []Strategy{
			&visionImageStrategy{vision: vision},
			&hintTextStrategy{},
		},
	}
}

// Modality 來源型態
func (a *ImageAdapter) Modality() Modality {
	return ModalityImage
}

// Strategies 策略鏈
func (a *ImageAdapter) Strategies() []Strategy {
	return a.strategies
}

// visionImageStrategy 影像理解供應商抽取
type visionImageStrategy struct {
	vision *VisionClient
}

func (s *visionImageStrategy) Method() string {
	return MethodVision
}

func (s *visionImageStrategy) Run(ctx context.Context, source *RawSource) (*StrategyResult, error) {
	imageData := strings.TrimSpace(source.Payload)
	if imageData == "" {
		return nil, fmt.Errorf("image payload is empty")
	}
	return s.vision.ExtractRecipe(ctx, source.Hint, imageData)
}

// hintTextStrategy 供應商不可用時，退回解析伴隨的 OCR 文字
type hintTextStrategy struct{}

func (s *hintTextStrategy) Method() string {
	return MethodHeuristic
}

func (s *hintTextStrategy) Run(_ context.Context, source *RawSource) (*StrategyResult, error) {
	text := strings.TrimSpace(source.Hint)
	if text == "" {
		return nil, fmt.Errorf("no companion text available for image source")
	}
	return heuristicParse(text, false), nil
}
