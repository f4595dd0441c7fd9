package ingest

import (
	"time"
)

// Modality 來源型態
type Modality string

const (
	ModalityManual Modality = "manual"
	ModalityImage  Modality = "image"
	ModalityURL    Modality = "url"
)

// 抽取信心評分的欄位鍵
const (
	FieldTitle        = "title"
	FieldIngredients  = "ingredients"
	FieldInstructions = "instructions"
	FieldCategory     = "category"
)

// confidenceFields 參與整體信心計算的欄位，順序固定以保證結果可重現
var confidenceFields = []string{FieldTitle, FieldIngredients, FieldInstructions, FieldCategory}

// RawSource 一次使用者動作產生的原始來源，建立後不可變
type RawSource struct {
	ID        string    `json:"id"`
	Modality  Modality  `json:"modality"`
	Payload   string    `json:"payload"`        // manual: 貼上文字；image: base64 data URI；url: 網址
	Hint      string    `json:"hint,omitempty"` // 可選的伴隨文字（OCR 旁註、使用者補充）
	CreatedAt time.Time `json:"created_at"`
}

// RawIngredientMention 從單一來源行抽出的一筆食材提及
type RawIngredientMention struct {
	Index    int      `json:"index"`
	Name     string   `json:"name"`
	Quantity *float64 `json:"quantity,omitempty"`
	Unit     string   `json:"unit,omitempty"`
	Note     string   `json:"note,omitempty"`
	RawLine  string   `json:"raw_line"`
}

// ExtractionDraft 協調器的輸出：尚未綁定目錄的結構化草稿
type ExtractionDraft struct {
	DraftID         string                 `json:"draft_id"`
	SourceID        string                 `json:"source_id"`
	SourceModality  Modality               `json:"source_modality"`
	SourceRef       string                 `json:"source_ref,omitempty"` // 來源出處（URL 等）
	Title           string                 `json:"title"`
	Mentions        []RawIngredientMention `json:"mentions"`
	Instructions    []string               `json:"instructions"`
	Category        string                 `json:"category,omitempty"`
	FieldConfidence map[string]float64     `json:"field_confidence"`
	Confidence      float64                `json:"confidence"`
	Method          string                 `json:"method"`
	FallbackDepth   int                    `json:"fallback_depth"`
	FullyManual     bool                   `json:"fully_manual"`
	CreatedAt       time.Time              `json:"created_at"`
}

// StrategyResult 單一抽取策略的輸出。
// 抽取失敗以 error 表示；低信心是帶低分的成功結果，兩者不可混淆。
type StrategyResult struct {
	Title           string
	Mentions        []RawIngredientMention
	Instructions    []string
	Category        string
	FieldConfidence map[string]float64
	Method          string
}

// OverallConfidence 整體信心：各欄位信心的平均（缺欄位計 0）
func (r *StrategyResult) OverallConfidence() float64 {
	if r == nil || len(r.FieldConfidence) == 0 {
		return 0
	}
	var sum float64
	for _, field := range confidenceFields {
		sum += r.FieldConfidence[field]
	}
	return sum / float64(len(confidenceFields))
}
