package ingest

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"recipe-curator/internal/infrastructure/config"
	"recipe-curator/internal/pkg/common"
)

// VisionClient 影像理解供應商客戶端（OpenRouter 相容 API）。
// 對系統而言是不透明的能力提供者：回傳帶信心值的結果，或失敗。
type VisionClient struct {
	config *config.Config
	client *resty.Client
}

// NewVisionClient 創建影像理解客戶端
func NewVisionClient(cfg *config.Config) *VisionClient {
	client := resty.New().
		SetBaseURL(cfg.Vision.BaseURL).
		SetHeader("Authorization", fmt.Sprintf("Bearer %s", cfg.Vision.APIKey)).
		SetHeader("HTTP-Referer", "https://recipe-curator.local").
		SetHeader("X-Title", "Recipe Curator").
		SetTimeout(cfg.Vision.Timeout)

	return &VisionClient{
		config: cfg,
		client: client,
	}
}

const visionPrompt = `請從圖片（或附帶文字）中抽取食譜內容，並以最緊湊的 JSON 回答，不要任何說明文字。
	要求：
	1. 只抽取實際可見的內容，無法辨識的欄位留空，不要猜測
	2. ingredient_lines 保留原始的每一行食材文字（含數量與單位）
	3. instructions 為依序的步驟文字
	4. confidence 各欄位為 0 到 1 的小數，表示該欄位抽取的可靠程度
	5. 所有鍵必須使用雙引號
	請以以下 JSON 格式返回：
	{
		"title": "食譜標題",
		"ingredient_lines": ["2 cups flour"],
		"instructions": ["step one"],
		"category": "main course",
		"confidence": {
			"title": 0.9,
			"ingredients": 0.8,
			"instructions": 0.8,
			"category": 0.5
		}
	}`

// visionRecipe 供應商回傳的結構
type visionRecipe struct {
	Title           string             `json:"title"`
	IngredientLines []string           `json:"ingredient_lines"`
	Instructions    []string           `json:"instructions"`
	Category        string             `json:"category"`
	Confidence      map[string]float64 `json:"confidence"`
}

// ExtractRecipe 請供應商從圖片與（可選的）文字中抽出食譜。
// 失敗回傳 error；低信心是成功結果，由呼叫端依閾值處置。
func (v *VisionClient) ExtractRecipe(ctx context.Context, text, imageData string) (*StrategyResult, error) {
	if !v.config.Vision.Enabled {
		return nil, fmt.Errorf("vision provider is disabled")
	}

	msgContent := []map[string]interface{}{
		{
			"type": "text",
			"text": visionPrompt,
		},
	}
	if text != "" {
		msgContent = append(msgContent, map[string]interface{}{
			"type": "text",
			"text": text,
		})
	}
	if imageData != "" {
		url := imageData
		if !strings.HasPrefix(imageData, "data:image/") {
			url = fmt.Sprintf("data:image/jpeg;base64,%s", imageData)
		}
		msgContent = append(msgContent, map[string]interface{}{
			"type": "image_url",
			"image_url": map[string]string{
				"url": url,
			},
		})
	}

	// 構建請求
	req := map[string]interface{}{
		"model": v.config.Vision.Model,
		"messages": []map[string]interface{}{
			{
				"role":    "user",
				"content": msgContent,
			},
		},
		"max_tokens": v.config.Vision.MaxTokens,
	}

	// 發送請求
	resp, err := v.client.R().
		SetContext(ctx).
		SetBody(req).
		Post("/chat/completions")

	if err != nil {
		return nil, fmt.Errorf("failed to send request to vision provider: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("vision provider returned error: %s", resp.String())
	}

	// 解析回應
	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := common.ParseJSONBytes(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("failed to parse vision provider response: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("no choices in vision provider response")
	}

	raw, ok := common.ExtractJSONObject(result.Choices[0].Message.Content)
	if !ok {
		return nil, fmt.Errorf("vision provider returned no JSON object")
	}

	var recipe visionRecipe
	if err := common.ParseJSON(raw, &recipe); err != nil {
		// 模型偶爾輸出未加引號的鍵，修補後再試一次
		if repairErr := common.ParseJSON(common.QuoteJSONKeys(raw), &recipe); repairErr != nil {
			return nil, fmt.Errorf("failed to parse extracted recipe: %w", err)
		}
	}

	return v.toStrategyResult(&recipe), nil
}

// toStrategyResult 把供應商輸出轉成統一的策略結果。
// 食材行仍走本地行解析器，信心取供應商回報與本地解析結果的較小值。
func (v *VisionClient) toStrategyResult(recipe *visionRecipe) *StrategyResult {
	mentions, parsedConfidence := ParseIngredientBlock(recipe.IngredientLines)

	confidence := map[string]float64{}
	for field, score := range recipe.Confidence {
		confidence[field] = clampScore(score)
	}
	if confidence[FieldIngredients] > parsedConfidence {
		confidence[FieldIngredients] = parsedConfidence
	}
	if recipe.Title == "" {
		confidence[FieldTitle] = 0
	}
	if len(recipe.Instructions) == 0 {
		confidence[FieldInstructions] = 0
	}
	if recipe.Category == "" {
		confidence[FieldCategory] = 0
	}

	common.LogDebug("vision extraction parsed",
		zap.Int("mentions", len(mentions)),
		zap.Int("instructions", len(recipe.Instructions)),
	)

	return &StrategyResult{
		Title:           recipe.Title,
		Mentions:        mentions,
		Instructions:    recipe.Instructions,
		Category:        recipe.Category,
		FieldConfidence: confidence,
		Method:          MethodVision,
	}
}

// clampScore 信心與相似度一律落在 [0,1]
func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
