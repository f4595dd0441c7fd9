package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	neturl "net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/go-resty/resty/v2"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"recipe-curator/internal/infrastructure/config"
)

// WebAdapter 網頁來源轉接器。
// 主策略讀 schema.org/Recipe JSON-LD；後備依序為
// readability 正文抽取與影像理解供應商的純文字抽取。
type WebAdapter struct {
	strategies []Strategy
}

// NewWebAdapter 創建網頁來源轉接器
func NewWebAdapter(cfg *config.Config, vision *VisionClient) *WebAdapter {
	fetcher := newPageFetcher(cfg)
	return &WebAdapter{
		strategies: []Strategy{
			&jsonldStrategy{fetcher: fetcher},
			&readabilityStrategy{fetcher: fetcher},
			&visionTextStrategy{fetcher: fetcher, vision: vision},
		},
	}
}

// Modality 來源型態
func (a *WebAdapter) Modality() Modality {
	return ModalityURL
}

// Strategies 策略鏈
func (a *WebAdapter) Strategies() []Strategy {
	return a.strategies
}

// pageFetcher 共用的頁面抓取器
type pageFetcher struct {
	client *resty.Client
}

func newPageFetcher(cfg *config.Config) *pageFetcher {
	client := resty.New().
		SetHeader("User-Agent", cfg.Scraper.UserAgent).
		SetTimeout(cfg.Scraper.Timeout)
	return &pageFetcher{client: client}
}

func (f *pageFetcher) fetch(ctx context.Context, rawURL string) (string, error) {
	if _, err := neturl.ParseRequestURI(rawURL); err != nil {
		return "", fmt.Errorf("invalid source url: %w", err)
	}

	resp, err := f.client.R().SetContext(ctx).Get(rawURL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch page: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("page returned status %d", resp.StatusCode())
	}
	return resp.String(), nil
}

// jsonldStrategy 讀取頁面內嵌的 schema.org/Recipe 結構化資料
type jsonldStrategy struct {
	fetcher *pageFetcher
}

func (s *jsonldStrategy) Method() string {
	return MethodJSONLD
}

func (s *jsonldStrategy) Run(ctx context.Context, source *RawSource) (*StrategyResult, error) {
	page, err := s.fetcher.fetch(ctx, source.Payload)
	if err != nil {
		return nil, err
	}

	recipe, err := findRecipeJSONLD(page)
	if err != nil {
		return nil, err
	}

	mentions, ingredientConfidence := ParseIngredientBlock(recipe.ingredients)

	confidence := map[string]float64{
		FieldIngredients: ingredientConfidence,
	}
	if recipe.name != "" {
		confidence[FieldTitle] = 0.95
	}
	if len(recipe.instructions) > 0 {
		confidence[FieldInstructions] = 0.9
	}
	if recipe.category != "" {
		confidence[FieldCategory] = 0.7
	}

	return &StrategyResult{
		Title:           recipe.name,
		Mentions:        mentions,
		Instructions:    recipe.instructions,
		Category:        recipe.category,
		FieldConfidence: confidence,
		Method:          MethodJSONLD,
	}, nil
}

// jsonldRecipe 從 JSON-LD 抽出的欄位
type jsonldRecipe struct {
	name         string
	ingredients  []string
	instructions []string
	category     string
}

// findRecipeJSONLD 掃描頁面中的 <script type="application/ld+json"> 找 Recipe 節點
func findRecipeJSONLD(page string) (*jsonldRecipe, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page html: %w", err)
	}

	var scripts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "script" {
			for _, attr := range n.Attr {
				if attr.Key == "type" && strings.EqualFold(attr.Val, "application/ld+json") {
					if n.FirstChild != nil {
						scripts = append(scripts, n.FirstChild.Data)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	for _, script := range scripts {
		var payload interface{}
		if err := json.Unmarshal([]byte(script), &payload); err != nil {
			continue
		}
		if recipe := locateRecipeNode(payload); recipe != nil {
			return recipe, nil
		}
	}
	return nil, fmt.Errorf("no schema.org Recipe found in page")
}

// locateRecipeNode 在 JSON-LD 樹中尋找 @type=Recipe（含 @graph 與陣列）
func locateRecipeNode(node interface{}) *jsonldRecipe {
	switch value := node.(type) {
	case []interface{}:
		for _, item := range value {
			if recipe := locateRecipeNode(item); recipe != nil {
				return recipe
			}
		}
	case map[string]interface{}:
		if isRecipeType(value["@type"]) {
			return decodeRecipeNode(value)
		}
		if graph, ok := value["@graph"]; ok {
			return locateRecipeNode(graph)
		}
	}
	return nil
}

func isRecipeType(value interface{}) bool {
	switch typed := value.(type) {
	case string:
		return strings.EqualFold(typed, "Recipe")
	case []interface{}:
		for _, item := range typed {
			if s, ok := item.(string); ok && strings.EqualFold(s, "Recipe") {
				return true
			}
		}
	}
	return false
}

func decodeRecipeNode(node map[string]interface{}) *jsonldRecipe {
	recipe := &jsonldRecipe{}
	if name, ok := node["name"].(string); ok {
		recipe.name = strings.TrimSpace(name)
	}
	recipe.ingredients = stringList(node["recipeIngredient"])
	if len(recipe.ingredients) == 0 {
		recipe.ingredients = stringList(node["ingredients"]) // 舊版 schema 鍵
	}
	recipe.instructions = flattenInstructions(node["recipeInstructions"])
	recipe.category = firstString(node["recipeCategory"])
	return recipe
}

func stringList(value interface{}) []string {
	var out []string
	switch typed := value.(type) {
	case string:
		if s := strings.TrimSpace(typed); s != "" {
			out = append(out, s)
		}
	case []interface{}:
		for _, item := range typed {
			if s, ok := item.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

func firstString(value interface{}) string {
	list := stringList(value)
	if len(list) == 0 {
		return ""
	}
	return list[0]
}

// flattenInstructions 展平 recipeInstructions：
// 純字串、HowToStep{text}、HowToSection{itemListElement} 都要吃
func flattenInstructions(value interface{}) []string {
	var out []string
	switch typed := value.(type) {
	case string:
		for _, line := range strings.Split(typed, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				out = append(out, line)
			}
		}
	case []interface{}:
		for _, item := range typed {
			out = append(out, flattenInstructions(item)...)
		}
	case map[string]interface{}:
		if text, ok := typed["text"].(string); ok {
			if text = strings.TrimSpace(text); text != "" {
				out = append(out, text)
			}
		} else if elements, ok := typed["itemListElement"]; ok {
			out = append(out, flattenInstructions(elements)...)
		}
	}
	return out
}

// readabilityStrategy 正文抽取後走啟發式解析
type readabilityStrategy struct {
	fetcher *pageFetcher
}

func (s *readabilityStrategy) Method() string {
	return MethodReadability
}

func (s *readabilityStrategy) Run(ctx context.Context, source *RawSource) (*StrategyResult, error) {
	page, err := s.fetcher.fetch(ctx, source.Payload)
	if err != nil {
		return nil, err
	}

	parsedURL, err := neturl.Parse(source.Payload)
	if err != nil {
		return nil, fmt.Errorf("invalid source url: %w", err)
	}

	article, err := readability.FromReader(strings.NewReader(page), parsedURL)
	if err != nil {
		return nil, fmt.Errorf("readability extraction failed: %w", err)
	}

	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(article.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to convert article to markdown: %w", err)
	}

	result := heuristicParse(markdown, false)
	result.Method = MethodReadability
	if article.Title != "" {
		result.Title = article.Title
		result.FieldConfidence[FieldTitle] = 0.8
	}
	return result, nil
}

// visionTextStrategy 把頁面文字丟給影像理解供應商當最後防線
type visionTextStrategy struct {
	fetcher *pageFetcher
	vision  *VisionClient
}

func (s *visionTextStrategy) Method() string {
	return MethodVision
}

func (s *visionTextStrategy) Run(ctx context.Context, source *RawSource) (*StrategyResult, error) {
	page, err := s.fetcher.fetch(ctx, source.Payload)
	if err != nil {
		return nil, err
	}

	text := extractVisibleText(page)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("page has no visible text")
	}
	return s.vision.ExtractRecipe(ctx, text, "")
}

// extractVisibleText 去掉 script/style 後收集文字節點
func extractVisibleText(page string) string {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return ""
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "noscript") {
			return
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				sb.WriteString(text)
				sb.WriteString("\n")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return sb.String()
}
