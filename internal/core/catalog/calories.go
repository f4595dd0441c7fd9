package catalog

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"recipe-curator/internal/infrastructure/cache"
	"recipe-curator/internal/infrastructure/config"
	"recipe-curator/internal/pkg/common"
)

// CalorieService 熱量查詢協作者（OpenFoodFacts 相容 API）。
// 查無資料是正常結果；查得的值快取到條目上帶來源與時間戳，過期不自動失效。
type CalorieService struct {
	config *config.Config
	client *resty.Client
	cache  *cache.Service
	store  *Store
}

// NewCalorieService 創建熱量查詢服務
func NewCalorieService(cfg *config.Config, cacheSvc *cache.Service, store *Store) *CalorieService {
	client := resty.New().
		SetBaseURL(cfg.Calorie.BaseURL).
		SetTimeout(cfg.Calorie.Timeout)

	return &CalorieService{
		config: cfg,
		client: client,
		cache:  cacheSvc,
		store:  store,
	}
}

// Lookup 依正規名稱查每 100g 熱量。
// 回傳 (值, 來源, 是否已知)；unknown 不是錯誤。
func (s *CalorieService) Lookup(ctx context.Context, canonicalName string) (float64, string, bool) {
	if !s.config.Calorie.Enabled || canonicalName == "" {
		return 0, "", false
	}

	cacheKey := cache.Key("calories", NormalizeName(canonicalName))
	if raw, err := s.cache.Get(ctx, cacheKey); err == nil {
		if value, err := strconv.ParseFloat(raw, 64); err == nil {
			return value, "cache", true
		}
	}

	value, ok := s.fetch(ctx, canonicalName)
	if !ok {
		return 0, "", false
	}

	if err := s.cache.Set(ctx, cacheKey, strconv.FormatFloat(value, 'f', -1, 64)); err != nil {
		common.LogWarn("failed to cache calorie value", zap.Error(err))
	}
	return value, "openfoodfacts", true
}

// Refresh 查詢並把結果寫回條目的熱量快取
func (s *CalorieService) Refresh(ctx context.Context, entry *MasterIngredientEntry) *float64 {
	value, source, ok := s.Lookup(ctx, entry.CanonicalName)
	if !ok {
		return nil
	}
	if err := s.store.TouchCalories(ctx, entry.ID, value, source); err != nil {
		common.LogWarn("failed to persist calorie cache",
			zap.String("entry_id", entry.ID),
			zap.Error(err),
		)
	}
	return &value
}

func (s *CalorieService) fetch(ctx context.Context, name string) (float64, bool) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"search_terms":  name,
			"search_simple": "1",
			"action":        "process",
			"json":          "1",
			"page_size":     "1",
		}).
		Get("/cgi/search.pl")
	if err != nil {
		common.LogWarn("calorie lookup failed", zap.String("name", name), zap.Error(err))
		return 0, false
	}
	if resp.StatusCode() != http.StatusOK {
		common.LogWarn("calorie lookup returned error",
			zap.String("name", name),
			zap.Int("status", resp.StatusCode()),
		)
		return 0, false
	}

	var result struct {
		Products []struct {
			Nutriments map[string]interface{} `json:"nutriments"`
		} `json:"products"`
	}
	if err := common.ParseJSONBytes(resp.Body(), &result); err != nil {
		common.LogWarn("failed to parse calorie response", zap.Error(err))
		return 0, false
	}
	if len(result.Products) == 0 {
		return 0, false
	}

	raw, ok := result.Products[0].Nutriments["energy-kcal_100g"]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case string:
		value, err := strconv.ParseFloat(v, 64)
		return value, err == nil
	default:
		// UseNumber 模式下數值是 json.Number
		if num, ok := raw.(fmt.Stringer); ok {
			value, err := strconv.ParseFloat(num.String(), 64)
			return value, err == nil
		}
	}
	return 0, false
}
