package commit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"recipe-curator/internal/infrastructure/cache"
	"recipe-curator/internal/pkg/common"
)

// RecipeCommitted 食譜提交完成事件。投遞語意為 at-least-once，
// 訂閱端需要自行用 RecipeID 去重。
type RecipeCommitted struct {
	RecipeID    string    `json:"recipe_id"`
	DraftID     string    `json:"draft_id"`
	Title       string    `json:"title"`
	CommittedAt time.Time `json:"committed_at"`
}

// Sink 事件接收端
type Sink interface {
	Deliver(ctx context.Context, event RecipeCommitted) error
}

// SinkFunc 函式型接收端
type SinkFunc func(ctx context.Context, event RecipeCommitted) error

// Deliver 實現 Sink 介面
func (f SinkFunc) Deliver(ctx context.Context, event RecipeCommitted) error {
	return f(ctx, event)
}

// Dispatcher 提交事件分發器。同時投遞給行程內的訂閱者與
// Redis 頻道（若快取服務啟用）。
type Dispatcher struct {
	mu      sync.RWMutex
	sinks   []Sink
	cache   *cache.Service
	channel string
}

// NewDispatcher 創建事件分發器
func NewDispatcher(cacheService *cache.Service, channel string) *Dispatcher {
	return &Dispatcher{
		cache:   cacheService,
		channel: channel,
	}
}

// Subscribe 註冊行程內訂閱者
func (d *Dispatcher) Subscribe(sink Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, sink)
}

// Dispatch 投遞事件。單一接收端失敗只記錄日誌並重試一次，
// 不會阻止其他接收端收到事件。
func (d *Dispatcher) Dispatch(ctx context.Context, event RecipeCommitted) {
	d.mu.RLock()
	sinks := make([]Sink, len(d.sinks))
	copy(sinks, d.sinks)
	d.mu.RUnlock()

	for _, sink := range sinks {
		if err := sink.Deliver(ctx, event); err != nil {
			common.LogWarn("事件投遞失敗，重試一次",
				zap.String("recipe_id", event.RecipeID),
				zap.Error(err))
			if err := sink.Deliver(ctx, event); err != nil {
				common.LogError("事件投遞重試仍失敗",
					zap.String("recipe_id", event.RecipeID),
					zap.Error(err))
			}
		}
	}

	if d.cache != nil && d.cache.Enabled() && d.channel != "" {
		payload, err := common.ToJSON(event)
		if err != nil {
			common.LogError("事件序列化失敗",
				zap.String("recipe_id", event.RecipeID),
				zap.Error(err))
			return
		}
		if err := d.cache.Publish(ctx, d.channel, payload); err != nil {
			common.LogError("事件發布到頻道失敗",
				zap.String("channel", d.channel),
				zap.String("recipe_id", event.RecipeID),
				zap.Error(err))
		}
	}
}
