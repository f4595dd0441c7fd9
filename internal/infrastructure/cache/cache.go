package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"recipe-curator/internal/infrastructure/config"
	"recipe-curator/internal/pkg/common"
)

// ErrMiss 快取未命中
var ErrMiss = fmt.Errorf("cache miss")

// Service Redis 快取服務。
// 停用時所有讀取都回傳未命中，寫入與發布皆為 no-op。
type Service struct {
	client *redis.Client
	config *config.CacheConfig
}

// NewService 創建快取服務
func NewService(cfg *config.CacheConfig) (*Service, error) {
	if !cfg.Enabled {
		common.LogInfo("Cache disabled")
		return &Service{config: cfg}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 測試連接
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	common.LogInfo("快取服務已初始化",
		zap.String("addr", cfg.Addr),
		zap.Duration("ttl", cfg.TTL),
	)

	return &Service{
		client: client,
		config: cfg,
	}, nil
}

// Enabled 快取是否啟用
func (s *Service) Enabled() bool {
	return s != nil && s.config != nil && s.config.Enabled && s.client != nil
}

// Key 以 SHA-256 將任意輸入組成穩定的快取鍵
func Key(namespace string, parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return namespace + ":" + hex.EncodeToString(h[:])
}

// Get 獲取快取值，未命中回傳 ErrMiss
func (s *Service) Get(ctx context.Context, key string) (string, error) {
	if !s.Enabled() {
		return "", ErrMiss
	}

	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			common.LogCacheMiss("redis", key)
			return "", ErrMiss
		}
		return "", fmt.Errorf("failed to get cache: %w", err)
	}

	common.LogCacheHit("redis", key)
	return val, nil
}

// Set 寫入快取值（帶 TTL）
func (s *Service) Set(ctx context.Context, key, value string) error {
	if !s.Enabled() {
		return nil
	}

	if err := s.client.Set(ctx, key, value, s.config.TTL).Err(); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}

// Ping 連線探測，就緒檢查使用
func (s *Service) Ping(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	return s.client.Ping(ctx).Err()
}

// Publish 發布訊息到頻道（提交事件使用）
func (s *Service) Publish(ctx context.Context, channel, payload string) error {
	if !s.Enabled() {
		return nil
	}

	if err := s.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Close 關閉連線
func (s *Service) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
