package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 應用配置
type Config struct {
	App         AppConfig       `mapstructure:"app"`
	Server      ServerConfig    `mapstructure:"server"`
	Storage     StorageConfig   `mapstructure:"storage"`
	Extract     ExtractConfig   `mapstructure:"extract"`
	Resolver    ResolverConfig  `mapstructure:"resolver"`
	Review      ReviewConfig    `mapstructure:"review"`
	Vision      VisionConfig    `mapstructure:"vision"`
	Scraper     ScraperConfig   `mapstructure:"scraper"`
	Calorie     CalorieConfig   `mapstructure:"calorie"`
	Cache       CacheConfig     `mapstructure:"cache"`
	Events      EventsConfig    `mapstructure:"events"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	Image       ImageConfig     `mapstructure:"image"`
	DedupWindow time.Duration   `mapstructure:"dedup_window"`
	LogLevel    string          `mapstructure:"log_level"`
}

// AppConfig 應用程式設定
type AppConfig struct {
	Env      string `mapstructure:"env"`
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
	Version  string `mapstructure:"version"`
	Name     string `mapstructure:"name"`
}

// ServerConfig 服務器配置
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// StorageConfig 持久層設定（SQLite）
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// ExtractConfig 抽取協調器設定
type ExtractConfig struct {
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold"` // 低於此信心值觸發後備策略
	MaxFallbackDepth    int           `mapstructure:"max_fallback_depth"`
	StrategyTimeout     time.Duration `mapstructure:"strategy_timeout"` // 單次策略呼叫超時
	MaxRetries          int           `mapstructure:"max_retries"`      // 單一策略的暫時性錯誤重試次數
	RetryBackoff        time.Duration `mapstructure:"retry_backoff"`    // 指數退避的初始間隔
}

// ResolverConfig 食材解析器設定
type ResolverConfig struct {
	AutoAcceptThreshold float64 `mapstructure:"auto_accept_threshold"` // T_high
	ReviewThreshold     float64 `mapstructure:"review_threshold"`      // T_low
	MaxCandidates       int     `mapstructure:"max_candidates"`        // 呈現給使用者的候選數
}

// ReviewConfig 審核工作流設定
type ReviewConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`            // 被放棄草稿的存活時間
	SweepInterval time.Duration `mapstructure:"sweep_interval"` // 過期草稿清掃週期
}

// VisionConfig 影像理解供應商設定（OpenRouter 相容介面）
type VisionConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ScraperConfig 網頁擷取設定
type ScraperConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// CalorieConfig 熱量查詢協作者設定
type CalorieConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CacheConfig 緩存配置（Redis）
type CacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// EventsConfig 提交事件設定
type EventsConfig struct {
	Channel string `mapstructure:"channel"` // Redis pub/sub 頻道名稱
}

// RateLimitConfig 速率限制配置
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// ImageConfig 圖片配置
type ImageConfig struct {
	MaxSizeBytes int64 `mapstructure:"max_size_bytes"`
}

// LoadConfig 載入設定
func LoadConfig() (*Config, error) {
	// 加載 .env 文件（允許不存在）
	_ = godotenv.Load()

	// 設定預設值
	setDefaults()

	// 設定環境變數前綴
	viper.SetEnvPrefix("APP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 綁定環境變量
	viper.BindEnv("vision.base_url", "VISION_BASE_URL")
	viper.BindEnv("vision.api_key", "VISION_API_KEY")
	viper.BindEnv("vision.model", "VISION_MODEL")
	viper.BindEnv("vision.max_tokens", "VISION_MAX_TOKENS")
	viper.BindEnv("storage.path", "STORAGE_PATH")
	viper.BindEnv("cache.enabled", "CACHE_ENABLED")
	viper.BindEnv("cache.addr", "REDIS_ADDR")
	viper.BindEnv("calorie.base_url", "CALORIE_BASE_URL")
	viper.BindEnv("rate_limit.enabled", "RATE_LIMIT_ENABLED")
	viper.BindEnv("rate_limit.requests", "RATE_LIMIT_REQUESTS")
	viper.BindEnv("rate_limit.window", "RATE_LIMIT_WINDOW")
	viper.BindEnv("dedup_window", "DEDUP_WINDOW")
	viper.BindEnv("log_level", "LOG_LEVEL")

	// 設定設定檔名稱和路徑
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	// 讀取設定檔
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// 添加調試日誌（logger 尚未初始化，改用 fmt.Println）
	fmt.Println("Loading configuration",
		"vision_api_key:", maskAPIKey(viper.GetString("vision.api_key")),
		"vision_model:", viper.GetString("vision.model"),
		"storage_path:", viper.GetString("storage.path"))

	// 解析設定
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 驗證必要設定
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// maskAPIKey 遮罩 API Key，只顯示前後各 4 個字符
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// setDefaults 設定預設值
func setDefaults() {
	// 應用程式設定
	viper.SetDefault("app.env", "development")
	viper.SetDefault("app.debug", true)
	viper.SetDefault("app.log_level", "info")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.name", "recipe-curator")

	// 伺服器設定
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")

	// 持久層設定
	viper.SetDefault("storage.path", "data/curator.db")

	// 抽取設定
	viper.SetDefault("extract.confidence_threshold", 0.6)
	viper.SetDefault("extract.max_fallback_depth", 2)
	viper.SetDefault("extract.strategy_timeout", "60s")
	viper.SetDefault("extract.max_retries", 2)
	viper.SetDefault("extract.retry_backoff", "500ms")

	// 解析器設定
	viper.SetDefault("resolver.auto_accept_threshold", 0.92)
	viper.SetDefault("resolver.review_threshold", 0.75)
	viper.SetDefault("resolver.max_candidates", 3)

	// 審核設定
	viper.SetDefault("review.ttl", "168h") // 7 天
	viper.SetDefault("review.sweep_interval", "1h")

	// 影像理解設定
	viper.SetDefault("vision.enabled", true)
	viper.SetDefault("vision.base_url", "https://openrouter.ai/api/v1")
	viper.SetDefault("vision.model", "qwen/qwen2.5-vl-72b-instruct:free")
	viper.SetDefault("vision.max_tokens", 2000)
	viper.SetDefault("vision.timeout", "60s")

	// 網頁擷取設定
	viper.SetDefault("scraper.timeout", "30s")
	viper.SetDefault("scraper.user_agent", "recipe-curator/1.0")

	// 熱量查詢設定
	viper.SetDefault("calorie.enabled", true)
	viper.SetDefault("calorie.base_url", "https://world.openfoodfacts.org")
	viper.SetDefault("calorie.timeout", "15s")

	// 快取設定
	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.addr", "localhost:6379")
	viper.SetDefault("cache.db", 0)
	viper.SetDefault("cache.ttl", "24h")

	// 提交事件設定
	viper.SetDefault("events.channel", "recipe.committed")

	// 限流設定
	viper.SetDefault("rate_limit.enabled", true)
	viper.SetDefault("rate_limit.requests", 100)
	viper.SetDefault("rate_limit.window", "1m")

	// 圖片設定
	viper.SetDefault("image.max_size_bytes", 10*1024*1024) // 10MB

	// 新增 dedup window 預設
	viper.SetDefault("dedup_window", "1s")
}

// validateConfig 驗證設定
func validateConfig(config *Config) error {
	// 驗證伺服器設定
	if config.Server.Port == 0 {
		return fmt.Errorf("server port is required")
	}

	if config.Storage.Path == "" {
		return fmt.Errorf("storage path is required")
	}

	// 閾值必須落在 [0,1] 且 T_low <= T_high
	if config.Extract.ConfidenceThreshold < 0 || config.Extract.ConfidenceThreshold > 1 {
		return fmt.Errorf("invalid extract confidence threshold")
	}
	if config.Resolver.AutoAcceptThreshold < 0 || config.Resolver.AutoAcceptThreshold > 1 {
		return fmt.Errorf("invalid resolver auto accept threshold")
	}
	if config.Resolver.ReviewThreshold < 0 || config.Resolver.ReviewThreshold > config.Resolver.AutoAcceptThreshold {
		return fmt.Errorf("resolver review threshold must lie in [0, auto_accept_threshold]")
	}
	if config.Resolver.MaxCandidates <= 0 {
		return fmt.Errorf("invalid resolver max candidates")
	}

	if config.Extract.MaxFallbackDepth < 0 {
		return fmt.Errorf("invalid extract max fallback depth")
	}
	if config.Extract.MaxRetries < 0 {
		return fmt.Errorf("invalid extract max retries")
	}

	// 驗證快取設定
	if config.Cache.Enabled {
		if config.Cache.Addr == "" {
			return fmt.Errorf("cache addr is required")
		}
		if config.Cache.TTL <= 0 {
			return fmt.Errorf("invalid cache ttl")
		}
	}

	if config.Review.TTL <= 0 {
		return fmt.Errorf("invalid review ttl")
	}

	return nil
}
