package api

import (
	"context"
	"net/http"
	"time"

	"recipe-curator/internal/api/handlers/curation"
	"recipe-curator/internal/api/handlers/health"
	"recipe-curator/internal/api/middleware"
	"recipe-curator/internal/core/catalog"
	"recipe-curator/internal/core/commit"
	"recipe-curator/internal/core/image"
	"recipe-curator/internal/core/ingest"
	"recipe-curator/internal/core/review"
	"recipe-curator/internal/infrastructure/cache"
	"recipe-curator/internal/infrastructure/config"
	"recipe-curator/internal/infrastructure/storage"
	"recipe-curator/internal/pkg/common"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 超時設置
const timeoutDuration = 120 * time.Second

// SetupRouter 設置路由
func SetupRouter(cfg *config.Config, db *storage.DB, cacheService *cache.Service) (*gin.Engine, error) {
	common.LogInfo("Starting router setup",
		zap.Bool("debug_mode", cfg.App.Debug),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Env),
	)

	// 設置 gin 模式
	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// 創建路由引擎
	router := gin.New()

	// 註冊基礎中間件
	router.Use(requestid.New()) // 自動生成請求 ID，日誌靠它串起來
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	// CORS 設置
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// 請求體大小限制（圖片匯入是最大的請求）
	router.Use(middleware.BodySizeLimit(cfg.Image.MaxSizeBytes))

	common.LogInfo("Initializing services",
		zap.Bool("cache_enabled", cfg.Cache.Enabled),
		zap.Bool("vision_enabled", cfg.Vision.Enabled),
		zap.String("storage_path", cfg.Storage.Path),
		zap.Duration("timeout", timeoutDuration),
	)

	// 初始化抽取管線
	var vision *ingest.VisionClient
	if cfg.Vision.Enabled {
		vision = ingest.NewVisionClient(cfg)
	}
	registry := ingest.NewAdapterRegistry(
		ingest.NewManualAdapter(),
		ingest.NewImageAdapter(vision),
		ingest.NewWebAdapter(cfg, vision),
	)
	orchestrator := ingest.NewOrchestrator(cfg, registry, cacheService)

	// 初始化目錄與解析
	entryStore := catalog.NewStore(db)
	resolver := catalog.NewResolver(&cfg.Resolver)
	var calorieService *catalog.CalorieService
	if cfg.Calorie.Enabled {
		calorieService = catalog.NewCalorieService(cfg, cacheService, entryStore)
	}

	// 初始化審核與提交
	reviewStore := review.NewStore(db)
	recipeStore := commit.NewRecipeStore(db)
	dispatcher := commit.NewDispatcher(cacheService, cfg.Events.Channel)
	commitService := commit.NewService(db, reviewStore, recipeStore, entryStore, calorieService, dispatcher)

	normalizer := image.NewNormalizer(cfg.Image.MaxSizeBytes)
	handler := curation.NewHandler(orchestrator, resolver, entryStore, reviewStore, commitService, recipeStore, normalizer)
	checker := health.NewChecker(cfg, db, cacheService)

	// 全局中間件：請求超時
	router.Use(func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeoutDuration)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if ctx.Err() == context.DeadlineExceeded {
			common.LogError("Request timeout",
				zap.String("path", c.Request.URL.Path),
				zap.String("request_id", c.GetHeader("X-Request-ID")),
				zap.Duration("timeout", timeoutDuration),
			)
			c.JSON(http.StatusGatewayTimeout, gin.H{
				"error": "Request timeout",
				"code":  "REQUEST_TIMEOUT",
				"details": gin.H{
					"timeout": timeoutDuration.String(),
				},
			})
			c.Abort()
		}
	})

	// 健康檢查路由
	router.GET("/health", checker.HealthCheck)
	router.GET("/ready", checker.ReadinessCheck)
	router.GET("/live", checker.LivenessCheck)

	// API 路由組
	api := router.Group("/api/v1")
	{
		// 匯入路由：抽取成本高，加上限流與去重
		importGroup := api.Group("/import")
		if cfg.RateLimit.Enabled {
			importGroup.Use(middleware.RateLimit(cfg.RateLimit.Requests, cfg.RateLimit.Window))
		}
		importGroup.Use(middleware.Deduplication(cfg))
		{
			importGroup.POST("/manual", handler.HandleManualImport)
			importGroup.POST("/image", handler.HandleImageImport)
			importGroup.POST("/url", handler.HandleURLImport)
		}

		// 審核路由
		reviewGroup := api.Group("/review")
		{
			reviewGroup.GET("/:id", handler.HandleGetReview)
			reviewGroup.POST("/:id/edit", handler.HandleEdit)
			reviewGroup.POST("/:id/resolve", handler.HandleResolve)
			reviewGroup.POST("/:id/confirm", handler.HandleConfirm)
			reviewGroup.POST("/:id/discard", handler.HandleDiscard)
			reviewGroup.POST("/:id/commit", handler.HandleCommit)
		}

		// 查詢與修訂路由
		api.GET("/recipe/:id", handler.HandleGetRecipe)
		api.POST("/recipe/:id/revise", handler.HandleReviseRecipe)
		api.GET("/ingredient/:key", handler.HandleGetIngredient)
	}

	common.LogInfo("Router setup completed successfully",
		zap.Bool("debug_mode", cfg.App.Debug),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Env),
		zap.Bool("cache_enabled", cacheService.Enabled()),
		zap.Bool("vision_enabled", vision != nil),
		zap.Int64("max_body_size", cfg.Image.MaxSizeBytes),
	)

	return router, nil
}
