package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"recipe-curator/internal/api"
	"recipe-curator/internal/core/review"
	"recipe-curator/internal/infrastructure/cache"
	"recipe-curator/internal/infrastructure/config"
	"recipe-curator/internal/infrastructure/storage"
	"recipe-curator/internal/pkg/common"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// 載入 .env
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found")
	}

	// 載入設定
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化 logger（需在載入 config 後）
	if err := common.InitLogger(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer common.Sync()

	common.LogInfo("載入設定",
		zap.String("storage_path", cfg.Storage.Path),
		zap.Bool("vision_enabled", cfg.Vision.Enabled),
		zap.Bool("cache_enabled", cfg.Cache.Enabled),
	)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// 開啟持久層
	db, err := storage.Open(rootCtx, cfg.Storage.Path)
	if err != nil {
		common.LogFatal("Failed to open storage", zap.Error(err))
	}
	defer db.Close()

	// 初始化快取
	cacheService, err := cache.NewService(&cfg.Cache)
	if err != nil {
		common.LogFatal("Failed to initialize cache service", zap.Error(err))
	}
	defer cacheService.Close()

	// 背景清掃被放棄的審核草稿
	reviewStore := review.NewStore(db)
	reviewStore.StartSweeper(rootCtx, cfg.Review.SweepInterval, cfg.Review.TTL)

	// 設置路由
	router, err := api.SetupRouter(cfg, db, cacheService)
	if err != nil {
		common.LogError("Failed to setup router", zap.Error(err))
		os.Exit(1)
	}

	// 設置 HTTP 服務器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// 啟動服務器
	go func() {
		common.LogInfo("啟動應用",
			zap.String("version", cfg.App.Version),
			zap.String("env", cfg.App.Env),
			zap.Bool("debug", cfg.App.Debug),
		)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			common.LogError("Failed to start server",
				zap.Error(err),
			)
			os.Exit(1)
		}
	}()

	// 等待中斷信號
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	common.LogInfo("Shutting down server...")
	rootCancel()

	// 設置關閉超時
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		common.LogError("Server forced to shutdown",
			zap.Error(err),
		)
		os.Exit(1)
	}

	common.LogInfo("Server exited")
}
