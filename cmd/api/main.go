package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ingredient-checker/internal/api"
	"ingredient-checker/internal/api/handlers/health"
	"ingredient-checker/internal/core/ai/cache"
	"ingredient-checker/internal/core/ai/service"
	"ingredient-checker/internal/core/analysis"
	"ingredient-checker/internal/core/fetch"
	"ingredient-checker/internal/core/image"
	"ingredient-checker/internal/core/ingredient"
	"ingredient-checker/internal/core/ocr"
	"ingredient-checker/internal/infrastructure/config"
	"ingredient-checker/internal/infrastructure/objectstore"
	"ingredient-checker/internal/infrastructure/storage"
	"ingredient-checker/internal/pkg/common"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

func main() {
	// 載入設定（含 .env）
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化 logger（需在載入 config 後）
	if err := common.InitLogger(cfg.LogLevel, cfg.App.Name); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer common.Sync()

	common.LogInfo("載入設定",
		zap.String("ai_provider", cfg.AI.Provider),
		zap.String("ai_model", cfg.AI.Model),
		zap.String("ai_api_key", config.MaskAPIKey(cfg.AI.APIKey)),
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.String("cache_backend", cfg.Cache.Backend),
	)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	app, err := build(startCtx, cfg)
	cancelStart()
	if err != nil {
		common.LogFatal("Failed to initialize application", common.SafeError(err))
	}
	defer app.close()

	router := api.SetupRouter(cfg, app.deps)

	// 設置 HTTP 服務器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		common.LogInfo("啟動應用",
			zap.String("version", cfg.App.Version),
			zap.String("env", cfg.App.Env),
			zap.Bool("debug", cfg.App.Debug),
			zap.Int("port", cfg.Server.Port),
		)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			common.LogFatal("Failed to start server", zap.Error(err))
		}
	}()

	// 等待中斷信號
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	common.LogInfo("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		common.LogError("Server forced to shutdown", zap.Error(err))
	}

	common.LogInfo("Server exited")
}

// application 啟動時建立的服務與需要關閉的資源
type application struct {
	deps    api.Deps
	closers []func() error
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			common.LogWarn("關閉資源失敗", common.SafeError(err))
		}
	}
}

// build 依設定組裝分析管線
func build(ctx context.Context, cfg *config.Config) (*application, error) {
	app := &application{}
	checks := map[string]health.Pinger{}
	var stats health.StatsProvider

	store, err := cache.New(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}
	if store != nil {
		app.closers = append(app.closers, store.Close)
		if p, ok := store.(health.Pinger); ok {
			checks["cache"] = p
		}
		if sp, ok := store.(health.StatsProvider); ok {
			stats = sp
		}
	}

	aiService, err := service.NewService(cfg, store)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("init ai service: %w", err)
	}
	app.closers = append(app.closers, aiService.Close)

	var prober ingredient.PhraseProber
	if cfg.OpenFoodFacts.Enabled {
		offFetcher := fetch.New(resty.New(), fetch.Options{
			Retries:   cfg.OpenFoodFacts.Retries,
			BaseDelay: cfg.Fetch.BaseDelay,
			Timeout:   cfg.OpenFoodFacts.Timeout,
		})
		prober = ingredient.NewProber(offFetcher, ingredient.ProberConfig{
			BaseURL:        cfg.OpenFoodFacts.BaseURL,
			UserAgent:      cfg.OpenFoodFacts.UserAgent,
			MaxConcurrency: cfg.OpenFoodFacts.MaxConcurrency,
		}, store)
	}

	var generator ingredient.Generator
	if aiService.Enabled() {
		generator = aiService
	}

	var extractor analysis.TextExtractor
	if cfg.OCR.APIKey != "" {
		ocrFetcher := fetch.New(resty.New(), fetch.Options{
			Retries:   cfg.OCR.Retries,
			BaseDelay: cfg.Fetch.BaseDelay,
			Timeout:   cfg.OCR.Timeout,
		})
		extractor = ocr.NewClient(ocr.Config{
			APIKey:   cfg.OCR.APIKey,
			Endpoint: cfg.OCR.Endpoint,
			Language: cfg.OCR.Language,
		}, ocrFetcher)
	} else {
		common.LogWarn("未設定 OCR API Key，圖片分析將回傳擷取失敗")
	}

	var archiver analysis.Archiver
	if cfg.Archive.Enabled {
		objects, err := objectstore.New(ctx, cfg.Archive)
		if err != nil {
			// 封存失敗不影響分析
			common.LogDegraded("archive-disabled", err, zap.String("endpoint", cfg.Archive.Endpoint))
		} else {
			archiver = objects
		}
	}

	repo, err := storage.New(ctx, cfg.Storage, cfg.Cache.Redis)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	app.closers = append(app.closers, repo.Close)
	if p, ok := repo.(health.Pinger); ok {
		checks["storage"] = p
	}

	analyzer := analysis.NewService(analysis.Deps{
		Repository: repo,
		Classifier: ingredient.NewClassifier(generator, prober),
		Explainer:  ingredient.NewExplainer(generator),
		OCR:        extractor,
		Images:     image.NewService(cfg.Uploads.MaxSizeBytes),
		Archiver:   archiver,
		ListLimit:  cfg.Storage.HistoryLimit,
	})

	app.deps = api.Deps{
		Analyzer:   analyzer,
		AIEnabled:  aiService.Enabled(),
		Checks:     checks,
		CacheStats: stats,
	}
	return app, nil
}
