package api

import (
	"net/http"
	"time"

	analysisHandler "ingredient-checker/internal/api/handlers/analysis"
	"ingredient-checker/internal/api/handlers/health"
	"ingredient-checker/internal/api/middleware"
	"ingredient-checker/internal/infrastructure/config"
	"ingredient-checker/internal/pkg/common"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Deps 路由需要的服務
type Deps struct {
	Analyzer  analysisHandler.Analyzer
	AIEnabled bool
	// Checks 就緒檢查要 Ping 的依賴
	Checks map[string]health.Pinger
	// CacheStats 可為 nil
	CacheStats health.StatsProvider
}

// SetupRouter 設置路由
func SetupRouter(cfg *config.Config, deps Deps) *gin.Engine {
	common.LogInfo("Starting router setup",
		zap.Bool("debug_mode", cfg.App.Debug),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Env),
	)

	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.HandleMethodNotAllowed = true

	router.Use(middleware.Recovery())
	router.Use(requestid.New())
	router.Use(middleware.Logger())
	router.Use(cors.New(corsConfig(cfg.CORS.Origins())))
	router.Use(middleware.BodySizeLimit(cfg.Server.MaxBodyBytes))

	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
		router.Use(limiter.Middleware())
	}

	healthHandler := health.NewHandler(cfg.App.Version, deps.AIEnabled, deps.Checks)
	if deps.CacheStats != nil {
		healthHandler.WithCacheStats(deps.CacheStats)
	}
	router.GET("/health", healthHandler.HealthCheck)
	router.GET("/ready", healthHandler.ReadinessCheck)
	router.GET("/live", healthHandler.LivenessCheck)

	h := analysisHandler.NewHandler(deps.Analyzer, cfg.Uploads.MaxSizeBytes, cfg.App.Debug)

	api := router.Group("/api/v1")
	api.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	{
		analyze := api.Group("/analyze")
		if cfg.DedupWindow > 0 {
			analyze.Use(middleware.NewDeduplicator(cfg.DedupWindow).Middleware())
		}
		analyze.POST("/text", h.AnalyzeText)
		analyze.POST("/image", h.AnalyzeImage)

		api.GET("/scans", h.ListScans)
		api.GET("/scans/:id", h.GetScan)
	}

	router.NoRoute(func(c *gin.Context) {
		common.RespondError(c, common.ErrNotFound, false)
	})
	router.NoMethod(func(c *gin.Context) {
		common.RespondError(c, common.ErrMethodNotAllowed, false)
	})

	common.LogInfo("Router setup completed",
		zap.Bool("rate_limit", cfg.RateLimit.Enabled),
		zap.Duration("dedup_window", cfg.DedupWindow),
		zap.Duration("request_timeout", cfg.Server.RequestTimeout),
	)

	return router
}

// corsConfig 萬用來源時不允許帶憑證
func corsConfig(origins []string) cors.Config {
	allowAll := len(origins) == 1 && origins[0] == "*"
	c := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: !allowAll,
		MaxAge:           12 * time.Hour,
	}
	if allowAll {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c
}
