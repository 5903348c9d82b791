package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ingredient-checker/internal/core/ai/cache"
	"ingredient-checker/internal/core/ai/gemini"
	"ingredient-checker/internal/core/ai/openrouter"
	"ingredient-checker/internal/core/ai/provider"
	"ingredient-checker/internal/core/fetch"
	"ingredient-checker/internal/infrastructure/config"
	"ingredient-checker/internal/pkg/common"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrUnavailable 未設定生成式服務
var ErrUnavailable = errors.New("generative text service is not configured")

// Service AI 服務：選擇供應者並快取確定性的回應
type Service struct {
	provider provider.Provider
	cache    cache.Store
}

// NewService 創建 AI 服務；未設定 API Key 時回傳停用的服務
func NewService(cfg *config.Config, store cache.Store) (*Service, error) {
	if !cfg.AI.Enabled() {
		common.LogWarn("未設定 AI API Key，將使用備援分類")
		return &Service{cache: store}, nil
	}

	retry := fetch.Options{
		Retries:   cfg.AI.Retries,
		BaseDelay: cfg.Fetch.BaseDelay,
		Timeout:   cfg.AI.Timeout,
	}

	var p provider.Provider
	switch cfg.AI.Provider {
	case "gemini":
		p = gemini.NewClient(gemini.Config{
			APIKey:    cfg.AI.APIKey,
			Model:     cfg.AI.Model,
			BaseURL:   cfg.AI.BaseURL,
			MaxTokens: cfg.AI.MaxTokens,
		}, fetch.New(resty.New(), retry))
	case "openai":
		p = openrouter.NewClient(openrouter.Config{
			APIKey:    cfg.AI.APIKey,
			Model:     cfg.AI.Model,
			BaseURL:   cfg.AI.BaseURL,
			MaxTokens: cfg.AI.MaxTokens,
			Retry:     retry,
		})
	default:
		return nil, fmt.Errorf("unsupported ai provider %q", cfg.AI.Provider)
	}

	common.LogInfo("AI 服務已初始化",
		zap.String("provider", cfg.AI.Provider),
		zap.String("model", p.GetModel()),
		zap.String("api_key", config.MaskAPIKey(cfg.AI.APIKey)),
	)

	return New(p, store), nil
}

// New 以指定的供應者建立服務；p 為 nil 表示停用
func New(p provider.Provider, store cache.Store) *Service {
	return &Service{provider: p, cache: store}
}

// Enabled 是否有可用的供應者
func (s *Service) Enabled() bool {
	return s != nil && s.provider != nil
}

// GetModel 獲取當前使用的模型名稱
func (s *Service) GetModel() string {
	if !s.Enabled() {
		return ""
	}
	return s.provider.GetModel()
}

// Generate 送出請求；只有確定性且通過 Validate 的回應會被快取
func (s *Service) Generate(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	if !s.Enabled() {
		return nil, ErrUnavailable
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("prompt is required")
	}

	var key string
	if s.cache != nil && req.Deterministic() {
		key = cache.Key("ai", s.provider.GetModel(), strconv.FormatBool(req.JSONMode), req.Prompt)
		if val, err := s.cache.Get(ctx, key); err == nil {
			return &provider.Response{Content: val, CacheHit: true}, nil
		} else if !errors.Is(err, common.ErrCacheMiss) {
			common.LogWarn("讀取快取失敗", common.SafeError(err))
		}
	}

	start := time.Now()
	resp, err := s.provider.Generate(ctx, req)
	common.LogAICall(purposeOf(req), time.Since(start), err)
	if err != nil {
		return nil, err
	}

	if key != "" && req.Validate != nil {
		if verr := req.Validate(resp.Content); verr != nil {
			common.LogWarn("回應未通過驗證，不寫入快取", common.SafeError(verr))
			key = ""
		}
	}
	if key != "" {
		if err := s.cache.Set(ctx, key, resp.Content); err != nil {
			common.LogWarn("寫入快取失敗", common.SafeError(err))
		}
	}

	return resp, nil
}

// Close 關閉供應者
func (s *Service) Close() error {
	if !s.Enabled() {
		return nil
	}
	return s.provider.Close()
}

func purposeOf(req *provider.Request) string {
	if req.JSONMode {
		return "classify"
	}
	return "explain"
}
