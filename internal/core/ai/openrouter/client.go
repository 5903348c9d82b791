package openrouter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"ingredient-checker/internal/core/ai/provider"
	"ingredient-checker/internal/core/fetch"
	"ingredient-checker/internal/pkg/common"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	// DefaultBaseURL OpenRouter 的 OpenAI 相容端點
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	// DefaultModel 預設模型
	DefaultModel = "google/gemini-flash-1.5"
)

// Client OpenAI 相容的 chat completions 客戶端（OpenRouter / OpenAI）
type Client struct {
	api       *openai.Client
	model     string
	maxTokens int
	retry     fetch.Options
}

// Config 客戶端設定
type Config struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
	Retry     fetch.Options
	// HTTPClient 為 nil 時使用帶 OpenRouter 標頭的預設 client
	HTTPClient *http.Client
}

// headerTransport 為每個請求加上 OpenRouter 建議的標頭
type headerTransport struct {
	base http.RoundTripper
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("HTTP-Referer", "https://ingredient-checker.app")
	req.Header.Set("X-Title", "Ingredient Checker")
	return t.base.RoundTrip(req)
}

// NewClient 創建新的 OpenAI 相容客戶端
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	} else {
		clientCfg.HTTPClient = &http.Client{Transport: headerTransport{base: http.DefaultTransport}}
	}

	return &Client{
		api:       openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		retry:     cfg.Retry,
	}
}

// Generate 生成回應
func (c *Client) Generate(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	chatReq := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		MaxTokens: c.maxTokens,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.JSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
		// go-openai 以 omitempty 省略 0
		if chatReq.Temperature == 0 {
			chatReq.Temperature = math.SmallestNonzeroFloat32
		}
	}

	common.LogDebug("Sending request to OpenAI-compatible provider",
		zap.String("model", c.model),
		zap.Bool("json_mode", req.JSONMode),
	)

	var resp openai.ChatCompletionResponse
	err := fetch.Retry(ctx, c.retry, "chat/completions", func(attemptCtx context.Context) error {
		var err error
		resp, err = c.api.CreateChatCompletion(attemptCtx, chatReq)
		return err
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("chat completion failed (status %d): %w", apiErr.HTTPStatusCode, err)
		}
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, provider.ErrEmptyResponse
	}

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return nil, fmt.Errorf("%w: %s", provider.ErrRefused, choice.FinishReason)
	}
	if refusal := strings.TrimSpace(choice.Message.Refusal); refusal != "" {
		return nil, fmt.Errorf("%w: %s", provider.ErrRefused, refusal)
	}

	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return nil, provider.ErrEmptyResponse
	}

	return &provider.Response{Content: text, FinishReason: string(choice.FinishReason)}, nil
}

// GetModel 獲取當前使用的模型名稱
func (c *Client) GetModel() string {
	return c.model
}

// Close 關閉客戶端
func (c *Client) Close() error {
	return nil
}
