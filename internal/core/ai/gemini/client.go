package gemini

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ingredient-checker/internal/core/ai/provider"
	"ingredient-checker/internal/core/fetch"
	"ingredient-checker/internal/pkg/common"

	"go.uber.org/zap"
)

const (
	// DefaultBaseURL Gemini API 位址
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	// DefaultModel 預設模型
	DefaultModel = "gemini-1.5-flash"
)

// Client Gemini generateContent 客戶端
type Client struct {
	fetcher   *fetch.Fetcher
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
}

// Config 客戶端設定
type Config struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseMimeType string   `json:"responseMimeType,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxOutputTokens  int      `json:"maxOutputTokens,omitempty"`
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

// NewClient 創建 Gemini 客戶端
func NewClient(cfg Config, fetcher *fetch.Fetcher) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Client{
		fetcher:   fetcher,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
}

// Generate 生成回應
func (c *Client) Generate(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	body := generateRequest{
		Contents: []content{{Parts: []part{{Text: req.Prompt}}}},
	}

	gen := &generationConfig{Temperature: req.Temperature}
	if req.JSONMode {
		gen.ResponseMimeType = "application/json"
	}
	if req.MaxTokens > 0 {
		gen.MaxOutputTokens = req.MaxTokens
	} else if c.maxTokens > 0 {
		gen.MaxOutputTokens = c.maxTokens
	}
	body.GenerationConfig = gen

	common.LogDebug("Sending request to Gemini",
		zap.String("model", c.model),
		zap.Bool("json_mode", req.JSONMode),
		zap.Int("prompt_length", len(req.Prompt)),
	)

	start := time.Now()
	var resp generateResponse
	err := c.fetcher.FetchJSON(ctx, &fetch.Request{
		Method:  http.MethodPost,
		URL:     fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model),
		Headers: map[string]string{"x-goog-api-key": c.apiKey},
		Body:    body,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("gemini generateContent: %w", err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("%w: %s", provider.ErrRefused, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return nil, provider.ErrEmptyResponse
	}

	candidate := resp.Candidates[0]
	var sb strings.Builder
	for _, p := range candidate.Content.Parts {
		sb.WriteString(p.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		if candidate.FinishReason == "SAFETY" || candidate.FinishReason == "RECITATION" {
			return nil, fmt.Errorf("%w: %s", provider.ErrRefused, candidate.FinishReason)
		}
		return nil, provider.ErrEmptyResponse
	}

	common.LogDebug("Gemini response received",
		zap.String("model", c.model),
		zap.String("finish_reason", candidate.FinishReason),
		zap.Int("content_length", len(text)),
		zap.Duration("耗時", time.Since(start)),
	)

	return &provider.Response{Content: text, FinishReason: candidate.FinishReason}, nil
}

// GetModel 獲取當前使用的模型名稱
func (c *Client) GetModel() string {
	return c.model
}

// Close 關閉客戶端
func (c *Client) Close() error {
	return nil
}
