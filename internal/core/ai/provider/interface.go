package provider

import (
	"context"
	"errors"
)

// ErrRefused 供應者拒絕產生內容（安全過濾等）
var ErrRefused = errors.New("provider refused to generate content")

// ErrEmptyResponse 供應者回傳空內容
var ErrEmptyResponse = errors.New("empty response from provider")

// Request 表示發送到 AI 提供者的請求
type Request struct {
	Prompt string `json:"prompt"`
	// JSONMode 要求供應者只輸出 JSON
	JSONMode bool `json:"json_mode,omitempty"`
	// Temperature 為 nil 時使用供應者預設值
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	// Validate 檢查回應內容；未通過的回應不會寫入快取
	Validate func(content string) error `json:"-"`
}

// Deterministic 請求是否固定為 temperature 0
func (r *Request) Deterministic() bool {
	return r.Temperature != nil && *r.Temperature == 0
}

// Response 表示從 AI 提供者收到的響應
type Response struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason,omitempty"`
	CacheHit     bool   `json:"cache_hit,omitempty"`
}

// Provider 定義 AI 提供者介面
type Provider interface {
	// Generate 生成 AI 響應
	Generate(ctx context.Context, req *Request) (*Response, error)

	// GetModel 獲取當前使用的模型名稱
	GetModel() string

	// Close 關閉提供者連接
	Close() error
}

// Float64 回傳指標，方便設定 Temperature
func Float64(v float64) *float64 {
	return &v
}
