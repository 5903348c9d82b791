// Package ocr 透過 OCR.space 從標籤圖片擷取文字。
package ocr

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"ingredient-checker/internal/core/fetch"
	"ingredient-checker/internal/pkg/common"

	"go.uber.org/zap"
)

// DefaultEndpoint OCR.space 解析端點
const DefaultEndpoint = "https://api.ocr.space/parse/image"

// Config OCR 設定
type Config struct {
	APIKey   string
	Endpoint string
	Language string
}

// Client OCR.space 客戶端
type Client struct {
	fetcher  *fetch.Fetcher
	apiKey   string
	endpoint string
	language string
}

type parseResponse struct {
	ParsedResults []struct {
		ParsedText string `json:"ParsedText"`
	} `json:"ParsedResults"`
	IsErroredOnProcessing bool        `json:"IsErroredOnProcessing"`
	ErrorMessage          interface{} `json:"ErrorMessage"`
}

// NewClient 創建 OCR 客戶端
func NewClient(cfg Config, fetcher *fetch.Fetcher) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	return &Client{
		fetcher:  fetcher,
		apiKey:   cfg.APIKey,
		endpoint: cfg.Endpoint,
		language: cfg.Language,
	}
}

// FileType 依副檔名推斷 OCR.space 的 filetype 參數
func FileType(fileName string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), ".")
	switch ext {
	case "":
		return "png"
	case "jpg":
		return "jpeg"
	default:
		return ext
	}
}

// ExtractText 上傳圖片並回傳擷取的文字；沒有可用文字時回傳 common.ErrTextExtraction
func (c *Client) ExtractText(ctx context.Context, fileName string, data []byte) (string, error) {
	common.LogInfo("OCR 開始", zap.String("file", fileName), zap.Int("bytes", len(data)))

	var resp parseResponse
	err := c.fetcher.FetchJSON(ctx, &fetch.Request{
		Method: http.MethodPost,
		URL:    c.endpoint,
		FormData: map[string]string{
			"apikey":   c.apiKey,
			"language": c.language,
			"filetype": FileType(fileName),
		},
		File: &fetch.FilePart{Param: "file", FileName: filepath.Base(fileName), Data: data},
	}, &resp)
	if err != nil {
		return "", common.Wrap(common.ErrTextExtraction, fmt.Errorf("ocr request: %w", err))
	}

	if resp.IsErroredOnProcessing {
		return "", common.Wrap(common.ErrTextExtraction, fmt.Errorf("ocr processing error: %v", resp.ErrorMessage))
	}

	var text string
	if len(resp.ParsedResults) > 0 {
		text = resp.ParsedResults[0].ParsedText
	}
	if strings.TrimSpace(text) == "" {
		return "", common.Wrap(common.ErrTextExtraction, fmt.Errorf("no text found by OCR"))
	}

	common.LogInfo("OCR 完成", zap.Int("text_length", len(text)))
	return text, nil
}
