package ingredient

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"ingredient-checker/internal/core/ai/provider"
	"ingredient-checker/internal/pkg/common"

	"github.com/yuin/goldmark"
	"go.uber.org/zap"
)

const (
	// FallbackMessage 無法產生說明時的固定文字
	FallbackMessage = "Unable to generate explanation right now."
	// FallbackHTML FallbackMessage 的 HTML
	FallbackHTML = "<p>" + FallbackMessage + "</p>\n"
)

// Explainer 產生 Markdown 說明並轉成 HTML
type Explainer struct {
	generator Generator
	markdown  goldmark.Markdown
}

// NewExplainer 創建說明產生器；generator 為 nil 時一律回傳固定訊息
func NewExplainer(generator Generator) *Explainer {
	return &Explainer{
		generator: generator,
		// 預設不輸出原始 HTML
		markdown: goldmark.New(),
	}
}

// Explain 回傳非空的 HTML，不回傳錯誤
func (e *Explainer) Explain(ctx context.Context, flags []string) string {
	if e.generator == nil {
		return FallbackHTML
	}

	resp, err := e.generator.Generate(ctx, &provider.Request{Prompt: buildExplanationPrompt(flags)})
	if err != nil {
		common.LogDegraded("explanation-fallback", err, zap.Int("flags", len(flags)))
		return FallbackHTML
	}

	text := stripCodeFence(resp.Content)
	if text == "" {
		common.LogDegraded("explanation-fallback", provider.ErrEmptyResponse)
		return FallbackHTML
	}

	html, err := e.Render(text)
	if err != nil || strings.TrimSpace(html) == "" {
		common.LogDegraded("explanation-fallback", err)
		return FallbackHTML
	}
	return html
}

// Render 將 Markdown 轉為 HTML
func (e *Explainer) Render(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := e.markdown.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

func buildExplanationPrompt(flags []string) string {
	if len(flags) == 0 {
		return "No harmful ingredients were flagged. Provide a short, friendly note (<= 60 words) about balanced eating and reading labels. Markdown only."
	}
	return fmt.Sprintf("Explain briefly for a general audience why these may be concerning: %s. Use short bullets, neutral tone, no medical claims. Markdown only. <= 120 words.",
		strings.Join(flags, ", "))
}

// stripCodeFence 移除模型有時包住整段回應的 ``` 區塊
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], " \t") {
		s = s[nl+1:]
	}
	return strings.TrimSpace(s)
}
