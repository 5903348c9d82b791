// Package analysis 串接分類、評分與說明，產生並保存掃描結果。
package analysis

import (
	"context"
	"errors"
	"time"

	"ingredient-checker/internal/core/image"
	"ingredient-checker/internal/core/ingredient"
)

// InputType 輸入種類
type InputType string

const (
	InputText  InputType = "text"
	InputImage InputType = "image"
)

// ErrNotFound 找不到掃描紀錄
var ErrNotFound = errors.New("scan not found")

// Result 一次分析的結果；建立後不再修改
type Result struct {
	ID                   string               `json:"id"`
	InputType            InputType            `json:"inputType"`
	RawInput             string               `json:"rawInput"`
	ExtractedIngredients []string             `json:"extractedIngredients"`
	Flags                []string             `json:"flags"`
	RiskLevel            ingredient.RiskLevel `json:"riskLevel"`
	ExplanationHTML      string               `json:"explanationHtml"`
	Source               ingredient.Source    `json:"source"`
	CreatedAt            time.Time            `json:"createdAt"`
}

// Clone 深拷貝切片欄位
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	c := *r
	c.ExtractedIngredients = append([]string(nil), r.ExtractedIngredients...)
	c.Flags = append([]string(nil), r.Flags...)
	return &c
}

// Summary 列表使用的摘要
type Summary struct {
	ID                        string               `json:"id"`
	InputType                 InputType            `json:"inputType"`
	Flags                     []string             `json:"flags"`
	RiskLevel                 ingredient.RiskLevel `json:"riskLevel"`
	Source                    ingredient.Source    `json:"source"`
	CreatedAt                 time.Time            `json:"createdAt"`
	ExtractedIngredientsCount int                  `json:"extractedIngredientsCount"`
}

// Summarize 轉為列表摘要
func (r *Result) Summarize() Summary {
	flags := r.Flags
	if flags == nil {
		flags = []string{}
	}
	return Summary{
		ID:                        r.ID,
		InputType:                 r.InputType,
		Flags:                     flags,
		RiskLevel:                 r.RiskLevel,
		Source:                    r.Source,
		CreatedAt:                 r.CreatedAt,
		ExtractedIngredientsCount: len(r.ExtractedIngredients),
	}
}

// Repository 掃描紀錄的保存；Create 指派 ID 與 CreatedAt，並在同一步驟內執行保留上限
type Repository interface {
	Create(ctx context.Context, r *Result) (*Result, error)
	List(ctx context.Context, limit int) ([]*Result, error)
	Get(ctx context.Context, id string) (*Result, error)
	Close() error
}

// Classifier 成分分類
type Classifier interface {
	Classify(ctx context.Context, raw string) ingredient.Classification
}

// Explainer 說明產生
type Explainer interface {
	Explain(ctx context.Context, flags []string) string
}

// TextExtractor OCR
type TextExtractor interface {
	ExtractText(ctx context.Context, fileName string, data []byte) (string, error)
}

// ImageProcessor 上傳圖片驗證
type ImageProcessor interface {
	ProcessImage(u image.Upload) (image.Upload, error)
}

// Archiver 保存原始上傳圖片
type Archiver interface {
	Archive(ctx context.Context, u image.Upload) (string, error)
}
