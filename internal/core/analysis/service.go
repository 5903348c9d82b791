package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ingredient-checker/internal/core/image"
	"ingredient-checker/internal/core/ingredient"
	"ingredient-checker/internal/pkg/common"

	"go.uber.org/zap"
)

// DefaultListLimit 列表預設筆數
const DefaultListLimit = 50

// persistTimeout 保存結果的逾時；不受請求逾時影響
const persistTimeout = 10 * time.Second

// Deps 分析服務的依賴；OCR、Images、Archiver 可為 nil
type Deps struct {
	Repository Repository
	Classifier Classifier
	Explainer  Explainer
	OCR        TextExtractor
	Images     ImageProcessor
	Archiver   Archiver
	ListLimit  int
}

// Service 分析服務
type Service struct {
	repo       Repository
	classifier Classifier
	explainer  Explainer
	ocr        TextExtractor
	images     ImageProcessor
	archiver   Archiver
	listLimit  int
}

// NewService 創建分析服務
func NewService(d Deps) *Service {
	if d.ListLimit <= 0 {
		d.ListLimit = DefaultListLimit
	}
	return &Service{
		repo:       d.Repository,
		classifier: d.Classifier,
		explainer:  d.Explainer,
		ocr:        d.OCR,
		images:     d.Images,
		archiver:   d.Archiver,
		listLimit:  d.ListLimit,
	}
}

// AnalyzeText 分析輸入的成分文字；空白輸入在任何外部呼叫前回傳 common.ErrInputRequired
func (s *Service) AnalyzeText(ctx context.Context, text string) (*Result, error) {
	raw := strings.TrimSpace(text)
	if len(ingredient.ListForDisplay(raw)) == 0 {
		return nil, common.ErrInputRequired
	}
	return s.analyze(ctx, InputText, raw, raw)
}

// AnalyzeImage 驗證圖片、以 OCR 擷取文字後分析；擷取失敗回傳 common.ErrTextExtraction
func (s *Service) AnalyzeImage(ctx context.Context, upload image.Upload) (*Result, error) {
	originalName := upload.FileName

	if s.images != nil {
		processed, err := s.images.ProcessImage(upload)
		if err != nil {
			return nil, err
		}
		upload = processed
	}

	if s.archiver != nil {
		if key, err := s.archiver.Archive(ctx, upload); err != nil {
			common.LogDegraded("archive-skipped", err, zap.String("file", originalName))
		} else {
			common.LogDebug("上傳圖片已封存", zap.String("key", key))
		}
	}

	if s.ocr == nil {
		return nil, common.Wrap(common.ErrTextExtraction, fmt.Errorf("ocr is not configured"))
	}

	text, err := s.ocr.ExtractText(ctx, upload.FileName, upload.Data)
	if err != nil {
		if !errors.Is(err, common.ErrTextExtraction) {
			err = common.Wrap(common.ErrTextExtraction, err)
		}
		return nil, err
	}
	if len(ingredient.ListForDisplay(text)) == 0 {
		return nil, common.Wrap(common.ErrTextExtraction, fmt.Errorf("extracted text contains no ingredients"))
	}

	return s.analyze(ctx, InputImage, originalName, text)
}

func (s *Service) analyze(ctx context.Context, inputType InputType, rawInput, text string) (*Result, error) {
	start := time.Now()

	cls := s.classifier.Classify(ctx, text)

	extracted := cls.ParsedIngredients
	if len(extracted) == 0 {
		extracted = ingredient.ListForDisplay(text)
	}
	flags := cls.Flags
	if flags == nil {
		flags = []string{}
	}

	result := &Result{
		InputType:            inputType,
		RawInput:             rawInput,
		ExtractedIngredients: extracted,
		Flags:                flags,
		RiskLevel:            ingredient.Score(flags),
		ExplanationHTML:      s.explainer.Explain(ctx, flags),
		Source:               cls.Source,
	}

	// 降級後的結果仍要保存，即使請求的 deadline 已經用完
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	saved, err := s.repo.Create(saveCtx, result)
	if err != nil {
		return nil, common.Wrap(common.ErrInternalError, fmt.Errorf("save scan: %w", err))
	}

	common.LogInfo("分析完成",
		zap.String("id", saved.ID),
		zap.String("input_type", string(inputType)),
		zap.String("source", string(saved.Source)),
		zap.String("risk_level", string(saved.RiskLevel)),
		zap.Int("ingredients", len(saved.ExtractedIngredients)),
		zap.Int("flags", len(saved.Flags)),
		zap.Duration("耗時", time.Since(start)),
	)

	return saved, nil
}

// List 依時間由新到舊列出紀錄
func (s *Service) List(ctx context.Context, limit int) ([]*Result, error) {
	if limit <= 0 || limit > s.listLimit {
		limit = s.listLimit
	}
	results, err := s.repo.List(ctx, limit)
	if err != nil {
		return nil, common.Wrap(common.ErrInternalError, fmt.Errorf("list scans: %w", err))
	}
	return results, nil
}

// Get 取得單筆紀錄
func (s *Service) Get(ctx context.Context, id string) (*Result, error) {
	result, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, common.Wrap(common.ErrNotFound, err)
		}
		return nil, common.Wrap(common.ErrInternalError, fmt.Errorf("get scan: %w", err))
	}
	return result, nil
}
