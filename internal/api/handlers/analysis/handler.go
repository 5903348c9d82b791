package analysis

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	analysisService "ingredient-checker/internal/core/analysis"
	"ingredient-checker/internal/core/image"
	"ingredient-checker/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Analyzer 處理器依賴的分析服務
type Analyzer interface {
	AnalyzeText(ctx context.Context, text string) (*analysisService.Result, error)
	AnalyzeImage(ctx context.Context, upload image.Upload) (*analysisService.Result, error)
	List(ctx context.Context, limit int) ([]*analysisService.Result, error)
	Get(ctx context.Context, id string) (*analysisService.Result, error)
}

// Handler 成分分析處理器
type Handler struct {
	svc           Analyzer
	maxUploadSize int64
	debug         bool
}

// NewHandler 創建成分分析處理器
func NewHandler(svc Analyzer, maxUploadSize int64, debug bool) *Handler {
	return &Handler{svc: svc, maxUploadSize: maxUploadSize, debug: debug}
}

// TextRequest 文字分析請求
type TextRequest struct {
	IngredientsText string `json:"ingredientsText"`
}

// ImageRequest 以 data URL 上傳圖片
type ImageRequest struct {
	Image    string `json:"image"`
	FileName string `json:"fileName"`
}

// ListResponse 歷史紀錄列表
type ListResponse struct {
	Items []analysisService.Summary `json:"items"`
	Count int                       `json:"count"`
}

// AnalyzeText POST /api/v1/analyze/text
func (h *Handler) AnalyzeText(c *gin.Context) {
	var req TextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, common.Wrap(common.ErrInvalidRequest, err))
		return
	}
	if strings.TrimSpace(req.IngredientsText) == "" {
		h.fail(c, common.ErrInputRequired)
		return
	}

	result, err := h.svc.AnalyzeText(c.Request.Context(), req.IngredientsText)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// AnalyzeImage POST /api/v1/analyze/image
// 接受 multipart 欄位 image，或 JSON {image: data URL}
func (h *Handler) AnalyzeImage(c *gin.Context) {
	var (
		upload image.Upload
		err    error
	)
	if strings.HasPrefix(c.ContentType(), "application/json") {
		upload, err = h.readDataURL(c)
	} else {
		upload, err = h.readMultipart(c)
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	if !image.AllowedContentType(upload.ContentType) {
		h.fail(c, common.ErrInvalidUpload)
		return
	}

	common.LogDebug("收到圖片上傳",
		zap.String("file_name", upload.FileName),
		zap.String("content_type", upload.ContentType),
		zap.Int("size", len(upload.Data)),
	)

	result, err := h.svc.AnalyzeImage(c.Request.Context(), upload)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListScans GET /api/v1/scans?limit=N
func (h *Handler) ListScans(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.fail(c, common.NewError(common.ErrCodeInvalidRequest, "limit must be a non-negative integer", http.StatusBadRequest, err))
			return
		}
		limit = n
	}

	results, err := h.svc.List(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}

	items := make([]analysisService.Summary, 0, len(results))
	for _, r := range results {
		items = append(items, r.Summarize())
	}
	c.JSON(http.StatusOK, ListResponse{Items: items, Count: len(items)})
}

// GetScan GET /api/v1/scans/:id
func (h *Handler) GetScan(c *gin.Context) {
	result, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) readMultipart(c *gin.Context) (image.Upload, error) {
	header, err := c.FormFile("image")
	if err != nil {
		return image.Upload{}, common.NewError(common.ErrCodeInvalidRequest, "image file is required", http.StatusBadRequest, err)
	}
	if h.maxUploadSize > 0 && header.Size > h.maxUploadSize {
		return image.Upload{}, common.ErrPayloadTooLarge
	}

	f, err := header.Open()
	if err != nil {
		return image.Upload{}, common.Wrap(common.ErrInvalidUpload, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return image.Upload{}, common.Wrap(common.ErrInvalidUpload, fmt.Errorf("read upload: %w", err))
	}

	return image.Upload{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (h *Handler) readDataURL(c *gin.Context) (image.Upload, error) {
	var req ImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return image.Upload{}, common.Wrap(common.ErrInvalidRequest, err)
	}
	if strings.TrimSpace(req.Image) == "" {
		return image.Upload{}, common.NewError(common.ErrCodeInvalidRequest, "image file is required", http.StatusBadRequest, nil)
	}

	contentType, data, err := image.DecodeDataURL(req.Image)
	if err != nil {
		return image.Upload{}, err
	}
	if h.maxUploadSize > 0 && int64(len(data)) > h.maxUploadSize {
		return image.Upload{}, common.ErrPayloadTooLarge
	}

	name := req.FileName
	if name == "" {
		name = "upload." + strings.TrimPrefix(contentType, "image/")
	}
	return image.Upload{FileName: name, ContentType: contentType, Data: data}, nil
}

func (h *Handler) fail(c *gin.Context, err error) {
	common.RespondError(c, err, h.debug)
}
