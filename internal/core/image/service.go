// Package image 驗證上傳的標籤圖片並準備送往 OCR。
package image

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"path/filepath"
	"strings"

	_ "image/png" // 支援 PNG

	"ingredient-checker/internal/pkg/common"

	_ "golang.org/x/image/bmp" // 支援 BMP
)

const (
	// DefaultMaxSizeBytes 上傳大小上限
	DefaultMaxSizeBytes = 10 * 1024 * 1024
	// DefaultOCRMaxBytes OCR 服務免費方案的檔案上限，超過時重新壓縮為 JPEG
	DefaultOCRMaxBytes = 1024 * 1024
)

var allowedContentTypes = map[string]bool{
	"image/png":      true,
	"image/jpeg":     true,
	"image/jpg":      true,
	"image/bmp":      true,
	"image/x-ms-bmp": true,
}

// Upload 上傳的檔案
type Upload struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Service 圖片處理服務
type Service struct {
	maxSizeBytes int64
	ocrMaxBytes  int64
}

// NewService 創建新的圖片處理服務
func NewService(maxSizeBytes int64) *Service {
	if maxSizeBytes <= 0 {
		maxSizeBytes = DefaultMaxSizeBytes
	}
	return &Service{maxSizeBytes: maxSizeBytes, ocrMaxBytes: DefaultOCRMaxBytes}
}

// AllowedContentType 是否為允許的上傳類型
func AllowedContentType(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return allowedContentTypes[ct]
}

// ValidateImage 檢查類型、大小與內容是否為 PNG/JPEG/BMP，回傳解碼出的格式
func (s *Service) ValidateImage(u Upload) (string, error) {
	if len(u.Data) == 0 {
		return "", common.Wrap(common.ErrInvalidUpload, fmt.Errorf("image file is required"))
	}
	if !AllowedContentType(u.ContentType) {
		return "", common.Wrap(common.ErrInvalidUpload, fmt.Errorf("unsupported content type %q", u.ContentType))
	}
	if int64(len(u.Data)) > s.maxSizeBytes {
		return "", common.Wrap(common.ErrPayloadTooLarge, fmt.Errorf("image size exceeds maximum limit of %d bytes", s.maxSizeBytes))
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(u.Data))
	if err != nil {
		return "", common.Wrap(common.ErrInvalidUpload, fmt.Errorf("failed to decode image: %w", err))
	}
	if !isSupportedFormat(format) {
		return "", common.Wrap(common.ErrInvalidUpload, fmt.Errorf("unsupported image format: %s", format))
	}
	return format, nil
}

// ProcessImage 驗證圖片；超過 OCR 上限時重新編碼為 JPEG 並改用 .jpg 副檔名
func (s *Service) ProcessImage(u Upload) (Upload, error) {
	if _, err := s.ValidateImage(u); err != nil {
		return Upload{}, err
	}
	if int64(len(u.Data)) <= s.ocrMaxBytes {
		return u, nil
	}

	img, _, err := image.Decode(bytes.NewReader(u.Data))
	if err != nil {
		return Upload{}, common.Wrap(common.ErrInvalidUpload, fmt.Errorf("failed to decode image: %w", err))
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return Upload{}, fmt.Errorf("failed to encode image as JPEG: %w", err)
	}
	if buf.Len() >= len(u.Data) {
		return u, nil
	}

	name := strings.TrimSuffix(u.FileName, filepath.Ext(u.FileName)) + ".jpg"
	return Upload{FileName: name, ContentType: "image/jpeg", Data: buf.Bytes()}, nil
}

// DecodeDataURL 解析 data:image/...;base64, 格式的圖片
func DecodeDataURL(dataURL string) (string, []byte, error) {
	if !strings.HasPrefix(dataURL, "data:image/") {
		return "", nil, common.Wrap(common.ErrInvalidUpload, fmt.Errorf("invalid image data format"))
	}

	parts := strings.SplitN(dataURL, ",", 2)
	if len(parts) != 2 || !strings.HasSuffix(parts[0], ";base64") {
		return "", nil, common.Wrap(common.ErrInvalidUpload, fmt.Errorf("invalid base64 data format"))
	}

	decoded, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", nil, common.Wrap(common.ErrInvalidUpload, fmt.Errorf("failed to decode base64 data: %w", err))
	}

	contentType := strings.TrimSuffix(strings.TrimPrefix(parts[0], "data:"), ";base64")
	return contentType, decoded, nil
}

// isSupportedFormat 檢查圖片格式是否支援
func isSupportedFormat(format string) bool {
	switch format {
	case "jpeg", "png", "bmp":
		return true
	}
	return false
}
