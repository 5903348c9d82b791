// Package objectstore 將上傳的標籤圖片封存到 MinIO / S3 相容儲存。
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"ingredient-checker/internal/core/image"
	"ingredient-checker/internal/infrastructure/config"
	"ingredient-checker/internal/pkg/common"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// Store MinIO 封存
type Store struct {
	client *minio.Client
	bucket string
	now    func() time.Time
}

// New 連線 MinIO 並確保 bucket 存在
func New(ctx context.Context, cfg config.ArchiveConfig) (*Store, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
		common.LogInfo("已建立封存 bucket", zap.String("bucket", cfg.Bucket))
	}

	return &Store{client: cli, bucket: cfg.Bucket, now: time.Now}, nil
}

// ObjectKey 產生 labels/<日期>/<uuid><副檔名>
func ObjectKey(fileName string, at time.Time) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".bmp":
	default:
		ext = ".bin"
	}
	return fmt.Sprintf("labels/%s/%s%s", at.UTC().Format("2006/01/02"), common.GenerateUUID(), ext)
}

// Archive 上傳圖片並回傳物件鍵
func (s *Store) Archive(ctx context.Context, u image.Upload) (string, error) {
	key := ObjectKey(u.FileName, s.now())

	contentType := u.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(u.Data), int64(len(u.Data)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"original-name": filepath.Base(u.FileName)},
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return key, nil
}
