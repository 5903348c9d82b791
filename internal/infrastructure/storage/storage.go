// Package storage 提供掃描紀錄的保存後端：記憶體、SQL（Postgres/SQLite/MySQL）與 Redis。
package storage

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"ingredient-checker/internal/core/analysis"
	"ingredient-checker/internal/infrastructure/config"
	"ingredient-checker/internal/pkg/common"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// DefaultHistoryLimit 預設保留筆數
const DefaultHistoryLimit = 50

// IDGenerator 產生依時間排序的 ULID
type IDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewIDGenerator 創建 ID 產生器
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// New 以指定時間產生 ID
func (g *IDGenerator) New(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), g.entropy).String()
}

// New 依設定建立保存後端
func New(ctx context.Context, cfg config.StorageConfig, redisCfg config.RedisConfig) (analysis.Repository, error) {
	limit := cfg.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	var (
		repo analysis.Repository
		err  error
	)
	switch cfg.Driver {
	case "", "memory":
		repo = NewMemoryStore(limit)
	case "postgres", "sqlite", "mysql":
		repo, err = OpenSQL(ctx, cfg.Driver, cfg.DSN, limit, cfg.Migrate)
	case "redis":
		repo, err = OpenRedis(ctx, redisCfg, limit)
	default:
		err = fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	common.LogInfo("掃描紀錄儲存已初始化",
		zap.String("driver", cfg.Driver),
		zap.Int("history_limit", limit),
	)
	return repo, nil
}
