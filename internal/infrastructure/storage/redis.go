package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ingredient-checker/internal/core/analysis"
	"ingredient-checker/internal/infrastructure/config"
	"ingredient-checker/internal/pkg/common"

	"github.com/go-redis/redis/v8"
)

const (
	redisScanPrefix = "ingredient-checker:scan:"
	redisScanIndex  = "ingredient-checker:scans"
)

// createScript 寫入紀錄、推入索引並刪除超出上限的舊紀錄，整段在 Redis 內原子執行
var createScript = redis.NewScript(`
redis.call('SET', ARGV[4] .. ARGV[1], ARGV[2])
redis.call('LPUSH', KEYS[1], ARGV[1])
local limit = tonumber(ARGV[3])
local evicted = redis.call('LRANGE', KEYS[1], limit, -1)
for _, id in ipairs(evicted) do
	redis.call('DEL', ARGV[4] .. id)
end
redis.call('LTRIM', KEYS[1], 0, limit - 1)
return #evicted
`)

// RedisStore 以 Redis list 作為由新到舊的索引
type RedisStore struct {
	client *redis.Client
	limit  int
	ids    *IDGenerator
	now    func() time.Time
}

// OpenRedis 連線 Redis
func OpenRedis(ctx context.Context, cfg config.RedisConfig, limit int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStore(client, limit), nil
}

// NewRedisStore 使用既有的 client
func NewRedisStore(client *redis.Client, limit int) *RedisStore {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &RedisStore{client: client, limit: limit, ids: NewIDGenerator(), now: time.Now}
}

// Create 指派 ID 與建立時間後保存
func (s *RedisStore) Create(ctx context.Context, r *analysis.Result) (*analysis.Result, error) {
	rec := r.Clone()
	rec.CreatedAt = s.now().UTC()
	rec.ID = s.ids.New(rec.CreatedAt)

	payload, err := common.ToJSON(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal scan: %w", err)
	}

	if err := createScript.Run(ctx, s.client, []string{redisScanIndex}, rec.ID, payload, s.limit, redisScanPrefix).Err(); err != nil {
		return nil, fmt.Errorf("save scan: %w", err)
	}
	return rec, nil
}

// List 由新到舊
func (s *RedisStore) List(ctx context.Context, limit int) ([]*analysis.Result, error) {
	if limit <= 0 {
		return []*analysis.Result{}, nil
	}

	ids, err := s.client.LRange(ctx, redisScanIndex, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list scan ids: %w", err)
	}
	if len(ids) == 0 {
		return []*analysis.Result{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisScanPrefix + id
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load scans: %w", err)
	}

	out := make([]*analysis.Result, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// 索引與資料之間被淘汰的紀錄
			continue
		}
		var rec analysis.Result
		if err := common.ParseJSON(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode scan: %w", err)
		}
		out = append(out, &rec)
	}
	return out, nil
}

// Get 取得單筆
func (s *RedisStore) Get(ctx context.Context, id string) (*analysis.Result, error) {
	raw, err := s.client.Get(ctx, redisScanPrefix+id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, analysis.ErrNotFound
		}
		return nil, fmt.Errorf("get scan: %w", err)
	}

	var rec analysis.Result
	if err := common.ParseJSON(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode scan: %w", err)
	}
	return &rec, nil
}

// Close 關閉連線
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping 檢查 Redis 連線
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
