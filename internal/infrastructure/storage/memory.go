package storage

import (
	"context"
	"sync"
	"time"

	"ingredient-checker/internal/core/analysis"
)

// MemoryStore 行程內的有界紀錄；超過上限時淘汰最舊的
type MemoryStore struct {
	mu      sync.RWMutex
	records []*analysis.Result // 由舊到新
	byID    map[string]*analysis.Result
	limit   int
	ids     *IDGenerator
	now     func() time.Time
}

// NewMemoryStore 創建記憶體儲存
func NewMemoryStore(limit int) *MemoryStore {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &MemoryStore{
		byID:  make(map[string]*analysis.Result),
		limit: limit,
		ids:   NewIDGenerator(),
		now:   time.Now,
	}
}

// Create 指派 ID 與建立時間後保存，並在同一個鎖內淘汰超出上限的紀錄
func (s *MemoryStore) Create(ctx context.Context, r *analysis.Result) (*analysis.Result, error) {
	rec := r.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec.CreatedAt = s.now().UTC()
	rec.ID = s.ids.New(rec.CreatedAt)
	s.records = append(s.records, rec)
	s.byID[rec.ID] = rec

	for len(s.records) > s.limit {
		delete(s.byID, s.records[0].ID)
		s.records[0] = nil
		s.records = s.records[1:]
	}

	return rec.Clone(), nil
}

// List 由新到舊
func (s *MemoryStore) List(ctx context.Context, limit int) ([]*analysis.Result, error) {
	if limit <= 0 {
		return []*analysis.Result{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*analysis.Result, 0, min(limit, len(s.records)))
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.records[i].Clone())
	}
	return out, nil
}

// Get 取得單筆
func (s *MemoryStore) Get(ctx context.Context, id string) (*analysis.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, analysis.ErrNotFound
	}
	return rec.Clone(), nil
}

// Close 無需釋放資源
func (s *MemoryStore) Close() error {
	return nil
}
