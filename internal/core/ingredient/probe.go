package ingredient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"ingredient-checker/internal/core/ai/cache"
	"ingredient-checker/internal/core/fetch"
	"ingredient-checker/internal/pkg/common"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

const (
	// DefaultOFFBaseURL Open Food Facts 公開站台
	DefaultOFFBaseURL = "https://world.openfoodfacts.org"

	defaultProbeConcurrency = 8
	probeCacheNamespace     = "off"
)

// ProberConfig 產品資料庫查詢設定
type ProberConfig struct {
	BaseURL        string
	UserAgent      string
	MaxConcurrency int
}

// Prober 以 Open Food Facts 的產品搜尋為每個片語找出附加物或風險標註
type Prober struct {
	fetcher        *fetch.Fetcher
	cache          cache.Store
	baseURL        string
	userAgent      string
	maxConcurrency int
}

type offSearchResponse struct {
	Products []offProduct `json:"products"`
}

type offProduct struct {
	AdditivesTags           tagList `json:"additives_tags"`
	IngredientsAnalysisTags tagList `json:"ingredients_analysis_tags"`
}

// tagList 只接受陣列；其他型別視為沒有標註
type tagList []string

func (t *tagList) UnmarshalJSON(data []byte) error {
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		*t = nil
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		out = append(out, fmt.Sprint(v))
	}
	*t = out
	return nil
}

// NewProber 創建產品查詢器；store 可為 nil
func NewProber(fetcher *fetch.Fetcher, cfg ProberConfig, store cache.Store) *Prober {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOFFBaseURL
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaultProbeConcurrency
	}
	return &Prober{
		fetcher:        fetcher,
		cache:          store,
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:      cfg.UserAgent,
		maxConcurrency: cfg.MaxConcurrency,
	}
}

// Probe 並行查詢每個片語，回傳被標記的片語（依首次出現排序、不重複）。
// 單一片語查詢失敗時視為未標記，不會影響其他片語。
func (p *Prober) Probe(ctx context.Context, phrases []string) []string {
	var unique []string
	seen := make(map[string]struct{})
	for _, phrase := range phrases {
		key := normalizePhrase(phrase)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, strings.TrimSpace(phrase))
	}
	if len(unique) == 0 {
		return nil
	}

	flagged := make([]bool, len(unique))
	workers := pool.New().WithMaxGoroutines(p.maxConcurrency)
	for i, phrase := range unique {
		i, phrase := i, phrase
		workers.Go(func() {
			hit, err := p.lookup(ctx, phrase)
			if err != nil {
				common.LogDegraded("probe-unflagged", err, zap.String("phrase", phrase))
				return
			}
			flagged[i] = hit
		})
	}
	workers.Wait()

	var out []string
	for i, hit := range flagged {
		if hit {
			out = append(out, unique[i])
		}
	}
	return out
}

// lookup 查詢單一片語；只快取成功的查詢結果
func (p *Prober) lookup(ctx context.Context, phrase string) (hit bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			hit, err = false, fmt.Errorf("probe panicked: %v", r)
		}
	}()

	key := cache.Key(probeCacheNamespace, normalizePhrase(phrase))
	if p.cache != nil {
		if val, cerr := p.cache.Get(ctx, key); cerr == nil {
			return val == "1", nil
		} else if !errors.Is(cerr, common.ErrCacheMiss) {
			common.LogDebug("讀取產品查詢快取失敗", common.SafeError(cerr))
		}
	}

	req := &fetch.Request{
		Method: http.MethodGet,
		URL:    p.baseURL + "/cgi/search.pl",
		Query: map[string]string{
			"search_terms":  phrase,
			"search_simple": "1",
			"action":        "process",
			"json":          "1",
		},
	}
	if p.userAgent != "" {
		req.Headers = map[string]string{"User-Agent": p.userAgent}
	}

	var resp offSearchResponse
	if err := p.fetcher.FetchJSON(ctx, req, &resp); err != nil {
		return false, err
	}

	hit = len(resp.Products) > 0 &&
		(len(resp.Products[0].AdditivesTags) > 0 || len(resp.Products[0].IngredientsAnalysisTags) > 0)

	if p.cache != nil {
		val := "0"
		if hit {
			val = "1"
		}
		if cerr := p.cache.Set(ctx, key, val); cerr != nil {
			common.LogDebug("寫入產品查詢快取失敗", common.SafeError(cerr))
		}
	}
	return hit, nil
}
