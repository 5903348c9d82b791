package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ingredient-checker/internal/core/analysis"
	"ingredient-checker/internal/core/image"
	"ingredient-checker/internal/infrastructure/config"
	"ingredient-checker/internal/pkg/common"
)

type stubAnalyzer struct{}

func (stubAnalyzer) AnalyzeText(ctx context.Context, text string) (*analysis.Result, error) {
	return &analysis.Result{ID: "scan-1", RawInput: text, Flags: []string{}}, nil
}

func (stubAnalyzer) AnalyzeImage(ctx context.Context, upload image.Upload) (*analysis.Result, error) {
	return nil, common.ErrTextExtraction
}

func (stubAnalyzer) List(ctx context.Context, limit int) ([]*analysis.Result, error) {
	return nil, nil
}

func (stubAnalyzer) Get(ctx context.Context, id string) (*analysis.Result, error) {
	return nil, common.ErrNotFound
}

func testConfig() *config.Config {
	return &config.Config{
		App:         config.AppConfig{Debug: true, Version: "test"},
		Server:      config.ServerConfig{RequestTimeout: 5 * time.Second, MaxBodyBytes: 1 << 20},
		Uploads:     config.UploadConfig{MaxSizeBytes: 1 << 20},
		RateLimit:   config.RateLimitConfig{Enabled: true, Requests: 100, Window: time.Minute},
		DedupWindow: time.Second,
	}
}

func TestRoutes(t *testing.T) {
	r := SetupRouter(testConfig(), Deps{Analyzer: stubAnalyzer{}})

	cases := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodGet, "/health", "", http.StatusOK},
		{http.MethodGet, "/ready", "", http.StatusOK},
		{http.MethodGet, "/live", "", http.StatusOK},
		{http.MethodPost, "/api/v1/analyze/text", `{"ingredientsText":"sugar"}`, http.StatusOK},
		{http.MethodGet, "/api/v1/scans", "", http.StatusOK},
		{http.MethodGet, "/api/v1/scans/nope", "", http.StatusNotFound},
		{http.MethodGet, "/unknown", "", http.StatusNotFound},
		{http.MethodDelete, "/api/v1/scans", "", http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
		if tc.body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Errorf("%s %s: expected %d, got %d (%s)", tc.method, tc.path, tc.want, w.Code, w.Body.String())
		}
		if w.Header().Get("X-Request-ID") == "" {
			t.Errorf("%s %s: request id header missing", tc.method, tc.path)
		}
	}
}

func TestDuplicateSubmissionRejected(t *testing.T) {
	r := SetupRouter(testConfig(), Deps{Analyzer: stubAnalyzer{}})

	send := func() int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze/text", strings.NewReader(`{"ingredientsText":"salt"}`))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := send(); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for duplicate, got %d", code)
	}
}

func TestCORSWildcardDisablesCredentials(t *testing.T) {
	c := corsConfig([]string{"*"})
	if !c.AllowAllOrigins || c.AllowCredentials {
		t.Fatalf("wildcard origin must not allow credentials: %+v", c)
	}

	c = corsConfig([]string{"https://example.com"})
	if c.AllowAllOrigins || !c.AllowCredentials || c.AllowOrigins[0] != "https://example.com" {
		t.Fatalf("unexpected config %+v", c)
	}
}
