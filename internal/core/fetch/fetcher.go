// Package fetch 提供所有外部呼叫共用的「帶重試與逾時的 JSON 請求」工具。
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"ingredient-checker/internal/pkg/common"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	// DefaultBaseDelay 第 n 次重試前等待 n * DefaultBaseDelay
	DefaultBaseDelay = time.Second
	// DefaultTimeout 單次嘗試的逾時
	DefaultTimeout = 15 * time.Second

	maxErrorBody = 200
)

// Options 設定重試次數、退避與單次逾時
type Options struct {
	Retries   int
	BaseDelay time.Duration
	Timeout   time.Duration
}

// FilePart multipart 上傳的檔案；以位元組保存，每次重試都能重新讀取
type FilePart struct {
	Param    string
	FileName string
	Data     []byte
}

// Request 描述一次外部請求
type Request struct {
	Method   string
	URL      string
	Query    map[string]string
	Headers  map[string]string
	Body     interface{}
	FormData map[string]string
	File     *FilePart
}

// HTTPError 非 2xx 響應
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Fetcher 以 resty 發送請求並將響應解析為 JSON
type Fetcher struct {
	client *resty.Client
	opts   Options
}

// New 建立 Fetcher；client 為 nil 時使用新的 resty client
func New(client *resty.Client, opts Options) *Fetcher {
	if client == nil {
		client = resty.New()
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Fetcher{client: client, opts: opts}
}

// Options 回傳目前的設定
func (f *Fetcher) Options() Options {
	return f.opts
}

// FetchJSON 發送請求並把響應解析進 out。
// 非 2xx、網路錯誤或無法解析的內容都會重試，最多 Retries 次額外嘗試，
// 第 n 次重試前等待 n * BaseDelay。重試用盡後回傳最後一次的錯誤。
func (f *Fetcher) FetchJSON(ctx context.Context, req *Request, out interface{}) error {
	return Retry(ctx, f.opts, req.URL, func(attemptCtx context.Context) error {
		return f.do(attemptCtx, req, out)
	})
}

// Retry 以相同的重試、線性退避與單次逾時規則執行 fn。
// 供無法透過 FetchJSON 發送的外部呼叫（例如 SDK 客戶端）共用。
func Retry(ctx context.Context, opts Options, label string, fn func(ctx context.Context) error) error {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	attempts := opts.Retries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * opts.BaseDelay
			common.LogDebug("外部請求重試",
				zap.String("target", label),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				common.SafeError(lastErr),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		lastErr = fn(attemptCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
	}

	return fmt.Errorf("request to %s failed after %d attempt(s): %w", label, attempts, lastErr)
}

// do 執行單次嘗試
func (f *Fetcher) do(ctx context.Context, req *Request, out interface{}) error {
	r := f.client.R().SetContext(ctx)
	if len(req.Query) > 0 {
		r.SetQueryParams(req.Query)
	}
	if len(req.Headers) > 0 {
		r.SetHeaders(req.Headers)
	}
	if req.Body != nil {
		r.SetHeader("Content-Type", "application/json").SetBody(req.Body)
	}
	if len(req.FormData) > 0 {
		r.SetMultipartFormData(req.FormData)
	}
	if req.File != nil {
		r.SetFileReader(req.File.Param, req.File.FileName, bytes.NewReader(req.File.Data))
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	resp, err := r.Execute(method, req.URL)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	body := resp.Body()
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		snippet := string(body)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return &HTTPError{StatusCode: resp.StatusCode(), Body: snippet}
	}

	if out == nil {
		return nil
	}
	if err := common.ParseJSONBytes(body, out); err != nil {
		return fmt.Errorf("parse response body: %w", err)
	}
	return nil
}
