package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestFetchJSONRetriesUntilSuccess(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		switch n {
		case 1:
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down"))
		case 2:
			_, _ = w.Write([]byte("{not json"))
		default:
			_, _ = w.Write([]byte(`{"value":"ok"}`))
		}
	}))
	defer srv.Close()

	f := New(nil, Options{Retries: 2, BaseDelay: time.Millisecond, Timeout: time.Second})

	var out struct {
		Value string `json:"value"`
	}
	if err := f.FetchJSON(context.Background(), &Request{URL: srv.URL}, &out); err != nil {
		t.Fatalf("FetchJSON: %v", err)
	}
	if out.Value != "ok" {
		t.Fatalf("unexpected value %q", out.Value)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestFetchJSONPropagatesLastError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(strings.Repeat("x", 500)))
	}))
	defer srv.Close()

	f := New(nil, Options{Retries: 1, BaseDelay: time.Millisecond, Timeout: time.Second})

	err := f.FetchJSON(context.Background(), &Request{URL: srv.URL}, nil)
	if err == nil {
		t.Fatal("expected error after retries are exhausted")
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError in chain, got %v", err)
	}
	if httpErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status %d", httpErr.StatusCode)
	}
	if len(httpErr.Body) != maxErrorBody {
		t.Fatalf("expected body snippet to be truncated to %d, got %d", maxErrorBody, len(httpErr.Body))
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestFetchJSONAttemptTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	f := New(nil, Options{Retries: 0, Timeout: 20 * time.Millisecond})

	start := time.Now()
	if err := f.FetchJSON(context.Background(), &Request{URL: srv.URL}, nil); err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("attempt timeout not enforced, took %s", elapsed)
	}
}

func TestFetchJSONStopsOnContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := New(nil, Options{Retries: 3, BaseDelay: time.Hour, Timeout: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := f.FetchJSON(ctx, &Request{URL: srv.URL}, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestFetchJSONSendsBodyQueryAndMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/json":
			if r.URL.Query().Get("q") != "palm oil" {
				t.Errorf("unexpected query %q", r.URL.RawQuery)
			}
			body, _ := io.ReadAll(r.Body)
			if !strings.Contains(string(body), `"name":"x"`) {
				t.Errorf("unexpected body %s", body)
			}
			if r.Header.Get("X-Test") != "1" {
				t.Errorf("missing header")
			}
		case "/upload":
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("parse multipart: %v", err)
				break
			}
			if r.FormValue("language") != "eng" {
				t.Errorf("missing form field")
			}
			file, hdr, err := r.FormFile("file")
			if err != nil {
				t.Errorf("missing file: %v", err)
				break
			}
			data, _ := io.ReadAll(file)
			if hdr.Filename != "label.png" || string(data) != "img" {
				t.Errorf("unexpected file %s %q", hdr.Filename, data)
			}
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	f := New(nil, Options{Timeout: time.Second})
	ctx := context.Background()

	if err := f.FetchJSON(ctx, &Request{
		Method:  http.MethodPost,
		URL:     srv.URL + "/json",
		Query:   map[string]string{"q": "palm oil"},
		Headers: map[string]string{"X-Test": "1"},
		Body:    map[string]string{"name": "x"},
	}, nil); err != nil {
		t.Fatalf("json request: %v", err)
	}

	if err := f.FetchJSON(ctx, &Request{
		Method:   http.MethodPost,
		URL:      srv.URL + "/upload",
		FormData: map[string]string{"language": "eng"},
		File:     &FilePart{Param: "file", FileName: "label.png", Data: []byte("img")},
	}, nil); err != nil {
		t.Fatalf("multipart request: %v", err)
	}
}
