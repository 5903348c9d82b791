package ocr

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ingredient-checker/internal/core/fetch"
	"ingredient-checker/internal/pkg/common"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	f := fetch.New(nil, fetch.Options{Retries: 0, BaseDelay: time.Millisecond, Timeout: time.Second})
	return NewClient(Config{APIKey: "secret", Endpoint: srv.URL}, f)
}

func TestFileType(t *testing.T) {
	cases := map[string]string{
		"label.JPG":  "jpeg",
		"label.jpeg": "jpeg",
		"label.png":  "png",
		"label.bmp":  "bmp",
		"label":      "png",
	}
	for name, want := range cases {
		if got := FileType(name); got != want {
			t.Fatalf("FileType(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestExtractText(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.FormValue("apikey") != "secret" || r.FormValue("language") != "eng" || r.FormValue("filetype") != "jpeg" {
			t.Errorf("unexpected form values %v", r.MultipartForm.Value)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file: %v", err)
		} else {
			data, _ := io.ReadAll(file)
			if string(data) != "img" || header.Filename != "label.jpg" {
				t.Errorf("unexpected file %q %q", header.Filename, data)
			}
		}
		_, _ = w.Write([]byte(`{"ParsedResults":[{"ParsedText":"Sugar, Salt\r\n"}],"IsErroredOnProcessing":false}`))
	})

	text, err := client.ExtractText(context.Background(), "label.jpg", []byte("img"))
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if text != "Sugar, Salt\r\n" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestExtractTextFailures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"empty text": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"ParsedResults":[{"ParsedText":"  "}]}`))
		},
		"no results": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"ParsedResults":[]}`))
		},
		"processing error": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"IsErroredOnProcessing":true,"ErrorMessage":["bad image"]}`))
		},
		"server error": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		},
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			client := newTestClient(t, handler)
			_, err := client.ExtractText(context.Background(), "label.png", []byte("img"))
			if !errors.Is(err, common.ErrTextExtraction) {
				t.Fatalf("expected extraction error, got %v", err)
			}
		})
	}
}
