package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/thumbsieve/internal/model"
)

func testHTTPConfig() model.HTTPConfig {
	cfg := model.DefaultConfig().HTTP
	cfg.Timeout = 5 * time.Second
	return cfg
}

func TestFetchImage_Success(t *testing.T) {
	body := pngBytes(pattern(0))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("User-Agent"), "iPhone") {
			t.Errorf("Expected mobile User-Agent, got %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	}))
	defer server.Close()

	img, err := NewFetcher(testHTTPConfig()).FetchImage(context.Background(), server.URL+"/thumb.png")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if img.Format != "png" || img.MIMEType != "image/png" {
		t.Errorf("Unexpected format %q / %q", img.Format, img.MIMEType)
	}
	if img.Image.Bounds().Dx() != 64 {
		t.Errorf("Unexpected width %d", img.Image.Bounds().Dx())
	}
	if len(img.Data) != len(body) {
		t.Errorf("Expected %d bytes, got %d", len(body), len(img.Data))
	}
}

func TestFetchImage_BadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := NewFetcher(testHTTPConfig()).FetchImage(context.Background(), server.URL)
	if !errors.Is(err, ErrBadStatus) {
		t.Fatalf("Expected ErrBadStatus, got %v", err)
	}
}

func TestFetchImage_NotAnImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>login required</html>"))
	}))
	defer server.Close()

	_, err := NewFetcher(testHTTPConfig()).FetchImage(context.Background(), server.URL)
	if err == nil {
		t.Fatal("Expected decode error for HTML body")
	}
}

func TestFetchImage_TooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 2048))
	}))
	defer server.Close()

	cfg := testHTTPConfig()
	cfg.MaxBodyBytes = 1024
	_, err := NewFetcher(cfg).FetchImage(context.Background(), server.URL)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("Expected ErrTooLarge, got %v", err)
	}
}

func TestFetchImage_RobotsDisallowed(t *testing.T) {
	var imageHits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
			return
		}
		imageHits.Add(1)
		_, _ = w.Write(pngBytes(pattern(1)))
	}))
	defer server.Close()

	cfg := testHTTPConfig()
	cfg.RespectRobots = true
	_, err := NewFetcher(cfg).FetchImage(context.Background(), server.URL+"/private/a.png")
	if !errors.Is(err, ErrDisallowed) {
		t.Fatalf("Expected ErrDisallowed, got %v", err)
	}
	if imageHits.Load() != 0 {
		t.Errorf("Disallowed image was fetched")
	}
}

type countingLimiter struct {
	waits atomic.Int32
}

func (l *countingLimiter) Wait(ctx context.Context, rawURL string) error {
	l.waits.Add(1)
	return nil
}

func TestFetchImage_UsesLimiter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(pngBytes(pattern(2)))
	}))
	defer server.Close()

	limiter := &countingLimiter{}
	f := NewFetcher(testHTTPConfig()).WithLimiter(limiter)
	for i := 0; i < 3; i++ {
		if _, err := f.FetchImage(context.Background(), server.URL); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if limiter.waits.Load() != 3 {
		t.Errorf("Expected 3 limiter waits, got %d", limiter.waits.Load())
	}
}

func TestProcess_DownloadFailedOverHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	cls := &scriptedClassifier{}
	p := New(NewFetcher(testHTTPConfig()), cls, nil, nil)
	res := p.Process(context.Background(), model.CandidateItem{ImageURL: server.URL + "/gone.jpg"}, newStore(t))

	if res.Outcome != model.OutcomeDownloadFailed {
		t.Fatalf("Expected download_failed, got %s", res.Label())
	}
	if cls.calls() != 0 {
		t.Errorf("Classifier called %d times after failed download", cls.calls())
	}
}
