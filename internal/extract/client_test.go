package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/curator/internal/cache"
	"github.com/ppiankov/curator/internal/model"
)

func respond(w http.ResponseWriter, success bool, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(extractResponse{Success: success, Content: content})
}

func newTestClient(t *testing.T, url string, opts ...Option) *Client {
	t.Helper()
	cfg := model.DefaultConfig().Extractor
	cfg.Endpoint = url
	cfg.Timeout = 2 * time.Second
	c, err := NewClient(cfg, opts...)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestClient_Extract_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "Curator/") {
			t.Errorf("unexpected user agent %q", ua)
		}
		var req extractRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.URL != "https://example.com/post" {
			t.Errorf("unexpected url %q", req.URL)
		}
		respond(w, true, "  Plain text body.  ")
	}))
	defer server.Close()

	got, err := newTestClient(t, server.URL).Extract(context.Background(), "https://example.com/post")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if got != "Plain text body." {
		t.Errorf("unexpected content %q", got)
	}
}

func TestClient_Extract_HTMLToMarkdown(t *testing.T) {
	page := `<html><head><title>Cache Tuning</title></head><body>
<nav><a href="/">Home</a></nav>
<article><p>Use <strong>bounded</strong> caches.</p><ul><li>one</li><li>two</li></ul></article>
<script>track()</script>
</body></html>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respond(w, true, page)
	}))
	defer server.Close()

	got, err := newTestClient(t, server.URL).Extract(context.Background(), "https://example.com/a")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !strings.HasPrefix(got, "# Cache Tuning") {
		t.Errorf("expected title heading, got %q", got)
	}
	if !strings.Contains(got, "**bounded**") {
		t.Errorf("expected markdown emphasis, got %q", got)
	}
	if !strings.Contains(got, "- one") {
		t.Errorf("expected markdown list, got %q", got)
	}
	if strings.Contains(got, "Home") || strings.Contains(got, "track()") {
		t.Errorf("expected navigation and scripts stripped, got %q", got)
	}
}

func TestClient_Extract_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{
			name:    "success false",
			handler: func(w http.ResponseWriter, r *http.Request) { respond(w, false, "") },
			want:    "reported failure",
		},
		{
			name:    "empty content",
			handler: func(w http.ResponseWriter, r *http.Request) { respond(w, true, "   ") },
			want:    "empty content",
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "no such page", http.StatusNotFound)
			},
			want: "status 404",
		},
		{
			name: "invalid json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, "<html>not json</html>")
			},
			want: "invalid extractor response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			_, err := newTestClient(t, server.URL).Extract(context.Background(), "https://example.com/x")
			if !errors.Is(err, model.ErrExtractionFailed) {
				t.Fatalf("expected ExtractionFailed, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error to mention %q, got %v", tt.want, err)
			}
		})
	}
}

func TestClient_Extract_SingleAttempt(t *testing.T) {
	for _, status := range []int{http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusBadRequest} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) == 1 {
					w.WriteHeader(status)
					return
				}
				respond(w, true, "second try content")
			}))
			defer server.Close()

			client := newTestClient(t, server.URL, WithCache(cache.NewMemoryCache(time.Minute, time.Minute)))
			_, err := client.Extract(context.Background(), "https://example.com/x")
			if !errors.Is(err, model.ErrExtractionFailed) {
				t.Fatalf("expected ExtractionFailed, got %v", err)
			}
			if !strings.Contains(err.Error(), fmt.Sprintf("status %d", status)) {
				t.Errorf("expected error to mention the status, got %v", err)
			}
			if calls.Load() != 1 {
				t.Fatalf("expected a single call, got %d", calls.Load())
			}

			// Resubmitting is the caller's decision; the failure was not cached
			got, err := client.Extract(context.Background(), "https://example.com/x")
			if err != nil {
				t.Fatalf("expected resubmission to succeed, got %v", err)
			}
			if got != "second try content" || calls.Load() != 2 {
				t.Errorf("got %q after %d calls", got, calls.Load())
			}
		})
	}
}

func TestClient_Extract_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	cfg := model.DefaultConfig().Extractor
	cfg.Endpoint = server.URL
	cfg.Timeout = 50 * time.Millisecond
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = c.Extract(context.Background(), "https://example.com/slow")
	if !errors.Is(err, model.ErrExtractionTimeout) {
		t.Fatalf("expected ExtractionTimeout, got %v", err)
	}
}

func TestClient_Extract_CallerCanceled(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		respond(w, true, "late")
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := newTestClient(t, server.URL).Extract(ctx, "https://example.com/x")
	if !errors.Is(err, model.ErrCanceled) {
		t.Fatalf("expected Canceled, got %v", err)
	}
}

func TestClient_Extract_Cache(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		respond(w, true, "cached body")
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, WithCache(cache.NewMemoryCache(time.Hour, 0)))
	for i := 0; i < 3; i++ {
		got, err := c.Extract(context.Background(), "https://example.com/x")
		if err != nil || got != "cached body" {
			t.Fatalf("call %d: got %q, %v", i, got, err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 extractor call, got %d", calls.Load())
	}
}

func TestClient_Extract_CoalescesConcurrentRequests(t *testing.T) {
	var calls atomic.Int32
	arrived := make(chan struct{}, 1)
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case arrived <- struct{}{}:
		default:
		}
		<-release
		respond(w, true, "shared")
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	const n = 5
	var wg sync.WaitGroup
	results := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.Extract(context.Background(), "https://example.com/same")
			if err != nil {
				t.Errorf("Extract failed: %v", err)
				return
			}
			results <- got
		}()
	}

	<-arrived
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	for got := range results {
		if got != "shared" {
			t.Errorf("unexpected content %q", got)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("expected concurrent requests to share 1 call, got %d", calls.Load())
	}
}

func TestNewClient_Validation(t *testing.T) {
	if _, err := NewClient(model.ExtractorConfig{}); !errors.Is(err, model.ErrInvalidInput) {
		t.Errorf("expected InvalidInput for missing endpoint, got %v", err)
	}
	cfg := model.ExtractorConfig{Endpoint: "http://x", HTTPProxy: "://bad"}
	if _, err := NewClient(cfg); !errors.Is(err, model.ErrInvalidInput) {
		t.Errorf("expected InvalidInput for bad proxy, got %v", err)
	}
}

func TestLooksLikeHTML(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"<html><body>x</body></html>", true},
		{"  <p>para</p>", true},
		{"<div class=\"a\">x</div>", true},
		{"plain text with a < sign", false},
		{"<not really markup", false},
		{"# Markdown heading", false},
	}
	for _, tt := range tests {
		if got := LooksLikeHTML(tt.in); got != tt.want {
			t.Errorf("LooksLikeHTML(%q) = %t, want %t", tt.in, got, tt.want)
		}
	}
}
