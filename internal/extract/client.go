package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ppiankov/curator/internal/cache"
	"github.com/ppiankov/curator/internal/metrics"
	"github.com/ppiankov/curator/internal/model"
)

// Extractor resolves a URL to its text content
type Extractor interface {
	Extract(ctx context.Context, rawURL string) (string, error)
}

type extractRequest struct {
	URL string `json:"url"`
}

type extractResponse struct {
	Success bool   `json:"success"`
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// Client calls the external extraction service. Identical concurrent
// requests share one call, and successful results may be cached.
type Client struct {
	endpoint   string
	httpClient *http.Client
	timeout    time.Duration
	userAgent  string
	maxBytes   int64
	cache      cache.Cache
	converter  *Converter
	group      singleflight.Group
	metrics    *metrics.Collector
	logger     *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithCache caches successful extractions
func WithCache(c cache.Cache) Option {
	return func(cl *Client) { cl.cache = c }
}

// WithMetrics records extractor calls
func WithMetrics(m *metrics.Collector) Option {
	return func(cl *Client) { cl.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(h *http.Client) Option {
	return func(cl *Client) { cl.httpClient = h }
}

// NewClient creates an extractor client from configuration
func NewClient(cfg model.ExtractorConfig, opts ...Option) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, model.Errorf(model.ReasonInvalidInput, "extractor endpoint is not configured")
	}
	proxy, err := proxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy)
	if err != nil {
		return nil, model.Wrap(model.ReasonInvalidInput, err, "invalid proxy url")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxBytes := cfg.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = 5_000_000
	}

	c := &Client{
		endpoint: cfg.Endpoint,
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               proxy,
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		timeout:    timeout,
		userAgent:  cfg.UserAgent,
		maxBytes:   maxBytes,
		converter:  NewConverter(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Extract returns the content of rawURL as text or markdown. Failures carry
// ExtractionFailed or ExtractionTimeout; empty content is a failure.
func (c *Client) Extract(ctx context.Context, rawURL string) (string, error) {
	key := cache.Key(c.endpoint, rawURL)
	if c.cache != nil {
		if data, ok := c.cache.Get(key); ok {
			c.metrics.RecordCache(true)
			c.logger.Debug("extraction cache hit", zap.String("url", rawURL))
			return string(data), nil
		}
		c.metrics.RecordCache(false)
	}

	// The shared call is detached from any single caller's cancellation and
	// bounded by the client timeout instead
	ch := c.group.DoChan(key, func() (any, error) {
		content, err := c.fetch(context.WithoutCancel(ctx), rawURL)
		if err != nil {
			return "", err
		}
		if c.cache != nil {
			if err := c.cache.Set(key, []byte(content), 0); err != nil {
				c.logger.Warn("extraction cache write failed", zap.String("url", rawURL), zap.Error(err))
			}
		}
		return content, nil
	})

	select {
	case <-ctx.Done():
		return "", contextError(ctx.Err(), c.timeout)
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// fetch makes one call to the extractor. Failures are not retried here;
// the caller decides whether to resubmit.
func (c *Client) fetch(ctx context.Context, rawURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	content, err := c.attempt(ctx, rawURL)
	if err != nil {
		c.metrics.RecordExtraction(string(model.ReasonOf(err)))
		c.logger.Info("extraction failed", zap.String("url", rawURL), zap.Error(err))
		return "", err
	}
	c.metrics.RecordExtraction("ok")
	return content, nil
}

// attempt performs one POST
func (c *Client) attempt(ctx context.Context, rawURL string) (string, error) {
	body, err := json.Marshal(extractRequest{URL: rawURL})
	if err != nil {
		return "", model.Wrap(model.ReasonExtractionFailed, err, "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", model.Wrap(model.ReasonExtractionFailed, err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", contextError(ctx.Err(), c.timeout)
		}
		return "", model.Wrap(model.ReasonExtractionFailed, err, "extractor unreachable")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		if ctx.Err() != nil {
			return "", contextError(ctx.Err(), c.timeout)
		}
		return "", model.Wrap(model.ReasonExtractionFailed, err, "read extractor response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", model.Errorf(model.ReasonExtractionFailed,
			"extractor returned status %d: %s", resp.StatusCode, snippet(data))
	}
	if int64(len(data)) > c.maxBytes {
		return "", model.Errorf(model.ReasonExtractionFailed,
			"extractor response exceeds %d bytes", c.maxBytes)
	}

	var out extractResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", model.Wrap(model.ReasonExtractionFailed, err, "invalid extractor response")
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "no reason given"
		}
		return "", model.Errorf(model.ReasonExtractionFailed, "extractor reported failure: %s", msg)
	}

	content := out.Content
	if LooksLikeHTML(content) {
		converted, err := c.converter.Convert(content)
		if err != nil {
			return "", model.Wrap(model.ReasonExtractionFailed, err, "convert html")
		}
		content = converted
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", model.Errorf(model.ReasonExtractionFailed, "extractor returned empty content")
	}
	return content, nil
}

func contextError(err error, timeout time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return model.Wrap(model.ReasonExtractionTimeout, err, fmt.Sprintf("extractor did not answer within %s", timeout))
	}
	return model.Wrap(model.ReasonCanceled, err, "extraction canceled")
}

func snippet(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
