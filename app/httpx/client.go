// Package httpx is the shared outbound HTTP layer: one browser-headed
// client composed with a global concurrency ceiling, in-flight request
// deduplication and a per-source circuit breaker.
package httpx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"
)

// Response is a fully-read HTTP response. Body is raw bytes because one
// source answers in GBK and must not be interpreted as UTF-8 here.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Options tune a single request.
type Options struct {
	Cookies string            // Cookie header value to attach
	Headers map[string]string // extra headers on top of the browser set
	NoDedup bool              // bypass in-flight deduplication (non-idempotent calls)
}

type Client struct {
	http      *http.Client
	limiter   *Limiter
	breakers  *BreakerSet
	flight    singleflight.Group
	userAgent string
}

func NewClient(userAgent string, timeout time.Duration, maxConcurrent int) *Client {
	return &Client{
		http: &http.Client{
			Timeout: timeout,
		},
		limiter:   NewLimiter(maxConcurrent),
		breakers:  NewBreakerSet(),
		userAgent: userAgent,
	}
}

func (c *Client) Breakers() *BreakerSet {
	return c.breakers
}

// Get fetches a URL through the resilience stack. Concurrent calls for the
// same URL collapse onto one network request; every caller receives the
// same response. A non-nil *Response may accompany a non-nil error for
// 5xx statuses so callers can still inspect challenge pages.
func (c *Client) Get(ctx context.Context, sourceID, rawURL string, opts *Options) (*Response, error) {
	if opts != nil && opts.NoDedup {
		return c.do(ctx, sourceID, http.MethodGet, rawURL, nil, "", opts)
	}

	type result struct {
		resp *Response
		err  error
	}
	v, _, _ := c.flight.Do(rawURL, func() (interface{}, error) {
		resp, err := c.do(ctx, sourceID, http.MethodGet, rawURL, nil, "", opts)
		return result{resp, err}, nil
	})
	r := v.(result)
	return r.resp, r.err
}

// Post sends a request body. Never deduplicated.
func (c *Client) Post(ctx context.Context, sourceID, rawURL string, body []byte, contentType string, opts *Options) (*Response, error) {
	return c.do(ctx, sourceID, http.MethodPost, rawURL, body, contentType, opts)
}

func (c *Client) do(ctx context.Context, sourceID, method, rawURL string, body []byte, contentType string, opts *Options) (*Response, error) {
	v, err := c.breakers.Execute(sourceID, func() (interface{}, error) {
		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
		defer c.limiter.Release()

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		c.applyHeaders(req, contentType, opts)

		httpResp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer httpResp.Body.Close()

		payload, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		resp := &Response{
			StatusCode: httpResp.StatusCode,
			Header:     httpResp.Header,
			Body:       payload,
		}

		// 5xx counts against the breaker, but the body is still handed
		// back so challenge pages can be recognized.
		if httpResp.StatusCode >= 500 {
			return resp, fmt.Errorf("upstream status %d", httpResp.StatusCode)
		}
		return resp, nil
	})

	resp, _ := v.(*Response)
	return resp, err
}

// applyHeaders presents the same header set as the browser context used for
// interactive logins; several sources fingerprint-match cookies against it.
func (c *Client) applyHeaders(req *http.Request, contentType string, opts *Options) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if opts == nil {
		return
	}
	if opts.Cookies != "" {
		req.Header.Set("Cookie", opts.Cookies)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
}
