// Package fetch performs outbound HTTP requests for webmention verification and delivery.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

const (
	DefaultTimeout = 10 * time.Second
	// DefaultMaxBodySize caps every response body read into memory.
	DefaultMaxBodySize int64 = 1 << 20

	userAgent = "webpress (+webmention)"
)

var allowedSchemes = []string{"http", "https"}

// ErrBodyTooLarge is returned when a response exceeds the configured body cap.
var ErrBodyTooLarge = errors.New("response body exceeds size limit")

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// URL is the final URL after redirects.
	URL *url.URL
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Fetcher is the subset of Client used by the webmention engine.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) (*Response, error)
	PostForm(ctx context.Context, rawURL string, form url.Values) (*Response, error)
}

var _ Fetcher = (*Client)(nil)

type Client struct {
	http    *http.Client
	maxBody int64
}

// NewSafeClient returns a client that refuses to connect to private, loopback,
// link-local and metadata addresses, checked after DNS resolution.
func NewSafeClient(timeout time.Duration, maxBody int64) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	return NewClient(safeurl.Client(config).Client, maxBody)
}

// NewClient wraps an existing http.Client. Tests use it with httptest servers, which
// listen on loopback and would be rejected by the safe client.
func NewClient(httpClient *http.Client, maxBody int64) *Client {
	if maxBody <= 0 {
		maxBody = DefaultMaxBodySize
	}
	return &Client{http: httpClient, maxBody: maxBody}
}

func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", rawURL, err)
	}
	req.Header.Set("Accept", "text/html, application/xhtml+xml;q=0.9, */*;q=0.5")
	return c.do(req)
}

func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", rawURL, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*Response, error) {
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to %s %s: %w", req.Method, req.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", req.URL, err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("failed to read response from %s: %w", req.URL, ErrBodyTooLarge)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		URL:        resp.Request.URL,
	}, nil
}
