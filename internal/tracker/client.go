package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxStatusBodySize caps a status API reply. Status documents are small; a
// larger body is treated as a failed lookup.
const maxStatusBodySize = 1 << 20

// ErrBodyTooLarge is reported when a status reply exceeds 1MB.
var ErrBodyTooLarge = errors.New("status response exceeds 1MB")

// Response is one status API reply.
type Response struct {
	// Body is the reply body.
	Body []byte

	// StatusCode is zero when no reply was received.
	StatusCode int

	// Latency covers the request and the body read.
	Latency time.Duration

	// Error is set when the lookup failed. An error status code is not a failure.
	Error error
}

// Client queries the transaction status API.
//
// Every request carries the configured headers and runs under the configured
// timeout. All requests go to one API, so connections are pooled per host.
type Client struct {
	httpClient *http.Client
	headers    http.Header
	timeout    time.Duration
}

// NewClient creates a [Client] sending headers with every request and
// bounding each request by timeout.
func NewClient(headers map[string]string, timeout time.Duration) *Client {
	h := make(http.Header, len(headers)+1)
	h.Set("Accept", "application/json")
	for k, v := range headers {
		h.Set(k, v)
	}

	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        32,
				MaxIdleConnsPerHost: 16,
				MaxConnsPerHost:     16,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		headers: h,
		timeout: timeout,
	}
}

// Get fetches url. Get always returns a Response; failures are reported in
// its Error field.
func (c *Client) Get(ctx context.Context, url string) Response {
	start := time.Now()
	fail := func(code int, err error) Response {
		return Response{StatusCode: code, Latency: time.Since(start), Error: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fail(0, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header = c.headers.Clone()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fail(0, fmt.Errorf("request failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	// read one byte past the cap to tell a full body from a truncated one
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStatusBodySize+1))
	if err != nil {
		return fail(resp.StatusCode, fmt.Errorf("failed to read response body: %w", err))
	}
	if len(body) > maxStatusBodySize {
		return fail(resp.StatusCode, ErrBodyTooLarge)
	}

	return Response{
		Body:       body,
		StatusCode: resp.StatusCode,
		Latency:    time.Since(start),
	}
}

// Close drops idle pooled connections. The client stays usable.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.httpClient.CloseIdleConnections()
}
