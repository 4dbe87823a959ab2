package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	// DefaultTimeout is the default timeout for a single HTTP request.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxTries is the default number of attempts per fetch,
	// including the first one.
	DefaultMaxTries = 3

	// MaxResponseSize is the maximum allowed response size (16MB).
	MaxResponseSize = 16 * 1024 * 1024

	// UserAgent is the user agent string for HTTP requests.
	UserAgent = "cachebound/1.0"
)

// HTTPError represents a non-2xx HTTP response.
type HTTPError struct {
	StatusCode int
	Message    string
	URL        string
}

// Error returns the error message.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for URL %s: %s", e.StatusCode, e.URL, e.Message)
}

// Client is an interface for HTTP operations.
type Client interface {
	// Get performs an HTTP GET request and returns the response body.
	Get(ctx context.Context, url string) ([]byte, error)
}

// DefaultClient is the default HTTP client implementation. Transient
// failures (network errors and 5xx responses) are retried with exponential
// backoff; 4xx responses are permanent and fail immediately.
type DefaultClient struct {
	client   *http.Client
	maxTries uint
}

// ClientOption configures a DefaultClient.
type ClientOption func(*DefaultClient)

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *DefaultClient) {
		c.client.Timeout = timeout
	}
}

// WithMaxTries sets the number of attempts per fetch, including the first.
func WithMaxTries(n uint) ClientOption {
	return func(c *DefaultClient) {
		c.maxTries = n
	}
}

// NewDefaultClient creates a new default HTTP client.
func NewDefaultClient(opts ...ClientOption) *DefaultClient {
	c := &DefaultClient{
		client: &http.Client{
			Timeout: DefaultTimeout,
		},
		maxTries: DefaultMaxTries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get performs an HTTP GET request with retries.
func (c *DefaultClient) Get(ctx context.Context, url string) ([]byte, error) {
	operation := func() ([]byte, error) {
		return c.getOnce(ctx, url)
	}

	body, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.maxTries),
	)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// getOnce performs a single GET attempt. Client errors are wrapped as
// permanent so the retry loop stops immediately.
func (c *DefaultClient) getOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		httpErr := &HTTPError{StatusCode: resp.StatusCode, URL: url, Message: resp.Status}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, backoff.Permanent(httpErr)
		}
		return nil, httpErr
	}

	// Read with a size limit; +1 to detect when the limit is exceeded.
	limited := io.LimitReader(resp.Body, MaxResponseSize+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, backoff.Permanent(fmt.Errorf("response size exceeds maximum allowed size of %d bytes", MaxResponseSize))
	}

	return body, nil
}
