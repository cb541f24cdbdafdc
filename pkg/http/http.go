package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/exp/rand"
)

const (
	DefaultMaxRetries  = 3
	DefaultBaseBackoff = time.Millisecond * 500
	DefaultUserAgent   = "bangumiz"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryClient retries requests the server asked to slow down on, 429 and 503
type RetryClient struct {
	client      HTTPClient
	userAgent   string
	baseBackoff time.Duration
	maxRetries  int
	jitter      bool
}

// ClientOption is a function that can be used to configure a RetryClient
type ClientOption func(*RetryClient)

// NewRetryClient creates a new RetryClient wrapping http.DefaultClient unless
// another client is given
func NewRetryClient(opts ...ClientOption) *RetryClient {
	c := &RetryClient{
		client:      http.DefaultClient,
		userAgent:   DefaultUserAgent,
		maxRetries:  DefaultMaxRetries,
		baseBackoff: DefaultBaseBackoff,
		jitter:      true,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithMaxRetries sets the maximum number of attempts for a request
func WithMaxRetries(maxRetries int) ClientOption {
	return func(c *RetryClient) {
		c.maxRetries = maxRetries
	}
}

// WithBaseBackoff sets the base backoff time for the client
func WithBaseBackoff(baseBackoff time.Duration) ClientOption {
	return func(c *RetryClient) {
		c.baseBackoff = baseBackoff
	}
}

// WithHTTPClient sets the http client to use for the client
func WithHTTPClient(client HTTPClient) ClientOption {
	return func(c *RetryClient) {
		c.client = client
	}
}

// WithUserAgent sets the user agent sent when the request does not have one
func WithUserAgent(ua string) ClientOption {
	return func(c *RetryClient) {
		c.userAgent = ua
	}
}

// WithoutJitter disables the random stagger added to backoffs
func WithoutJitter() ClientOption {
	return func(c *RetryClient) {
		c.jitter = false
	}
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

// Do executes the request, waiting and retrying while the server responds with 429 or 503.
// Waiting stops early if the request context is done.
// If the maximum number of retries is reached, the last response is returned along with an error.
func (c *RetryClient) Do(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	var err error

	if c.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	attempts := max(c.maxRetries, 1)
	for attempt := 0; attempt < attempts; attempt++ {
		resp, err = c.client.Do(req)
		if err != nil {
			return nil, err
		}

		if !retryable(resp.StatusCode) {
			return resp, nil
		}

		if attempt == attempts-1 {
			break
		}

		wait := c.getRetryAfter(resp, attempt)
		resp.Body.Close()

		timer := time.NewTimer(wait)
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}

	return resp, fmt.Errorf("retry limit exceeded after %d attempts: %s", attempts, resp.Status)
}

// getRetryAfter calculates the appropriate retry delay
func (c *RetryClient) getRetryAfter(resp *http.Response, attempt int) time.Duration {
	retryAfterHeader := resp.Header.Get("Retry-After")

	if retryAfterHeader != "" {
		seconds, err := strconv.Atoi(retryAfterHeader)
		if err == nil {
			return time.Duration(seconds) * time.Second
		}
	}

	// 2^n backoff
	backoff := time.Duration(1<<attempt) * c.baseBackoff
	if c.jitter && c.baseBackoff > 0 {
		backoff += time.Duration(rand.Int63n(int64(c.baseBackoff)))
	}

	return backoff
}
