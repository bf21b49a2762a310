// Package httpclient provides a shared HTTP client with retry logic for external API calls.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/archon-research/stl/oracle-scanner/internal/pkg/retry"
	"golang.org/x/time/rate"
)

// Config holds the configuration for the HTTP client.
type Config struct {
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	RateLimit      rate.Limit
	RateBurst      int
}

// DefaultConfig returns sensible defaults for the HTTP client.
func DefaultConfig() Config {
	return Config{
		Timeout:        30 * time.Second,
		MaxRetries:     3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
		RateLimit:      rate.Limit(5),
		RateBurst:      1,
	}
}

// RequestConfig holds per-request configuration.
type RequestConfig struct {
	URL     string
	Headers map[string]string

	// Method defaults to GET. Body is sent as application/json when set.
	Method string
	Body   []byte
}

// ErrorParser parses API-specific error responses.
// It returns an error if the response body contains an API error, or nil if no error.
type ErrorParser func(statusCode int, body []byte) error

// Client wraps an HTTP client with retry logic and rate limiting.
type Client struct {
	httpClient  *http.Client
	limiter     *rate.Limiter
	retryConfig retry.Config
	logger      *slog.Logger
	errorParser ErrorParser
}

// NewClient creates a new HTTP client with the given configuration.
func NewClient(cfg Config, logger *slog.Logger, errorParser ErrorParser) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if errorParser == nil {
		errorParser = func(_ int, _ []byte) error { return nil }
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(cfg.RateLimit, cfg.RateBurst),
		retryConfig: retry.Config{
			MaxRetries:     cfg.MaxRetries,
			InitialBackoff: cfg.InitialBackoff,
			MaxBackoff:     cfg.MaxBackoff,
			BackoffFactor:  cfg.BackoffFactor,
		},
		logger:      logger,
		errorParser: errorParser,
	}
}

// DoRequest performs an HTTP request with retry logic and rate limiting and
// decodes the JSON response into result.
func (c *Client) DoRequest(ctx context.Context, reqCfg RequestConfig, result any) error {
	body, err := c.DoRaw(ctx, reqCfg)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// DoRaw performs an HTTP request with retry logic and rate limiting and returns
// the response body once the error parser accepts it.
func (c *Client) DoRaw(ctx context.Context, reqCfg RequestConfig) ([]byte, error) {
	onRetry := func(attempt int, err error, backoff time.Duration) {
		c.logger.Warn("request failed, retrying",
			"attempt", attempt,
			"maxRetries", c.retryConfig.MaxRetries,
			"backoff", backoff,
			"error", err,
		)
	}

	return retry.Do(ctx, c.retryConfig, nil, onRetry, func() ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, WrapNonRetryable(fmt.Errorf("rate limiter: %w", err))
		}
		return c.doSingleRequest(ctx, reqCfg)
	})
}

func (c *Client) doSingleRequest(ctx context.Context, reqCfg RequestConfig) ([]byte, error) {
	method := reqCfg.Method
	if method == "" {
		method = http.MethodGet
	}
	var reqBody io.Reader
	if reqCfg.Body != nil {
		reqBody = bytes.NewReader(reqCfg.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqCfg.URL, reqBody)
	if err != nil {
		return nil, WrapNonRetryable(fmt.Errorf("creating request: %w", err))
	}

	req.Header.Set("Accept", "application/json")
	if reqCfg.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range reqCfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("rate limited (HTTP 429)")
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("server error (HTTP %d)", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		if apiErr := c.errorParser(resp.StatusCode, body); apiErr != nil {
			return nil, WrapNonRetryable(apiErr)
		}
		return nil, WrapNonRetryable(fmt.Errorf("client error (HTTP %d): %s", resp.StatusCode, string(body)))
	}

	// Check for API-specific errors in successful responses
	if apiErr := c.errorParser(resp.StatusCode, body); apiErr != nil {
		// Let the error parser decide if it's retryable or not
		return nil, apiErr
	}

	return body, nil
}

// NonRetryableError is an error the client will not retry.
type NonRetryableError = retry.PermanentError

// WrapNonRetryable marks err so that DoRaw returns it without retrying.
// Error parsers use it for API errors that a retry cannot fix.
func WrapNonRetryable(err error) error {
	return retry.Permanent(err)
}
