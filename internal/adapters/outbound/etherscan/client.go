// Package etherscan implements the proxy metadata and log fetcher ports using
// Etherscan's V2 multichain API.
// It provides methods for querying contract metadata and event logs with:
//   - Automatic retry logic with exponential backoff for transient failures
//   - Configurable timeouts and backoff parameters
//   - Rate limiting to stay within API limits
//
// Without an API key every query returns an empty result instead of an error.
package etherscan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/time/rate"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
	"github.com/archon-research/stl/oracle-scanner/internal/pkg/retry"
	"github.com/archon-research/stl/oracle-scanner/internal/ports/outbound"
)

// Compile-time checks that Client implements the ports it serves.
var (
	_ outbound.ProxyMetadataSource = (*Client)(nil)
	_ outbound.LogFetcher          = (*Client)(nil)
)

// errNoRecords marks the status "0" reply Etherscan sends for an empty result.
var errNoRecords = errors.New("no records found")

// ClientConfig holds configuration for the Etherscan client.
type ClientConfig struct {
	// APIKey is the Etherscan API key. Optional: without it the client
	// answers every query with an empty result.
	APIKey string

	// BaseURL is the Etherscan API V2 base URL.
	// Defaults to https://api.etherscan.io/v2/api
	BaseURL string

	// Timeout is the maximum time to wait for a single HTTP request.
	Timeout time.Duration

	// MaxRetries is the maximum number of retry attempts for transient failures.
	// Use -1 to explicitly disable retries (0 uses default of 3).
	MaxRetries int

	// InitialBackoff is the initial delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum delay between retries.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied to backoff after each retry.
	BackoffFactor float64

	// RateLimitPerSec is the rate limit in requests per second.
	RateLimitPerSec int

	// LogPageSize is the offset parameter of getLogs. Defaults to 10000,
	// the largest page Etherscan serves. Full pages are followed by another
	// query.
	LogPageSize int

	// Logger is the structured logger for the client.
	Logger *slog.Logger

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client
}

// ClientConfigDefaults returns a config with default values.
func ClientConfigDefaults() ClientConfig {
	return ClientConfig{
		BaseURL:         "https://api.etherscan.io/v2/api",
		Timeout:         30 * time.Second,
		MaxRetries:      3,
		InitialBackoff:  1 * time.Second,
		MaxBackoff:      10 * time.Second,
		BackoffFactor:   2.0,
		RateLimitPerSec: 2, // Free tier: 3 calls/sec, use 2 to be safe
		LogPageSize:     10000,
		Logger:          slog.Default(),
	}
}

// Client queries Etherscan for proxy metadata and event logs on any chain the
// V2 API covers. The chain is chosen per request.
type Client struct {
	config      ClientConfig
	httpClient  *http.Client
	logger      *slog.Logger
	limiter     *rate.Limiter
	retryConfig retry.Config
}

// NewClient creates a new Etherscan API client.
func NewClient(config ClientConfig) (*Client, error) {
	defaults := ClientConfigDefaults()
	applyDefaults(&config, defaults)

	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid BaseURL: %w", err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: config.Timeout,
		}
	}

	limiter := rate.NewLimiter(rate.Limit(config.RateLimitPerSec), 1)

	return &Client{
		config:     config,
		httpClient: httpClient,
		logger:     config.Logger.With("component", "etherscan-client"),
		limiter:    limiter,
		retryConfig: retry.Config{
			MaxRetries:     config.MaxRetries,
			InitialBackoff: config.InitialBackoff,
			MaxBackoff:     config.MaxBackoff,
			BackoffFactor:  config.BackoffFactor,
			Jitter:         false, // Keep deterministic for API rate limiting
		},
	}, nil
}

func applyDefaults(config *ClientConfig, defaults ClientConfig) {
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	// MaxRetries: 0 means use default, negative values disable retries (set to 0)
	if config.MaxRetries == 0 {
		config.MaxRetries = defaults.MaxRetries
	} else if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.BackoffFactor == 0 {
		config.BackoffFactor = defaults.BackoffFactor
	}
	if config.RateLimitPerSec == 0 {
		config.RateLimitPerSec = defaults.RateLimitPerSec
	}
	if config.LogPageSize <= 0 {
		config.LogPageSize = defaults.LogPageSize
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
}

// Name returns the source name.
func (c *Client) Name() string {
	return "etherscan"
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c.config.APIKey != ""
}

// GetProxyInfo asks getsourcecode whether address is a verified proxy. It
// returns nil, nil when no key is configured or Etherscan has no entry.
func (c *Client) GetProxyInfo(ctx context.Context, chainID entity.ChainID, address entity.Address) (*outbound.ProxyInfo, error) {
	if !c.Enabled() {
		return nil, nil
	}

	params := c.params(chainID, "contract", "getsourcecode")
	params.Set("address", string(address))

	var entries []sourceCodeEntry
	if err := c.doRequest(ctx, params, &entries); err != nil {
		if errors.Is(err, errNoRecords) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching source code of %s on chain %d: %w", address, chainID, err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	entry := entries[0]
	info := &outbound.ProxyInfo{
		IsProxy: entry.Proxy == "1" || entry.IsProxy == "1",
	}
	if common.IsHexAddress(entry.Implementation) {
		info.Implementation = entity.NullableAddress(common.HexToAddress(entry.Implementation))
	}
	return info, nil
}

// GetLogs returns every log emitted by query.Address in the block range.
// Etherscan caps page*offset at 10000, so a full page is followed by a new
// query starting at the last block returned; logs seen twice are dropped.
// Without an API key, or when Etherscan reports no records, the result is
// empty.
func (c *Client) GetLogs(ctx context.Context, chainID entity.ChainID, query outbound.LogQuery) ([]types.Log, error) {
	if !c.Enabled() {
		return nil, nil
	}

	type logKey struct {
		tx    common.Hash
		index uint
	}
	seen := make(map[logKey]bool)

	var logs []types.Log
	from := query.FromBlock
	for {
		entries, err := c.fetchLogPage(ctx, chainID, query, from)
		if err != nil {
			return nil, err
		}

		for _, e := range entries {
			l, err := e.toLog()
			if err != nil {
				c.logger.Debug("skipping malformed log", "chainID", chainID, "tx", e.TransactionHash, "error", err)
				continue
			}
			key := logKey{tx: l.TxHash, index: l.Index}
			if seen[key] {
				continue
			}
			seen[key] = true
			logs = append(logs, l)
		}

		if len(entries) < c.config.LogPageSize {
			return logs, nil
		}
		next, err := parseHexUint64(entries[len(entries)-1].BlockNumber)
		if err != nil || next <= from {
			// A single block holds a full page; moving on would skip logs.
			c.logger.Warn("log page is full and cannot advance, later logs are not returned",
				"chainID", chainID,
				"address", query.Address.Hex(),
				"fromBlock", from,
				"pageSize", c.config.LogPageSize)
			return logs, nil
		}
		from = next
	}
}

func (c *Client) fetchLogPage(ctx context.Context, chainID entity.ChainID, query outbound.LogQuery, from uint64) ([]logEntry, error) {
	toBlock := "latest"
	if query.ToBlock != nil {
		toBlock = strconv.FormatUint(*query.ToBlock, 10)
	}

	params := c.params(chainID, "logs", "getLogs")
	params.Set("address", strings.ToLower(query.Address.Hex()))
	params.Set("fromBlock", strconv.FormatUint(from, 10))
	params.Set("toBlock", toBlock)
	params.Set("page", "1")
	params.Set("offset", strconv.Itoa(c.config.LogPageSize))
	if query.Topic0 != (common.Hash{}) {
		params.Set("topic0", query.Topic0.Hex())
	}

	var entries []logEntry
	if err := c.doRequest(ctx, params, &entries); err != nil {
		if errors.Is(err, errNoRecords) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching logs of %s on chain %d from block %d: %w", query.Address.Hex(), chainID, from, err)
	}
	return entries, nil
}

func (e logEntry) toLog() (types.Log, error) {
	if !common.IsHexAddress(e.Address) {
		return types.Log{}, fmt.Errorf("invalid address %q", e.Address)
	}
	topics := make([]common.Hash, 0, len(e.Topics))
	for _, t := range e.Topics {
		topics = append(topics, common.HexToHash(t))
	}
	data, err := hexutil.Decode(normalizeHex(e.Data))
	if err != nil {
		return types.Log{}, fmt.Errorf("decoding data: %w", err)
	}
	block, err := parseHexUint64(e.BlockNumber)
	if err != nil {
		return types.Log{}, fmt.Errorf("parsing block number: %w", err)
	}
	index, err := parseHexUint64(e.LogIndex)
	if err != nil {
		return types.Log{}, fmt.Errorf("parsing log index: %w", err)
	}
	return types.Log{
		Address:     common.HexToAddress(e.Address),
		Topics:      topics,
		Data:        data,
		BlockNumber: block,
		TxHash:      common.HexToHash(e.TransactionHash),
		Index:       uint(index),
	}, nil
}

func (c *Client) params(chainID entity.ChainID, module, action string) url.Values {
	return url.Values{
		"chainid": {strconv.FormatUint(uint64(chainID), 10)},
		"module":  {module},
		"action":  {action},
		"apikey":  {c.config.APIKey},
	}
}

func (c *Client) doRequest(ctx context.Context, params url.Values, result any) error {
	fullURL := fmt.Sprintf("%s?%s", c.config.BaseURL, params.Encode())

	onRetry := func(attempt int, err error, backoff time.Duration) {
		c.logger.Warn("request failed, retrying",
			"attempt", attempt,
			"maxRetries", c.retryConfig.MaxRetries,
			"backoff", backoff,
			"error", err,
		)
	}

	return retry.DoVoid(ctx, c.retryConfig, nil, onRetry, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return retry.Permanent(fmt.Errorf("rate limiter: %w", err))
		}
		return c.doSingleRequest(ctx, fullURL, result)
	})
}

func (c *Client) doSingleRequest(ctx context.Context, fullURL string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("creating request: %w", err))
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("rate limited (HTTP 429)")
	}

	if resp.StatusCode >= 500 {
		return fmt.Errorf("server error (HTTP %d)", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr etherscanError
		if jsonErr := json.Unmarshal(body, &apiErr); jsonErr == nil && apiErr.Message != "" {
			return retry.Permanent(fmt.Errorf("API error (HTTP %d): %s - %s", resp.StatusCode, apiErr.Message, apiErr.Result))
		}
		return retry.Permanent(fmt.Errorf("client error (HTTP %d): %s", resp.StatusCode, string(body)))
	}

	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return retry.Permanent(fmt.Errorf("parsing response: %w", err))
	}

	if envelope.Status == "0" {
		if strings.HasPrefix(strings.ToLower(envelope.Message), "no records found") {
			return retry.Permanent(errNoRecords)
		}
		var reason string
		if json.Unmarshal(envelope.Result, &reason) != nil {
			reason = string(envelope.Result)
		}
		if strings.Contains(strings.ToLower(reason), "rate limit") {
			return fmt.Errorf("rate limited: %s", reason)
		}
		return retry.Permanent(fmt.Errorf("API error: %s - %s", envelope.Message, reason))
	}

	if err := json.Unmarshal(envelope.Result, result); err != nil {
		return retry.Permanent(fmt.Errorf("parsing result: %w", err))
	}

	return nil
}

func normalizeHex(s string) string {
	if s == "" || s == "0x" {
		return "0x"
	}
	if !strings.HasPrefix(s, "0x") {
		return "0x" + s
	}
	return s
}

// parseHexUint64 parses a hex string (with or without 0x prefix) to uint64.
func parseHexUint64(hexStr string) (uint64, error) {
	hexStr = strings.TrimPrefix(hexStr, "0x")
	if hexStr == "" {
		return 0, nil
	}
	return strconv.ParseUint(hexStr, 16, 64)
}
