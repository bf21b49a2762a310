// Package morpho lists the oracles used by Morpho markets through the Morpho
// GraphQL API.
package morpho

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
	"github.com/archon-research/stl/oracle-scanner/internal/pkg/httpclient"
	"github.com/archon-research/stl/oracle-scanner/internal/ports/outbound"
)

// Compile-time check that Client implements outbound.OracleEnumerator.
var _ outbound.OracleEnumerator = (*Client)(nil)

const marketsQuery = `query Markets($first: Int!, $skip: Int!) {
  markets(first: $first, skip: $skip) {
    items {
      oracle {
        address
        chain {
          id
        }
      }
      collateralAsset {
        address
      }
    }
  }
}`

// BlacklistedCollaterals are collateral tokens whose markets are ignored.
var BlacklistedCollaterals = map[entity.Address]bool{
	"0xda1c2c3c8fad503662e41e324fc644dc2c5e0ccd": true,
	"0x8413d2a624a9fa8b6d3ec7b22cf7f62e55d6bc83": true,
}

// ClientConfig holds configuration for the Morpho API client.
type ClientConfig struct {
	// URL is the GraphQL endpoint.
	// Defaults to https://blue-api.morpho.org/graphql
	URL string

	// PageSize is the number of markets requested per page.
	PageSize int

	// MaxPages bounds pagination.
	MaxPages int

	HTTP httpclient.Config

	Logger *slog.Logger
}

// ClientConfigDefaults returns a config with default values.
func ClientConfigDefaults() ClientConfig {
	httpCfg := httpclient.DefaultConfig()
	httpCfg.RateLimit = rate.Limit(2)
	return ClientConfig{
		URL:      "https://blue-api.morpho.org/graphql",
		PageSize: 1000,
		MaxPages: 20,
		HTTP:     httpCfg,
		Logger:   slog.Default(),
	}
}

// Client enumerates market oracles.
type Client struct {
	config ClientConfig
	http   *httpclient.Client
	logger *slog.Logger
}

// NewClient creates a Morpho API client.
func NewClient(config ClientConfig) *Client {
	defaults := ClientConfigDefaults()
	if config.URL == "" {
		config.URL = defaults.URL
	}
	if config.PageSize <= 0 {
		config.PageSize = defaults.PageSize
	}
	if config.MaxPages <= 0 {
		config.MaxPages = defaults.MaxPages
	}
	if config.HTTP.Timeout == 0 {
		config.HTTP = defaults.HTTP
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	logger := config.Logger.With("component", "morpho-api")
	return &Client{
		config: config,
		http:   httpclient.NewClient(config.HTTP, logger, parseGraphQLError),
		logger: logger,
	}
}

// parseGraphQLError surfaces the first GraphQL error. GraphQL errors describe
// the query, so retrying does not help.
func parseGraphQLError(statusCode int, body []byte) error {
	msg := gjson.GetBytes(body, "errors.0.message")
	if !msg.Exists() {
		return nil
	}
	return httpclient.WrapNonRetryable(fmt.Errorf("graphql error (HTTP %d): %s", statusCode, msg.String()))
}

// ListOracles returns every distinct (chain, oracle) of a market whose
// collateral is not blacklisted, on supported chains only.
func (c *Client) ListOracles(ctx context.Context) ([]outbound.OracleCandidate, error) {
	seen := make(map[outbound.OracleCandidate]bool)
	var (
		out         []outbound.OracleCandidate
		markets     int
		blacklisted int
		unsupported int
	)

	for page := 0; page < c.config.MaxPages; page++ {
		items, err := c.fetchPage(ctx, page*c.config.PageSize)
		if err != nil {
			return nil, err
		}
		markets += len(items)

		for _, item := range items {
			collateral := strings.ToLower(item.Get("collateralAsset.address").String())
			if BlacklistedCollaterals[entity.Address(collateral)] {
				blacklisted++
				continue
			}

			rawOracle := item.Get("oracle.address").String()
			if rawOracle == "" {
				continue
			}
			address, err := entity.NewAddress(rawOracle)
			if err != nil || address.IsZero() {
				continue
			}

			chainID := entity.ChainID(item.Get("oracle.chain.id").Uint())
			if !chainID.IsSupported() {
				unsupported++
				continue
			}

			candidate := outbound.OracleCandidate{ChainID: chainID, Address: address}
			if seen[candidate] {
				continue
			}
			seen[candidate] = true
			out = append(out, candidate)
		}

		if len(items) < c.config.PageSize {
			break
		}
	}

	c.logger.Info("enumerated market oracles",
		"markets", markets,
		"oracles", len(out),
		"blacklistedMarkets", blacklisted,
		"unsupportedChainMarkets", unsupported)

	return out, nil
}

func (c *Client) fetchPage(ctx context.Context, skip int) ([]gjson.Result, error) {
	body, err := json.Marshal(map[string]any{
		"query": marketsQuery,
		"variables": map[string]int{
			"first": c.config.PageSize,
			"skip":  skip,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding markets query: %w", err)
	}

	start := time.Now()
	resp, err := c.http.DoRaw(ctx, httpclient.RequestConfig{
		URL:    c.config.URL,
		Method: http.MethodPost,
		Body:   body,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching markets (skip %d): %w", skip, err)
	}

	if !gjson.ValidBytes(resp) {
		return nil, errors.New("markets response is not valid JSON")
	}
	items := gjson.GetBytes(resp, "data.markets.items")
	if !items.Exists() {
		return nil, errors.New("markets response has no data.markets.items")
	}

	c.logger.Debug("fetched markets page", "skip", skip, "items", len(items.Array()), "duration", time.Since(start))
	return items.Array(), nil
}
