package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// BigInt is an unsigned 256-bit quantity that encodes as a decimal JSON string,
// so consumers without native big integers keep full precision.
type BigInt struct {
	*big.Int
}

// NewBigInt copies v. A nil v yields zero.
func NewBigInt(v *big.Int) BigInt {
	if v == nil {
		return BigInt{Int: new(big.Int)}
	}
	return BigInt{Int: new(big.Int).Set(v)}
}

// Value returns the wrapped integer, never nil.
func (b BigInt) Value() *big.Int {
	if b.Int == nil {
		return new(big.Int)
	}
	return b.Int
}

// Equal compares by value; nil equals zero.
func (b BigInt) Equal(o BigInt) bool {
	return b.Value().Cmp(o.Value()) == 0
}

func (b BigInt) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Value().String())
}

func (b *BigInt) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		b.Int = new(big.Int)
		return nil
	}
	s := strings.Trim(string(data), `"`)
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("invalid integer %q", s)
	}
	b.Int = v
	return nil
}

// StandardOracleFeeds are the feed and vault addresses read from a Morpho
// Chainlink oracle. Vault fields and conversion samples are zero for V1.
type StandardOracleFeeds struct {
	BaseFeedOne                Address `json:"baseFeedOne"`
	BaseFeedTwo                Address `json:"baseFeedTwo"`
	QuoteFeedOne               Address `json:"quoteFeedOne"`
	QuoteFeedTwo               Address `json:"quoteFeedTwo"`
	BaseVault                  Address `json:"baseVault"`
	QuoteVault                 Address `json:"quoteVault"`
	BaseVaultConversionSample  BigInt  `json:"baseVaultConversionSample"`
	QuoteVaultConversionSample BigInt  `json:"quoteVaultConversionSample"`
}

// FeedAddresses returns the non-empty feed addresses in base/quote order.
func (f StandardOracleFeeds) FeedAddresses() []Address {
	var out []Address
	for _, a := range []Address{f.BaseFeedOne, f.BaseFeedTwo, f.QuoteFeedOne, f.QuoteFeedTwo} {
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// Equal compares every field, treating nil samples as zero.
func (f StandardOracleFeeds) Equal(o StandardOracleFeeds) bool {
	return f.BaseFeedOne == o.BaseFeedOne &&
		f.BaseFeedTwo == o.BaseFeedTwo &&
		f.QuoteFeedOne == o.QuoteFeedOne &&
		f.QuoteFeedTwo == o.QuoteFeedTwo &&
		f.BaseVault == o.BaseVault &&
		f.QuoteVault == o.QuoteVault &&
		f.BaseVaultConversionSample.Equal(o.BaseVaultConversionSample) &&
		f.QuoteVaultConversionSample.Equal(o.QuoteVaultConversionSample)
}

// PartialFeeds is the subset of feeds a custom adapter may expose.
type PartialFeeds struct {
	BaseFeedOne  Address `json:"baseFeedOne,omitempty"`
	BaseFeedTwo  Address `json:"baseFeedTwo,omitempty"`
	QuoteFeedOne Address `json:"quoteFeedOne,omitempty"`
	QuoteFeedTwo Address `json:"quoteFeedTwo,omitempty"`
}

// IsEmpty reports whether no feed is set.
func (p *PartialFeeds) IsEmpty() bool {
	return p == nil || (p.BaseFeedOne == "" && p.BaseFeedTwo == "" && p.QuoteFeedOne == "" && p.QuoteFeedTwo == "")
}

// MetaOracleConfig describes a deviation-timelock meta-oracle. Everything
// except CurrentOracle is fixed at deployment and comes from the factory's
// deployment event; CurrentOracle is read live on every run.
type MetaOracleConfig struct {
	PrimaryOracle             Address         `json:"primaryOracle"`
	BackupOracle              Address         `json:"backupOracle"`
	CurrentOracle             Address         `json:"currentOracle"`
	DeviationThreshold        decimal.Decimal `json:"deviationThreshold"`
	ChallengeTimelockDuration uint64          `json:"challengeTimelockDuration"`
	HealingTimelockDuration   uint64          `json:"healingTimelockDuration"`
}

// SameDeployment reports whether the immutable, log-derived fields match.
func (c MetaOracleConfig) SameDeployment(o MetaOracleConfig) bool {
	return c.PrimaryOracle == o.PrimaryOracle &&
		c.BackupOracle == o.BackupOracle &&
		c.DeviationThreshold.Equal(o.DeviationThreshold) &&
		c.ChallengeTimelockDuration == o.ChallengeTimelockDuration &&
		c.HealingTimelockDuration == o.HealingTimelockDuration
}
