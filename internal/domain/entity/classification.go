package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ClassificationKind discriminates the Classification variants in JSON.
type ClassificationKind string

const (
	KindStandardV1    ClassificationKind = "MorphoChainlinkOracleV1"
	KindStandardV2    ClassificationKind = "MorphoChainlinkOracleV2"
	KindMetaOracle    ClassificationKind = "MetaOracleDeviationTimelock"
	KindCustomAdapter ClassificationKind = "CustomAdapter"
	KindUnknown       ClassificationKind = "Unknown"
)

// VerificationMethod records how a standard oracle was recognised.
type VerificationMethod string

const (
	VerifiedByFactory  VerificationMethod = "factory"
	VerifiedByBytecode VerificationMethod = "bytecode"
)

// Classification is a closed sum type over the five oracle kinds. Only types in
// this package implement it.
type Classification interface {
	Kind() ClassificationKind
	isClassification()
}

// StandardV1 is an instance of the Morpho Chainlink oracle V1 template.
type StandardV1 struct {
	Feeds              StandardOracleFeeds `json:"feeds"`
	VerificationMethod VerificationMethod  `json:"verificationMethod"`
}

// StandardV2 is an instance of the Morpho Chainlink oracle V2 template, either
// confirmed by the factory or recognised by bytecode.
type StandardV2 struct {
	Feeds              StandardOracleFeeds `json:"feeds"`
	VerifiedByFactory  bool                `json:"verifiedByFactory"`
	VerificationMethod VerificationMethod  `json:"verificationMethod"`
}

// OracleSources are the resolved feeds of a meta-oracle's primary and backup.
type OracleSources struct {
	Primary *StandardOracleFeeds `json:"primary,omitempty"`
	Backup  *StandardOracleFeeds `json:"backup,omitempty"`
}

// MetaOracleDeviationTimelock wraps a primary/backup oracle pair.
type MetaOracleDeviationTimelock struct {
	Config        MetaOracleConfig `json:"config"`
	OracleSources *OracleSources   `json:"oracleSources,omitempty"`
}

// CustomAdapter is a known non-standard adapter implementation.
type CustomAdapter struct {
	AdapterID   string            `json:"adapterId"`
	AdapterName string            `json:"adapterName"`
	Feeds       *PartialFeeds     `json:"feeds,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Unknown is the successful "nothing recognised" outcome.
type Unknown struct {
	Reason string `json:"reason"`
}

func (StandardV1) Kind() ClassificationKind                  { return KindStandardV1 }
func (StandardV2) Kind() ClassificationKind                  { return KindStandardV2 }
func (MetaOracleDeviationTimelock) Kind() ClassificationKind { return KindMetaOracle }
func (CustomAdapter) Kind() ClassificationKind               { return KindCustomAdapter }
func (Unknown) Kind() ClassificationKind                     { return KindUnknown }

func (StandardV1) isClassification()                  {}
func (StandardV2) isClassification()                  {}
func (MetaOracleDeviationTimelock) isClassification() {}
func (CustomAdapter) isClassification()               {}
func (Unknown) isClassification()                     {}

// IsStandardTemplate reports whether c is a V1 or V2 template match. Such
// contracts are never proxies.
func IsStandardTemplate(c Classification) bool {
	switch c.(type) {
	case StandardV1, StandardV2:
		return true
	default:
		return false
	}
}

// IsStable reports whether c is kept across runs without re-resolution.
// Meta-oracles are stable in kind but still refreshed every run.
func IsStable(c Classification) bool {
	switch c.(type) {
	case StandardV1, StandardV2, MetaOracleDeviationTimelock:
		return true
	default:
		return false
	}
}

// StandardFeeds returns the feeds of a standard template classification.
func StandardFeeds(c Classification) (StandardOracleFeeds, bool) {
	switch v := c.(type) {
	case StandardV1:
		return v.Feeds, true
	case StandardV2:
		return v.Feeds, true
	default:
		return StandardOracleFeeds{}, false
	}
}

func (c StandardV1) MarshalJSON() ([]byte, error) {
	type alias StandardV1
	return json.Marshal(struct {
		Kind ClassificationKind `json:"kind"`
		alias
	}{KindStandardV1, alias(c)})
}

func (c StandardV2) MarshalJSON() ([]byte, error) {
	type alias StandardV2
	return json.Marshal(struct {
		Kind ClassificationKind `json:"kind"`
		alias
	}{KindStandardV2, alias(c)})
}

func (c MetaOracleDeviationTimelock) MarshalJSON() ([]byte, error) {
	type alias MetaOracleDeviationTimelock
	return json.Marshal(struct {
		Kind ClassificationKind `json:"kind"`
		alias
	}{KindMetaOracle, alias(c)})
}

func (c CustomAdapter) MarshalJSON() ([]byte, error) {
	type alias CustomAdapter
	return json.Marshal(struct {
		Kind ClassificationKind `json:"kind"`
		alias
	}{KindCustomAdapter, alias(c)})
}

func (c Unknown) MarshalJSON() ([]byte, error) {
	type alias Unknown
	return json.Marshal(struct {
		Kind ClassificationKind `json:"kind"`
		alias
	}{KindUnknown, alias(c)})
}

// UnmarshalClassification decodes a kind-tagged classification. JSON null
// decodes to a nil Classification.
func UnmarshalClassification(data []byte) (Classification, error) {
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	var head struct {
		Kind ClassificationKind `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("reading classification kind: %w", err)
	}

	switch head.Kind {
	case KindStandardV1:
		type alias StandardV1
		var v alias
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", head.Kind, err)
		}
		return StandardV1(v), nil
	case KindStandardV2:
		type alias StandardV2
		var v alias
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", head.Kind, err)
		}
		// Records written before verificationMethod existed.
		if v.VerificationMethod == "" {
			v.VerificationMethod = VerifiedByBytecode
			if v.VerifiedByFactory {
				v.VerificationMethod = VerifiedByFactory
			}
		}
		return StandardV2(v), nil
	case KindMetaOracle:
		type alias MetaOracleDeviationTimelock
		var v alias
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", head.Kind, err)
		}
		return MetaOracleDeviationTimelock(v), nil
	case KindCustomAdapter:
		type alias CustomAdapter
		var v alias
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", head.Kind, err)
		}
		return CustomAdapter(v), nil
	case KindUnknown:
		type alias Unknown
		var v alias
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", head.Kind, err)
		}
		return Unknown(v), nil
	default:
		return nil, fmt.Errorf("unknown classification kind %q", head.Kind)
	}
}
