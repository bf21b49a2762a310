package entity

import (
	"encoding/json"
	"fmt"
	"time"
)

// ProxyType is the detected proxy pattern.
type ProxyType string

const (
	ProxyTypeEIP1967 ProxyType = "EIP1967"
	ProxyTypeBeacon  ProxyType = "Beacon"
	ProxyTypeUnknown ProxyType = "Unknown"
)

// ImplementationChange is one entry of a proxy's upgrade audit trail: the
// implementation that was replaced and when it was last observed.
type ImplementationChange struct {
	Address    Address   `json:"address"`
	DetectedAt time.Time `json:"detectedAt"`
}

// ProxyState is either a terminal NonProxy observation (IsProxy false) or a
// mutable Proxy record (IsProxy true). Construct it with NewNonProxyState or
// NewProxyState; it is only mutated by the proxy detector.
type ProxyState struct {
	IsProxy bool `json:"isProxy"`

	// NonProxy.
	LastProxyScanAt *time.Time `json:"lastProxyScanAt,omitempty"`

	// Proxy.
	ProxyType               ProxyType              `json:"proxyType,omitempty"`
	Implementation          Address                `json:"implementation,omitempty"`
	Beacon                  Address                `json:"beacon,omitempty"`
	Admin                   Address                `json:"admin,omitempty"`
	LastImplScanAt          *time.Time             `json:"lastImplScanAt,omitempty"`
	LastImplChangeAt        *time.Time             `json:"lastImplChangeAt,omitempty"`
	PreviousImplementations []ImplementationChange `json:"previousImplementations,omitempty"`
}

// NewNonProxyState records that the contract was not a proxy at scannedAt.
func NewNonProxyState(scannedAt time.Time) *ProxyState {
	at := scannedAt.UTC()
	return &ProxyState{LastProxyScanAt: &at}
}

// NewProxyState records a freshly detected proxy.
func NewProxyState(proxyType ProxyType, implementation, beacon, admin Address, scannedAt time.Time) *ProxyState {
	at := scannedAt.UTC()
	return &ProxyState{
		IsProxy:        true,
		ProxyType:      proxyType,
		Implementation: implementation,
		Beacon:         beacon,
		Admin:          admin,
		LastImplScanAt: &at,
	}
}

// Clone returns a deep copy.
func (p *ProxyState) Clone() *ProxyState {
	if p == nil {
		return nil
	}
	c := *p
	c.LastProxyScanAt = cloneTime(p.LastProxyScanAt)
	c.LastImplScanAt = cloneTime(p.LastImplScanAt)
	c.LastImplChangeAt = cloneTime(p.LastImplChangeAt)
	if p.PreviousImplementations != nil {
		c.PreviousImplementations = append([]ImplementationChange(nil), p.PreviousImplementations...)
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// ContractState is the accumulated knowledge about one (chain, address).
type ContractState struct {
	FirstSeenAt    time.Time      `json:"firstSeenAt"`
	LastSeenAt     time.Time      `json:"lastSeenAt"`
	Proxy          *ProxyState    `json:"proxy"`
	Classification Classification `json:"-"`
}

// NewContractState creates the state of a first observation.
func NewContractState(now time.Time) *ContractState {
	now = now.UTC()
	return &ContractState{FirstSeenAt: now, LastSeenAt: now}
}

// Touch advances LastSeenAt. It never moves backwards.
func (c *ContractState) Touch(now time.Time) {
	now = now.UTC()
	if now.After(c.LastSeenAt) {
		c.LastSeenAt = now
	}
}

// IsUpgradable reports whether the contract is a known proxy.
func (c *ContractState) IsUpgradable() bool {
	return c.Proxy != nil && c.Proxy.IsProxy
}

// Implementation returns the current proxy implementation, if any.
func (c *ContractState) Implementation() Address {
	if !c.IsUpgradable() {
		return ""
	}
	return c.Proxy.Implementation
}

type contractStateJSON struct {
	FirstSeenAt    time.Time       `json:"firstSeenAt"`
	LastSeenAt     time.Time       `json:"lastSeenAt"`
	Proxy          *ProxyState     `json:"proxy"`
	Classification json.RawMessage `json:"classification"`
}

func (c ContractState) MarshalJSON() ([]byte, error) {
	raw := json.RawMessage("null")
	if c.Classification != nil {
		b, err := json.Marshal(c.Classification)
		if err != nil {
			return nil, fmt.Errorf("encoding classification: %w", err)
		}
		raw = b
	}
	return json.Marshal(contractStateJSON{
		FirstSeenAt:    c.FirstSeenAt,
		LastSeenAt:     c.LastSeenAt,
		Proxy:          c.Proxy,
		Classification: raw,
	})
}

func (c *ContractState) UnmarshalJSON(data []byte) error {
	var raw contractStateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	classification, err := UnmarshalClassification(raw.Classification)
	if err != nil {
		return err
	}
	c.FirstSeenAt = raw.FirstSeenAt
	c.LastSeenAt = raw.LastSeenAt
	c.Proxy = raw.Proxy
	c.Classification = classification
	return nil
}
