package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Address is a lowercase, 0x-prefixed account address. The empty Address means
// "no address" and encodes as JSON null.
type Address string

// ZeroAddress is the canonical all-zero address.
const ZeroAddress Address = "0x0000000000000000000000000000000000000000"

// NewAddress validates and canonicalises a hex address.
func NewAddress(s string) (Address, error) {
	if !common.IsHexAddress(s) {
		return "", fmt.Errorf("invalid address %q", s)
	}
	return AddressFromCommon(common.HexToAddress(s)), nil
}

// MustAddress is NewAddress for constants and tests.
func MustAddress(s string) Address {
	a, err := NewAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AddressFromCommon canonicalises a go-ethereum address.
func AddressFromCommon(a common.Address) Address {
	return Address(strings.ToLower(a.Hex()))
}

// NullableAddress maps the zero address to the empty Address.
func NullableAddress(a common.Address) Address {
	if a == (common.Address{}) {
		return ""
	}
	return AddressFromCommon(a)
}

// Common converts to a go-ethereum address.
func (a Address) Common() common.Address {
	return common.HexToAddress(string(a))
}

// IsZero reports whether a is unset or the all-zero address.
func (a Address) IsZero() bool {
	return a == "" || a == ZeroAddress
}

func (a Address) MarshalJSON() ([]byte, error) {
	if a == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(a))
}

func (a *Address) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*a = ""
		return nil
	}
	parsed, err := NewAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
