package bytecode

import (
	"fmt"
	"slices"
	"strings"
)

// Mask is the set of byte offsets that may differ between genuine instances of
// a template, plus the canonical bytecode obtained by filling those offsets in
// a reference deployment.
type Mask struct {
	// Offsets are byte (not hex character) offsets. Out-of-range offsets are ignored.
	Offsets []int

	// Common is the canonical masked bytecode, lowercase and 0x-prefixed.
	// An empty or "0x" Common never matches anything.
	Common string

	// Fill is the byte written at masked offsets. Zero value means 0x00.
	Fill byte
}

// IsSet reports whether the mask has a usable canonical bytecode.
func (m Mask) IsSet() bool {
	return m.Common != "" && m.Common != "0x"
}

// Apply writes the fill byte at every in-range offset of the lowercase hex body
// (with or without 0x) and returns the 0x-prefixed result.
func (m Mask) Apply(bytecode string) string {
	body := []byte(strip0x(strings.ToLower(bytecode)))
	fill := fmt.Sprintf("%02x", m.Fill)
	nbytes := len(body) / 2

	for _, off := range m.Offsets {
		if off < 0 || off >= nbytes {
			continue
		}
		body[2*off] = fill[0]
		body[2*off+1] = fill[1]
	}

	return "0x" + string(body)
}

// Covers reports whether offset is masked.
func (m Mask) Covers(offset int) bool {
	_, found := slices.BinarySearch(m.Offsets, offset)
	return found
}

// sorted returns a copy of m with ascending, de-duplicated offsets.
func (m Mask) sorted() Mask {
	offsets := slices.Clone(m.Offsets)
	slices.Sort(offsets)
	m.Offsets = slices.Compact(offsets)
	m.Common = strings.ToLower(m.Common)
	return m
}
