package testutil

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/archon-research/stl/oracle-scanner/internal/pkg/bytecode"
)

// TemplateMaskOffsets are the masked offsets of the synthetic Morpho templates.
var TemplateMaskOffsets = func() []int {
	offsets := []int{5}
	for i := 40; i <= 71; i++ {
		offsets = append(offsets, i)
	}
	return offsets
}()

// TemplateFixture is a template set built from synthetic bytecode so tests
// can deploy genuine-looking template instances.
type TemplateFixture struct {
	Set *bytecode.TemplateSet

	v1Reference     []byte
	v2Reference     []byte
	pendleReference string
}

// NewTemplateFixture builds disjoint V1, V2 and Pendle templates.
func NewTemplateFixture(t *testing.T) TemplateFixture {
	t.Helper()

	v1 := syntheticCode(96, 0x01)
	v2 := syntheticCode(96, 0x02)

	pendle := pendleCode("11", "01")
	pendleMask := bytecode.Mask{Offsets: []int{36}, Fill: 0xff}
	pendleMask.Common = pendleMask.Apply(bytecode.Normalize(pendle))

	set, err := bytecode.NewTemplateSet(
		bytecode.Template{
			ID:   bytecode.TemplateMorphoChainlinkOracleV1,
			Mask: bytecode.Mask{Offsets: TemplateMaskOffsets, Common: toHex(mask(v1, 0))},
		},
		bytecode.Template{
			ID:   bytecode.TemplateMorphoChainlinkOracleV2,
			Mask: bytecode.Mask{Offsets: TemplateMaskOffsets, Common: toHex(mask(v2, 0))},
		},
		bytecode.Template{
			ID:        bytecode.TemplatePendleLinearDiscountFeed,
			Normalize: true,
			Mask:      pendleMask,
		},
	)
	if err != nil {
		t.Fatalf("building template fixture: %v", err)
	}

	return TemplateFixture{Set: set, v1Reference: v1, v2Reference: v2, pendleReference: pendle}
}

// V1Instance returns V1 bytecode whose masked offsets hold fill.
func (f TemplateFixture) V1Instance(fill byte) []byte {
	return mask(f.v1Reference, fill)
}

// V2Instance returns V2 bytecode whose masked offsets hold fill.
func (f TemplateFixture) V2Instance(fill byte) []byte {
	return mask(f.v2Reference, fill)
}

// PendleInstance returns Pendle feed bytecode with a different immutable and
// metadata byte than the reference.
func (f TemplateFixture) PendleInstance() []byte {
	code, _ := hex.DecodeString(strings.TrimPrefix(pendleCode("22", "02"), "0x"))
	return code
}

// syntheticCode returns n bytes seeded by first that never contain PUSH32.
func syntheticCode(n int, first byte) []byte {
	code := make([]byte, n)
	for i := range code {
		b := byte(i+int(first)) % 0x7e
		if b == 0 {
			b = 0x5b
		}
		code[i] = b
	}
	return code
}

// pendleCode is PUSH1 01, PUSH32 <immutable>, STOP, metadata.
func pendleCode(immutable, meta string) string {
	return "0x6001" + "7f" + strings.Repeat(immutable, 32) + "00" + meta
}

func mask(code []byte, fill byte) []byte {
	out := append([]byte(nil), code...)
	for _, off := range TemplateMaskOffsets {
		out[off] = fill
	}
	return out
}

func toHex(code []byte) string {
	return "0x" + hex.EncodeToString(code)
}
