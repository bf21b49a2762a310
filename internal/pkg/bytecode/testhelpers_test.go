package bytecode

import (
	"encoding/hex"
	"strings"
)

// syntheticCode returns n bytes of code with byte i set to i+1. It never
// contains PUSH32 for n < 126.
func syntheticCode(n int) []byte {
	code := make([]byte, n)
	for i := range code {
		code[i] = byte(i + 1)
	}
	return code
}

func toHex(code []byte) string {
	return "0x" + hex.EncodeToString(code)
}

func offsetRange(from, to int) []int {
	var out []int
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func fillBytes(code []byte, offsets []int, v byte) []byte {
	out := append([]byte(nil), code...)
	for _, off := range offsets {
		out[off] = v
	}
	return out
}

func repeatHex(b string, n int) string {
	return strings.Repeat(b, n)
}
