// Package bytecode recognises deployed contracts as instances of known compiled
// templates.
//
// Two techniques are combined. Normalize zeroes the 32-byte operand of every
// PUSH32 instruction, which is where constructor-injected immutables live. A
// Mask then enumerates the remaining byte offsets that may legitimately differ
// between genuine deployments (compiler metadata, narrower immutables) together
// with the canonical masked bytecode every genuine instance reduces to.
//
// Masks are derived offline with DeriveMask (see cmd/generate-mask) and loaded
// as static template data; the scanner only ever applies them.
package bytecode

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/core/vm"
)

// push32Operand is the operand width of PUSH32, in bytes.
const push32Operand = 32

var (
	push32Hex  = fmt.Sprintf("%02x", byte(vm.PUSH32))
	zeroedWord = strings.Repeat("00", push32Operand)
)

// Normalize lowercases bytecode and replaces the operand of every complete
// PUSH32 instruction with zero bytes. A PUSH32 with fewer than 32 bytes left
// is copied through untouched, as are all other opcodes including narrower
// PUSHn. The result is always 0x-prefixed.
//
// Normalize is idempotent.
func Normalize(bytecode string) string {
	body := strip0x(strings.ToLower(bytecode))

	var b strings.Builder
	b.Grow(len(body) + 2)
	b.WriteString("0x")

	for i := 0; i < len(body); {
		end := min(i+2, len(body))
		op := body[i:end]
		b.WriteString(op)
		i = end

		if op == push32Hex && i+2*push32Operand <= len(body) {
			b.WriteString(zeroedWord)
			i += 2 * push32Operand
		}
	}

	return b.String()
}

func strip0x(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s[2:]
	}
	return s
}
