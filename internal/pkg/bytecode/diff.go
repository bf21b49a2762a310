package bytecode

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/core/vm"
)

// ErrLengthMismatch is returned when two deployments have different code sizes
// and therefore cannot be instances of the same template.
var ErrLengthMismatch = errors.New("bytecode length mismatch")

// DeriveMask diffs two known-genuine deployments of the same template byte by
// byte. Every differing offset is masked; when both deployments carry PUSH32 at
// the same offset and any operand byte differs, the whole 32-byte operand is
// masked. The returned Common is a masked with the result, and b masked with
// the same offsets is verified to reduce to it.
func DeriveMask(a, b string) (Mask, error) {
	bytesA, err := decode(a)
	if err != nil {
		return Mask{}, fmt.Errorf("first bytecode: %w", err)
	}
	bytesB, err := decode(b)
	if err != nil {
		return Mask{}, fmt.Errorf("second bytecode: %w", err)
	}
	if len(bytesA) != len(bytesB) {
		return Mask{}, fmt.Errorf("%w: %d vs %d bytes", ErrLengthMismatch, len(bytesA), len(bytesB))
	}

	seen := make(map[int]bool)
	var offsets []int
	add := func(i int) {
		if !seen[i] {
			seen[i] = true
			offsets = append(offsets, i)
		}
	}

	for i := 0; i < len(bytesA); {
		if bytesA[i] != bytesB[i] {
			add(i)
			i++
			continue
		}

		if vm.OpCode(bytesA[i]) == vm.PUSH32 {
			end := min(i+push32Operand, len(bytesA)-1)
			differs := false
			for j := i + 1; j <= end; j++ {
				if bytesA[j] != bytesB[j] {
					differs = true
					break
				}
			}
			if differs {
				for j := i + 1; j <= end; j++ {
					add(j)
				}
			}
			i += push32Operand + 1
			continue
		}

		i++
	}

	mask := Mask{Offsets: offsets}.sorted()
	mask.Common = mask.Apply(a)
	if mask.Apply(b) != mask.Common {
		return Mask{}, errors.New("bytecodes diverge after masking")
	}
	return mask, nil
}

// Push32Finding describes a PUSH32 whose operand is not fully masked.
type Push32Finding struct {
	Offset  int
	Operand string
	Partial bool
}

// UnmaskedPush32 lists PUSH32 instructions in mask.Common whose 32-byte operand
// is not entirely covered by the mask. Such operands are usually immutables the
// mask missed, and make the template fail on other deployments.
func UnmaskedPush32(mask Mask) []Push32Finding {
	m := mask.sorted()
	code, err := decode(m.Common)
	if err != nil {
		return nil
	}

	var findings []Push32Finding
	for i := 0; i < len(code); i++ {
		if vm.OpCode(code[i]) != vm.PUSH32 {
			continue
		}
		covered := 0
		for j := 1; j <= push32Operand; j++ {
			if m.Covers(i + j) {
				covered++
			}
		}
		if covered < push32Operand {
			end := min(i+1+push32Operand, len(code))
			findings = append(findings, Push32Finding{
				Offset:  i,
				Operand: hex.EncodeToString(code[i+1 : end]),
				Partial: covered > 0,
			})
		}
		i += push32Operand
	}
	return findings
}

func decode(s string) ([]byte, error) {
	body := strip0x(strings.ToLower(strings.TrimSpace(s)))
	if len(body)%2 != 0 {
		return nil, errors.New("hex string must have an even number of characters")
	}
	return hex.DecodeString(body)
}
