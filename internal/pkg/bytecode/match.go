package bytecode

import "strings"

// IsMatch reports whether deployed bytecode is an instance of the template
// described by mask: masked offsets are overwritten and the result must equal
// mask.Common exactly. PUSH32 operands are not normalized on this path; the
// mask is expected to cover them.
//
// It returns false when the template is unset or deployed is not 0x-prefixed.
func IsMatch(deployed string, mask Mask) bool {
	if !mask.IsSet() {
		return false
	}
	lower := strings.ToLower(deployed)
	if !strings.HasPrefix(lower, "0x") {
		return false
	}
	return mask.Apply(lower) == mask.Common
}

// IsNormalizedMatch runs Normalize before applying the mask, for templates
// whose masks were derived over normalized bytecode.
func IsNormalizedMatch(deployed string, mask Mask) bool {
	if !mask.IsSet() {
		return false
	}
	return mask.Apply(Normalize(deployed)) == mask.Common
}
