package bytecode

import "testing"

func TestNormalize(t *testing.T) {
	operand := repeatHex("ab", 32)
	zeros := repeatHex("00", 32)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "zeroes push32 operand",
			input: "0x6001" + "7f" + operand + "00",
			want:  "0x6001" + "7f" + zeros + "00",
		},
		{
			name:  "two push32 instructions",
			input: "0x7f" + operand + "7f" + operand,
			want:  "0x7f" + zeros + "7f" + zeros,
		},
		{
			name:  "lowercases and adds prefix",
			input: "7F" + repeatHex("AB", 32) + "FE",
			want:  "0x7f" + zeros + "fe",
		},
		{
			name:  "truncated push32 passes through",
			input: "0x60017f" + repeatHex("cd", 10),
			want:  "0x60017f" + repeatHex("cd", 10),
		},
		{
			name:  "narrower push untouched",
			input: "0x73" + repeatHex("11", 20) + "00",
			want:  "0x73" + repeatHex("11", 20) + "00",
		},
		{
			name:  "empty",
			input: "0x",
			want:  "0x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"0x",
		"0x6080604052",
		"0x7f" + repeatHex("ff", 32) + "7f" + repeatHex("12", 31),
		"0X7F" + repeatHex("Ab", 40),
		"0x7f7f" + repeatHex("7f", 64),
		"0xabc",
	}

	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}
