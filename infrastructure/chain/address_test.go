package chain

import "testing"

func TestNormalizeContractAddress(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase with prefix", "0x1234567890123456789012345678901234567890", "1234567890123456789012345678901234567890"},
		{"uppercase prefix", "0X1234567890ABCDEF1234567890ABCDEF12345678", "1234567890abcdef1234567890abcdef12345678"},
		{"no prefix", "1234567890123456789012345678901234567890", "1234567890123456789012345678901234567890"},
		{"whitespace padded", "  0x1234567890123456789012345678901234567890  ", "1234567890123456789012345678901234567890"},
		{"too short", "0x1234", ""},
		{"too long", "0x12345678901234567890123456789012345678900", ""},
		{"non-hex characters", "0x123456789012345678901234567890123456789g", ""},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeContractAddress(tc.in); got != tc.want {
				t.Errorf("NormalizeContractAddress(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
