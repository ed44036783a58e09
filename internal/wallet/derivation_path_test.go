package wallet

import "testing"

func TestParseDerivationPath_Standard(t *testing.T) {
	segments, err := parseDerivationPath("m/44'/60'/0'/0/0")
	if err != nil {
		t.Fatalf("parseDerivationPath() error = %v", err)
	}
	want := []uint32{
		44 + hardenedOffset,
		60 + hardenedOffset,
		0 + hardenedOffset,
		0,
		0,
	}
	if len(segments) != len(want) {
		t.Fatalf("got %d segments, want %d", len(segments), len(want))
	}
	for i := range want {
		if segments[i] != want[i] {
			t.Errorf("segment %d = %d, want %d", i, segments[i], want[i])
		}
	}
}

func TestParseDerivationPath_InvalidComponent(t *testing.T) {
	if _, err := parseDerivationPath("m/44'/not-a-number/0'/0/0"); err == nil {
		t.Error("expected error for non-numeric component")
	}
}

func TestParseDerivationPath_Empty(t *testing.T) {
	if _, err := parseDerivationPath(""); err == nil {
		t.Error("expected error for empty path")
	}
}
