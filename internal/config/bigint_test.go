package config

import (
	"encoding/json"
	"math/big"
	"testing"
)

func TestBigInt_MarshalJSON(t *testing.T) {
	b := NewBigInt(big.NewInt(123456789))
	data, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"type":"BigInt","value":"123456789"}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}
}

func TestBigInt_UnmarshalJSON_Envelope(t *testing.T) {
	var b BigInt
	err := json.Unmarshal([]byte(`{"type":"BigInt","value":"42"}`), &b)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if b.Int.Cmp(big.NewInt(42)) != 0 {
		t.Errorf("got %s, want 42", b.Int.String())
	}
}

func TestBigInt_UnmarshalJSON_BareString(t *testing.T) {
	var b BigInt
	if err := json.Unmarshal([]byte(`"99"`), &b); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if b.Int.Cmp(big.NewInt(99)) != 0 {
		t.Errorf("got %s, want 99", b.Int.String())
	}
}

func TestBigInt_UnmarshalJSON_BareNumber(t *testing.T) {
	var b BigInt
	if err := json.Unmarshal([]byte(`7`), &b); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if b.Int.Cmp(big.NewInt(7)) != 0 {
		t.Errorf("got %s, want 7", b.Int.String())
	}
}

func TestBigInt_RoundTrip(t *testing.T) {
	original := NewBigInt(big.NewInt(9_000_000_000_000))
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded BigInt
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded.Int.Cmp(original.Int) != 0 {
		t.Errorf("roundtrip mismatch: got %s, want %s", decoded.Int.String(), original.Int.String())
	}
}

func TestBigInt_IsZero(t *testing.T) {
	if !(BigInt{}).IsZero() {
		t.Error("zero-value BigInt should report IsZero")
	}
	if !ZeroBigInt().IsZero() {
		t.Error("ZeroBigInt() should report IsZero")
	}
	if NewBigInt(big.NewInt(1)).IsZero() {
		t.Error("BigInt(1) should not report IsZero")
	}
}

func TestBigIntFromString_Invalid(t *testing.T) {
	if _, err := BigIntFromString("not-a-number"); err == nil {
		t.Error("expected error for non-numeric string")
	}
}
