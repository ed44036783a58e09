// Package config owns the agent's durable state: OperatorConfig, the
// failed-transaction log, and the proof history, plus the load/save/migrate
// machinery that keeps them consistent across restarts.
package config

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// BigInt wraps math/big.Int so every durable field holding a token count,
// wei amount, or price marshals as a tagged envelope instead of a bare JSON
// number, which would silently lose precision above 2^53.
type BigInt struct {
	*big.Int
}

// NewBigInt wraps v. A nil v produces a BigInt whose Int is nil; callers
// should prefer ZeroBigInt() when they want an explicit zero.
func NewBigInt(v *big.Int) BigInt {
	return BigInt{Int: v}
}

// ZeroBigInt returns a BigInt wrapping 0.
func ZeroBigInt() BigInt {
	return BigInt{Int: big.NewInt(0)}
}

// BigIntFromString parses a base-10 string into a BigInt.
func BigIntFromString(s string) (BigInt, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return BigInt{}, fmt.Errorf("config: %q is not a valid base-10 integer", s)
	}
	return BigInt{Int: v}, nil
}

type bigIntEnvelope struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// MarshalJSON encodes b as {"type":"BigInt","value":"<decimal>"}.
func (b BigInt) MarshalJSON() ([]byte, error) {
	v := b.Int
	if v == nil {
		v = big.NewInt(0)
	}
	return json.Marshal(bigIntEnvelope{Type: "BigInt", Value: v.String()})
}

// UnmarshalJSON decodes the {"type":"BigInt","value":"<decimal>"} envelope.
// It also accepts a bare JSON number or string for forward compatibility
// with hand-edited config files.
func (b *BigInt) UnmarshalJSON(data []byte) error {
	var env bigIntEnvelope
	if err := json.Unmarshal(data, &env); err == nil && env.Value != "" {
		v, ok := new(big.Int).SetString(env.Value, 10)
		if !ok {
			return fmt.Errorf("config: BigInt envelope has invalid value %q", env.Value)
		}
		b.Int = v
		return nil
	}

	var raw string
	if err := json.Unmarshal(data, &raw); err == nil {
		v, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return fmt.Errorf("config: BigInt string %q is not a valid integer", raw)
		}
		b.Int = v
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("config: cannot decode BigInt from %s", data)
	}
	v, ok := new(big.Int).SetString(n.String(), 10)
	if !ok {
		return fmt.Errorf("config: BigInt number %q is not a valid integer", n.String())
	}
	b.Int = v
	return nil
}

// IsZero reports whether b is nil or wraps zero.
func (b BigInt) IsZero() bool {
	return b.Int == nil || b.Int.Sign() == 0
}
