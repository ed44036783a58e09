package chainops

import (
	"context"
	"math/big"
)

// GasPrice is what suggestGas returns: either EIP-1559 tip+cap fields or a
// legacy GasPrice, never both.
type GasPrice struct {
	TipCap   *big.Int // EIP-1559 max priority fee per gas
	FeeCap   *big.Int // EIP-1559 max fee per gas
	GasPrice *big.Int // legacy gas price, set only when TipCap/FeeCap are nil
}

// IsDynamic reports whether this quote uses EIP-1559 fields.
func (g GasPrice) IsDynamic() bool {
	return g.TipCap != nil && g.FeeCap != nil
}

// suggestGas asks the node for a gas price, preferring EIP-1559 when the
// latest header carries a base fee and falling back to the legacy
// eth_gasPrice call on chains that predate the fork.
func suggestGas(ctx context.Context, c ChainBackend) (GasPrice, error) {
	head, err := c.HeaderByNumber(ctx, nil)
	if err != nil {
		return GasPrice{}, err
	}

	if head.BaseFee != nil {
		tip, err := c.SuggestGasTipCap(ctx)
		if err != nil {
			return GasPrice{}, err
		}
		feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
		if feeCap.Cmp(tip) < 0 {
			feeCap = new(big.Int).Set(tip)
		}
		return GasPrice{TipCap: tip, FeeCap: feeCap}, nil
	}

	price, err := c.SuggestGasPrice(ctx)
	if err != nil {
		return GasPrice{}, err
	}
	return GasPrice{GasPrice: price}, nil
}

// bumped scales a gas price by multiplier, applied on every retry attempt
// after the first so a resubmitted transaction out-bids the one it replaces.
func (g GasPrice) bumped(multiplier float64) GasPrice {
	if multiplier <= 0 {
		multiplier = 1
	}
	scale := func(v *big.Int) *big.Int {
		if v == nil {
			return nil
		}
		f := new(big.Float).SetInt(v)
		f.Mul(f, big.NewFloat(multiplier))
		out, _ := f.Int(nil)
		return out
	}
	if g.IsDynamic() {
		return GasPrice{TipCap: scale(g.TipCap), FeeCap: scale(g.FeeCap)}
	}
	return GasPrice{GasPrice: scale(g.GasPrice)}
}

// gasForAttempt returns the gas price to use for the given 1-indexed retry
// attempt, bumping by policy.GasPriceMultiplier for every attempt beyond the
// first.
func gasForAttempt(ctx context.Context, c ChainBackend, p RetryPolicy, attempt int) (GasPrice, error) {
	base, err := suggestGas(ctx, c)
	if err != nil {
		return GasPrice{}, err
	}
	if attempt <= 1 {
		return base, nil
	}
	mult := p.GasPriceMultiplier
	if mult <= 0 {
		mult = 1.1
	}
	result := base
	for i := 1; i < attempt; i++ {
		result = result.bumped(mult)
	}
	return result, nil
}
