package agent

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fabhost/agent/infrastructure/chain"
)

var earningsBalanceABI = mustParseABI(`[{"name":"getBalances","type":"function","inputs":[{"name":"host","type":"address"},{"name":"tokens","type":"address[]"}],"outputs":[{"name":"","type":"uint256[]"}]}]`)

// Earnings reads this operator's accrued, unwithdrawn balance per token from
// the Earnings contract. Unlike Balances (wallet holdings sampled for the
// requirements monitor), these funds sit in the contract until Withdraw
// moves them.
func (a *Agent) Earnings(ctx context.Context) (map[string]string, error) {
	op, contracts, err := newChainAdapter(a).operator()
	if err != nil {
		return nil, err
	}
	w := a.Wallet()
	if w == nil {
		return nil, fmt.Errorf("agent: not authenticated")
	}

	tokens := []common.Address{
		common.HexToAddress(contracts.FabricToken),
		common.HexToAddress(contracts.StableToken),
	}
	data, err := earningsBalanceABI.Pack("getBalances", w.Address(), tokens)
	if err != nil {
		return nil, fmt.Errorf("agent: packing getBalances: %w", err)
	}
	to := common.HexToAddress(contracts.Earnings)
	out, err := op.Call(ctx, chain.CallMsg{To: &to, Data: data})
	if err != nil {
		return nil, err
	}
	var balances []*big.Int
	if err := earningsBalanceABI.UnpackIntoInterface(&balances, "getBalances", out); err != nil {
		return nil, fmt.Errorf("agent: unpacking getBalances: %w", err)
	}
	if len(balances) != len(tokens) {
		return nil, fmt.Errorf("agent: getBalances returned %d values, expected %d", len(balances), len(tokens))
	}

	return map[string]string{
		"fabric": balances[0].String(),
		"stable": balances[1].String(),
	}, nil
}
