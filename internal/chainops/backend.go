package chainops

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/fabhost/agent/infrastructure/chain"
)

// ChainBackend is the subset of *chain.Client an Operator needs. It exists
// so tests can inject a fake endpoint instead of dialing real JSON-RPC —
// *chain.Client satisfies it as-is, with no adapter required.
type ChainBackend interface {
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, msg chain.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	Close()
}

var _ ChainBackend = (*chain.Client)(nil)

// dialFunc is the hook Operator uses to obtain a ChainBackend for an
// endpoint URL. Production uses dialChain; tests override it to avoid real
// network dials.
type dialFunc func(ctx context.Context, cfg chain.Config) (ChainBackend, error)

func dialChain(ctx context.Context, cfg chain.Config) (ChainBackend, error) {
	return chain.NewClient(ctx, cfg)
}
