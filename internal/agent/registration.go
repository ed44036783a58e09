package agent

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fabhost/agent/internal/chainops"
	"github.com/fabhost/agent/internal/config"
)

var erc20ApproveABI = mustParseABI(`[{"name":"approve","type":"function","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}]`)

var registryABI = mustParseABI(`[
	{"name":"registerHost","type":"function","inputs":[
		{"name":"publicUrl","type":"string"},
		{"name":"models","type":"string[]"},
		{"name":"stake","type":"uint256"},
		{"name":"pricing","type":"tuple[]","components":[
			{"name":"modelId","type":"string"},
			{"name":"token","type":"address"},
			{"name":"price","type":"uint256"}
		]}
	],"outputs":[]},
	{"name":"setModelTokenPricing","type":"function","inputs":[
		{"name":"modelId","type":"string"},{"name":"token","type":"address"},{"name":"price","type":"uint256"}
	],"outputs":[]},
	{"name":"clearModelTokenPricing","type":"function","inputs":[
		{"name":"modelId","type":"string"},{"name":"token","type":"address"}
	],"outputs":[]}
]`)

var earningsABI = mustParseABI(`[
	{"name":"withdraw","type":"function","inputs":[{"name":"amount","type":"uint256"},{"name":"token","type":"address"}],"outputs":[]},
	{"name":"withdrawAll","type":"function","inputs":[{"name":"token","type":"address"}],"outputs":[]},
	{"name":"withdrawMultiple","type":"function","inputs":[{"name":"tokens","type":"address[]"}],"outputs":[]}
]`)

// PricingEntry mirrors config.PriceEntry but with the stake/price already
// resolved to on-chain base units, ready for ABI packing.
type PricingEntry struct {
	ModelID string
	Token   common.Address
	Price   *big.Int
}

// RegisterRequest is Register's input. Stake is in fabric-token base units
// and is passed unscaled to both the approval and the registerHost call.
type RegisterRequest struct {
	PublicURL string
	Models    []string
	Stake     *big.Int
	Pricing   []PricingEntry
}

// RegisterResult reports both legs of registration.
type RegisterResult struct {
	ApproveTxHash  string
	RegisterTxHash string
}

// Register bundles an ERC-20 approval for the stake amount with a
// registerHost call, per spec.md §4.4. The approval must land before the
// register call is sent since the registry contract pulls the stake via
// transferFrom.
func (a *Agent) Register(ctx context.Context, req RegisterRequest) (RegisterResult, error) {
	op, contracts, err := a.operatorAndContracts()
	if err != nil {
		return RegisterResult{}, err
	}

	approveData, err := erc20ApproveABI.Pack("approve", common.HexToAddress(contracts.Registry), req.Stake)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("agent: packing approve: %w", err)
	}
	approveResult, err := op.Send(ctx, common.HexToAddress(contracts.FabricToken), approveData, big.NewInt(0), chainops.RetryPolicy{})
	if err != nil {
		return RegisterResult{}, fmt.Errorf("agent: staking approval failed: %w", err)
	}

	pricingTuples := make([]struct {
		ModelId string
		Token   common.Address
		Price   *big.Int
	}, len(req.Pricing))
	for i, p := range req.Pricing {
		pricingTuples[i] = struct {
			ModelId string
			Token   common.Address
			Price   *big.Int
		}{ModelId: p.ModelID, Token: p.Token, Price: p.Price}
	}
	registerData, err := registryABI.Pack("registerHost", req.PublicURL, req.Models, req.Stake, pricingTuples)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("agent: packing registerHost: %w", err)
	}
	registerResult, err := op.Send(ctx, common.HexToAddress(contracts.Registry), registerData, big.NewInt(0), chainops.RetryPolicy{})
	if err != nil {
		return RegisterResult{}, fmt.Errorf("agent: registration failed: %w", err)
	}

	a.bus.publish(Event{Kind: EventRegistered, At: time.Now(), TxHash: registerResult.TxHash})
	return RegisterResult{ApproveTxHash: approveResult.TxHash, RegisterTxHash: registerResult.TxHash}, nil
}

// UpdatePricing sets the minimum price per million tokens this operator
// will accept for modelId paid in token. Passing a nil price clears the
// override instead, falling back to the registry default.
func (a *Agent) UpdatePricing(ctx context.Context, modelID string, token common.Address, pricePerMillionTokens *big.Int) error {
	op, contracts, err := a.operatorAndContracts()
	if err != nil {
		return err
	}
	var data []byte
	if pricePerMillionTokens == nil {
		data, err = registryABI.Pack("clearModelTokenPricing", modelID, token)
	} else {
		data, err = registryABI.Pack("setModelTokenPricing", modelID, token, pricePerMillionTokens)
	}
	if err != nil {
		return fmt.Errorf("agent: packing pricing update: %w", err)
	}
	result, err := op.Send(ctx, common.HexToAddress(contracts.Registry), data, big.NewInt(0), chainops.RetryPolicy{})
	if err != nil {
		return err
	}
	a.bus.publish(Event{Kind: EventPricingChanged, At: time.Now(), ModelID: modelID, TokenID: token.Hex(), TxHash: result.TxHash})
	return nil
}

// WithdrawResult reports the transaction(s) a Withdraw call submitted.
type WithdrawResult struct {
	TxHashes []string
}

// Withdraw pulls accrued earnings for each token in tokens. A single
// withdrawMultiple transaction is used when more than one token is
// requested; a lone token uses withdrawAll, matching spec.md §4.4's
// "batch where the chain supports it" rule.
func (a *Agent) Withdraw(ctx context.Context, tokens []common.Address) (WithdrawResult, error) {
	op, contracts, err := a.operatorAndContracts()
	if err != nil {
		return WithdrawResult{}, err
	}
	if len(tokens) == 0 {
		return WithdrawResult{}, nil
	}

	earnings := common.HexToAddress(contracts.Earnings)
	var hashes []string

	if len(tokens) > 1 {
		data, packErr := earningsABI.Pack("withdrawMultiple", tokens)
		if packErr != nil {
			return WithdrawResult{}, fmt.Errorf("agent: packing withdrawMultiple: %w", packErr)
		}
		result, sendErr := op.Send(ctx, earnings, data, big.NewInt(0), chainops.RetryPolicy{})
		if sendErr != nil {
			return WithdrawResult{}, sendErr
		}
		hashes = append(hashes, result.TxHash)
	} else {
		data, packErr := earningsABI.Pack("withdrawAll", tokens[0])
		if packErr != nil {
			return WithdrawResult{}, fmt.Errorf("agent: packing withdrawAll: %w", packErr)
		}
		result, sendErr := op.Send(ctx, earnings, data, big.NewInt(0), chainops.RetryPolicy{})
		if sendErr != nil {
			return WithdrawResult{}, sendErr
		}
		hashes = append(hashes, result.TxHash)
	}

	a.bus.publish(Event{Kind: EventWithdrawn, At: time.Now(), TxHash: hashes[len(hashes)-1]})
	return WithdrawResult{TxHashes: hashes}, nil
}

func (a *Agent) operatorAndContracts() (*chainops.Operator, config.ContractAddresses, error) {
	return newChainAdapter(a).operator()
}
