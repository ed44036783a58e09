package agent

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/fabhost/agent/infrastructure/chain"
	"github.com/fabhost/agent/internal/chainops"
)

var erc20BalanceOfABI = mustParseABI(`[{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}]`)

func mustParseABI(raw string) abi.ABI {
	a, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("agent: invalid embedded ABI: %v", err))
	}
	return a
}

// StartRequirementsMonitor launches the background balance-sampling loop
// described by spec.md §4.4: native and fabric-token balances polled on
// reqCfg.PollInterval and cached for CacheTTL, emitting RequirementsChanged
// only when the met/unmet boundary is crossed.
func (a *Agent) StartRequirementsMonitor(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(a.reqCfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-a.stopReqLoop:
				return
			case <-ticker.C:
				a.sampleRequirements(ctx)
			}
		}
	}()
}

func (a *Agent) sampleRequirements(ctx context.Context) {
	a.mu.RLock()
	w := a.wallet
	op := a.op
	cfg := a.cfg
	a.mu.RUnlock()
	if w == nil || op == nil {
		return
	}

	native, err := op.BalanceAt(ctx, w.Address())
	if err != nil {
		a.bus.publish(Event{Kind: EventError, At: time.Now(), Err: err})
		return
	}
	fabric, err := a.tokenBalance(ctx, op, cfg.Contracts.FabricToken, w.Address())
	if err != nil {
		a.bus.publish(Event{Kind: EventError, At: time.Now(), Err: err})
		return
	}

	var reasons []string
	nativeF := weiToEther(native)
	fabricF := weiToEther(fabric)
	if nativeF < a.reqCfg.MinNative {
		reasons = append(reasons, fmt.Sprintf("native balance %.4f below minimum %.4f", nativeF, a.reqCfg.MinNative))
	}
	if fabricF < a.reqCfg.MinFabric {
		reasons = append(reasons, fmt.Sprintf("fabric balance %.4f below minimum %.4f", fabricF, a.reqCfg.MinFabric))
	}
	met := len(reasons) == 0

	a.reqMu.Lock()
	hadSample := !a.lastReq.at.IsZero()
	wasMet := a.lastReq.met
	a.lastReq = requirementsSnapshot{
		at:      time.Now(),
		met:     met,
		reasons: reasons,
		balances: map[string]string{
			"native": native.String(),
			"fabric": fabric.String(),
		},
	}
	crossed := hadSample && wasMet != met
	a.reqMu.Unlock()

	a.bus.publish(Event{Kind: EventBalanceChanged, At: time.Now(), Balances: map[string]string{
		"native": native.String(),
		"fabric": fabric.String(),
	}})
	if crossed {
		a.bus.publish(Event{Kind: EventRequirementsChanged, At: time.Now(), RequirementsMet: met, Reasons: reasons})
	}
}

// Balances returns the last sampled balances if within CacheTTL, otherwise
// samples fresh.
func (a *Agent) Balances(ctx context.Context) (map[string]string, error) {
	a.reqMu.Lock()
	fresh := !a.lastReq.at.IsZero() && time.Since(a.lastReq.at) < a.reqCfg.CacheTTL
	balances := a.lastReq.balances
	a.reqMu.Unlock()
	if fresh && balances != nil {
		return balances, nil
	}
	a.sampleRequirements(ctx)
	a.reqMu.Lock()
	defer a.reqMu.Unlock()
	return a.lastReq.balances, nil
}

func (a *Agent) tokenBalance(ctx context.Context, op *chainops.Operator, tokenAddr string, account common.Address) (*big.Int, error) {
	data, err := erc20BalanceOfABI.Pack("balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("agent: packing balanceOf: %w", err)
	}
	to := common.HexToAddress(tokenAddr)
	out, err := op.Call(ctx, chain.CallMsg{To: &to, Data: data})
	if err != nil {
		return nil, err
	}
	var result *big.Int
	if err := erc20BalanceOfABI.UnpackIntoInterface(&result, "balanceOf", out); err != nil {
		return nil, fmt.Errorf("agent: unpacking balanceOf: %w", err)
	}
	return result, nil
}

func weiToEther(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f := new(big.Float).SetInt(v)
	f.Quo(f, big.NewFloat(1e18))
	out, _ := f.Float64()
	return out
}
