// Package chainops is the shared transaction engine: every read or write
// against the chain flows through here, so retry, backoff, RPC failover,
// circuit breaking, and gas strategy live in one place instead of being
// reimplemented at each call site.
package chainops

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/fabhost/agent/infrastructure/chain"
	"github.com/fabhost/agent/infrastructure/logging"
	"github.com/fabhost/agent/infrastructure/resilience"
	"github.com/fabhost/agent/internal/chainerr"
	"github.com/fabhost/agent/internal/config"
	"github.com/fabhost/agent/internal/wallet"
)

// Signer abstracts the key material an Operator signs transactions with, so
// tests can supply a wallet.Wallet or any future HSM-backed implementation.
type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// walletSigner adapts *wallet.Wallet to Signer using go-ethereum's London
// signer, matching the EIP-1559 gas strategy gas.go already assumes.
type walletSigner struct {
	w *wallet.Wallet
}

func (s walletSigner) Address() common.Address { return s.w.Address() }

func (s walletSigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signer := types.NewLondonSigner(chainID)
	return types.SignTx(tx, signer, s.w.PrivateKey)
}

// NewWalletSigner wraps w as a Signer.
func NewWalletSigner(w *wallet.Wallet) Signer { return walletSigner{w: w} }

// defaultDuplicateSettlementSubstring is checked case-insensitively against
// a reverted call's reason. Replaying a settlement already recorded
// on-chain (e.g. after a crash restart) is an expected no-op, not a
// failure — see SPEC_FULL.md §9's duplicate-settlement resolution.
const defaultDuplicateSettlementSubstring = "session already completed"

// OperatorConfig configures an Operator.
type OperatorConfig struct {
	Pool          *chain.RPCPool
	ChainID       *big.Int
	Signer        Signer
	Breaker       *resilience.CircuitBreaker
	FailedTxs     *config.FailedTransactionLog
	DefaultPolicy RetryPolicy
	GasLimit      uint64 // used when a caller does not estimate one
	Logger        *logging.Logger

	// DuplicateSettlementSubstring overrides the default substring matched
	// against a revert reason to classify it as a success-equivalent
	// duplicate rather than a fatal chainerr.Revert.
	DuplicateSettlementSubstring string
}

// Operator is the single place every on-chain read or write passes through:
// RPC failover, circuit breaking, retry/backoff, gas strategy, and nonce
// assignment are all centralized here so a contract-specific adapter (built
// in internal/agent) only needs to supply call data.
type Operator struct {
	pool               *chain.RPCPool
	chainID            *big.Int
	signer             Signer
	breaker            *resilience.CircuitBreaker
	failedTxs          *config.FailedTransactionLog
	nonces             *NonceTracker
	policy             RetryPolicy
	gasLimit           uint64
	logger             *logging.Logger
	queueCh            chan TxQueueEntry
	dial               dialFunc
	duplicateSubstring string
}

// NewOperator builds an Operator. cfg.Pool, cfg.ChainID, and cfg.Signer are
// required; the rest fall back to sensible defaults.
func NewOperator(cfg OperatorConfig) (*Operator, error) {
	if cfg.Pool == nil {
		return nil, fmt.Errorf("chainops: RPC pool required")
	}
	if cfg.ChainID == nil {
		return nil, fmt.Errorf("chainops: chain ID required")
	}
	if cfg.Signer == nil {
		return nil, fmt.Errorf("chainops: signer required")
	}
	breaker := cfg.Breaker
	if breaker == nil {
		breaker = resilience.New(DefaultCircuitBreakerConfig())
	}
	policy := cfg.DefaultPolicy
	if policy.MaxAttempts == 0 {
		policy = DefaultRetryPolicy()
	}
	gasLimit := cfg.GasLimit
	if gasLimit == 0 {
		gasLimit = 300000
	}
	duplicateSubstring := cfg.DuplicateSettlementSubstring
	if duplicateSubstring == "" {
		duplicateSubstring = defaultDuplicateSettlementSubstring
	}
	return &Operator{
		pool:               cfg.Pool,
		chainID:            cfg.ChainID,
		signer:             cfg.Signer,
		breaker:            breaker,
		failedTxs:          cfg.FailedTxs,
		nonces:             NewNonceTracker(cfg.Signer.Address()),
		policy:             policy,
		gasLimit:           gasLimit,
		logger:             cfg.Logger,
		queueCh:            make(chan TxQueueEntry, 256),
		dial:               dialChain,
		duplicateSubstring: duplicateSubstring,
	}, nil
}

// client dials a backend for the pool's current best endpoint. A
// fresh client is built per call since chain.Client is cheap to construct
// and the pool already tracks endpoint health independently.
func (o *Operator) client(ctx context.Context) (ChainBackend, *chain.RPCEndpoint, error) {
	ep, err := o.pool.GetBestEndpoint()
	if err != nil && ep == nil {
		return nil, nil, chainerr.Wrap(chainerr.Network, "no RPC endpoints available", err)
	}
	c, dialErr := o.dial(ctx, chain.Config{RPCURL: ep.URL, ChainID: o.chainID})
	if dialErr != nil {
		o.pool.MarkUnhealthy(ep.URL)
		return nil, ep, chainerr.Wrap(chainerr.Network, "dialing RPC endpoint", dialErr)
	}
	return c, ep, nil
}

// Call performs a read-only eth_call, protected by the circuit breaker and
// RPC failover but never retried with backoff (callers that need retry
// semantics for reads should loop at the agent layer).
func (o *Operator) Call(ctx context.Context, msg chain.CallMsg) ([]byte, error) {
	var out []byte
	err := o.breaker.Execute(ctx, func() error {
		c, ep, err := o.client(ctx)
		if err != nil {
			return err
		}
		defer c.Close()
		result, callErr := c.CallContract(ctx, msg, nil)
		if callErr != nil {
			o.pool.MarkUnhealthy(ep.URL)
			return chainerr.Wrap(chainerr.Network, "eth_call failed", callErr)
		}
		o.pool.MarkHealthy(ep.URL, 0)
		out = result
		return nil
	})
	if err != nil {
		if err == resilience.ErrCircuitOpen || err == resilience.ErrTooManyRequests {
			return nil, chainerr.Wrap(chainerr.CircuitOpen, "on-chain call rejected", err)
		}
		return nil, err
	}
	return out, nil
}

// BalanceAt returns an account's native-coin balance, protected by the
// circuit breaker and RPC failover.
func (o *Operator) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	var out *big.Int
	err := o.breaker.Execute(ctx, func() error {
		c, ep, err := o.client(ctx)
		if err != nil {
			return err
		}
		defer c.Close()
		result, balErr := c.BalanceAt(ctx, account, nil)
		if balErr != nil {
			o.pool.MarkUnhealthy(ep.URL)
			return chainerr.Wrap(chainerr.Network, "eth_getBalance failed", balErr)
		}
		o.pool.MarkHealthy(ep.URL, 0)
		out = result
		return nil
	})
	if err != nil {
		if err == resilience.ErrCircuitOpen || err == resilience.ErrTooManyRequests {
			return nil, chainerr.Wrap(chainerr.CircuitOpen, "on-chain call rejected", err)
		}
		return nil, err
	}
	return out, nil
}

// Send builds, signs, and submits a transaction to target with data and
// value, retrying per policy (or the Operator's DefaultPolicy when the zero
// value is passed) until it confirms, the retry budget is exhausted, an
// attempt fails with an error the classifier does not retry, or the circuit
// breaker is open.
func (o *Operator) Send(ctx context.Context, target common.Address, data []byte, value *big.Int, policy RetryPolicy) (SendResult, error) {
	if policy.MaxAttempts == 0 {
		policy = o.policy
	}
	if value == nil {
		value = big.NewInt(0)
	}
	classify := policy.Classify
	if classify == nil {
		classify = defaultClassify
	}

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(delayForAttempt(policy, attempt-1)):
			case <-ctx.Done():
				return SendResult{}, ctx.Err()
			case <-policy.Cancel:
				return SendResult{}, fmt.Errorf("chainops: send cancelled")
			}
		}

		attempts = attempt
		res, err := o.attemptSend(ctx, target, data, value, policy, attempt)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if err == resilience.ErrCircuitOpen || err == resilience.ErrTooManyRequests {
			return SendResult{}, chainerr.Wrap(chainerr.CircuitOpen, "on-chain send rejected", err)
		}
		if !classify(err) {
			break
		}
	}

	if o.logger != nil {
		o.logger.WithFields(map[string]interface{}{
			"to":       target.Hex(),
			"attempts": attempts,
			"error":    lastErr,
		}).Warn("chainops: send failed")
	}
	if o.failedTxs != nil {
		_ = o.failedTxs.Record(target.Hex(), common.Bytes2Hex(data), config.NewBigInt(value), o.nonces.Peek(), lastErr)
	}
	return SendResult{}, &RetryError{Attempts: attempts, Last: lastErr}
}

func (o *Operator) attemptSend(ctx context.Context, target common.Address, data []byte, value *big.Int, policy RetryPolicy, attempt int) (SendResult, error) {
	var result SendResult
	err := o.breaker.Execute(ctx, func() error {
		c, ep, err := o.client(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		nonce, err := o.nonces.Next(ctx, c)
		if err != nil {
			return chainerr.Wrap(chainerr.Network, "fetching nonce", err)
		}

		gas, err := gasForAttempt(ctx, c, policy, attempt)
		if err != nil {
			return chainerr.Wrap(chainerr.Network, "suggesting gas price", err)
		}

		tx, err := o.buildTx(target, data, value, nonce, gas)
		if err != nil {
			o.nonces.Release(nonce)
			return chainerr.Wrap(chainerr.Validation, "building transaction", err)
		}

		signed, err := o.signer.SignTx(tx, o.chainID)
		if err != nil {
			o.nonces.Release(nonce)
			return chainerr.Wrap(chainerr.Auth, "signing transaction", err)
		}

		if sendErr := c.SendTransaction(ctx, signed); sendErr != nil {
			o.pool.MarkUnhealthy(ep.URL)
			if isNonceTooLow(sendErr) {
				o.nonces.Resync()
			}
			return chainerr.Wrap(chainerr.Network, "broadcasting transaction", sendErr)
		}
		o.pool.MarkHealthy(ep.URL, 0)

		confirmed, blockNumber, duplicate, confirmErr := o.awaitConfirmation(ctx, c, signed.Hash(), target, data, policy)
		if confirmErr != nil {
			return confirmErr
		}
		result = SendResult{TxHash: signed.Hash().Hex(), Confirmed: confirmed, BlockNumber: blockNumber, Duplicate: duplicate}
		return nil
	})
	return result, err
}

func (o *Operator) buildTx(target common.Address, data []byte, value *big.Int, nonce uint64, gas GasPrice) (*types.Transaction, error) {
	if gas.IsDynamic() {
		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   o.chainID,
			Nonce:     nonce,
			GasTipCap: gas.TipCap,
			GasFeeCap: gas.FeeCap,
			Gas:       o.gasLimit,
			To:        &target,
			Value:     value,
			Data:      data,
		}), nil
	}
	if gas.GasPrice == nil {
		return nil, fmt.Errorf("chainops: no gas price available")
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gas.GasPrice,
		Gas:      o.gasLimit,
		To:       &target,
		Value:    value,
		Data:     data,
	}), nil
}

// awaitConfirmation polls for a receipt, classifies a mined transaction's
// outcome, and then waits for policy.Confirmations worth of blocks to pass
// on top of it. A receipt that never appears before policy.Deadline is not
// treated as a send failure: the transaction is in the mempool regardless.
// A receipt with a failed status is a definite outcome and is classified by
// classifyRevert into a fatal chainerr.Revert or a success-equivalent
// duplicate settlement.
func (o *Operator) awaitConfirmation(ctx context.Context, c ChainBackend, txHash common.Hash, target common.Address, data []byte, policy RetryPolicy) (confirmed bool, block *uint64, duplicate bool, err error) {
	deadline := policy.Deadline
	if deadline <= 0 {
		deadline = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	receipt := o.pollReceipt(ctx, c, txHash)
	if receipt == nil {
		return false, nil, false, nil
	}

	if receipt.Status == types.ReceiptStatusFailed {
		return o.classifyRevert(ctx, c, receipt, target, data)
	}

	minedBlock := receipt.BlockNumber.Uint64()
	o.awaitConfirmationDepth(ctx, c, minedBlock, policy.Confirmations)
	return true, &minedBlock, false, nil
}

// pollReceipt polls for txHash's receipt every 2s until one appears or ctx
// is cancelled.
func (o *Operator) pollReceipt(ctx context.Context, c ChainBackend, txHash common.Hash) *types.Receipt {
	if receipt, err := c.TransactionReceipt(ctx, txHash); err == nil && receipt != nil {
		return receipt
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			receipt, err := c.TransactionReceipt(ctx, txHash)
			if err != nil || receipt == nil {
				continue
			}
			return receipt
		}
	}
}

// awaitConfirmationDepth blocks until minedBlock has confirmations worth of
// blocks behind it (inclusive of its own block), or ctx is cancelled,
// whichever comes first. Fewer than two confirmations needs no extra wait:
// the receipt itself already proves the transaction mined.
func (o *Operator) awaitConfirmationDepth(ctx context.Context, c ChainBackend, minedBlock uint64, confirmations uint64) {
	if confirmations <= 1 {
		return
	}
	target := minedBlock + confirmations - 1

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		if head, err := c.HeaderByNumber(ctx, nil); err == nil && head != nil && head.Number.Uint64() >= target {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// classifyRevert replays the reverted call at the block before it mined to
// recover the node's rejection message, then decides whether it matches the
// operator's configured duplicate-settlement substring (success-equivalent)
// or is a fatal chainerr.Revert.
func (o *Operator) classifyRevert(ctx context.Context, c ChainBackend, receipt *types.Receipt, target common.Address, data []byte) (bool, *uint64, bool, error) {
	block := receipt.BlockNumber.Uint64()
	reason := o.revertReason(ctx, c, target, data, receipt.BlockNumber)

	if reason != "" && o.duplicateSubstring != "" && strings.Contains(strings.ToLower(reason), strings.ToLower(o.duplicateSubstring)) {
		if o.logger != nil {
			o.logger.WithFields(map[string]interface{}{
				"tx_hash": receipt.TxHash.Hex(),
				"block":   block,
				"reason":  reason,
			}).Info("chainops: revert matched duplicate-settlement reason, treating as success")
		}
		return true, &block, true, nil
	}

	msg := "transaction reverted"
	if reason != "" {
		msg = fmt.Sprintf("transaction reverted: %s", reason)
	}
	revertErr := chainerr.New(chainerr.Revert, msg).WithDetails("tx_hash", receipt.TxHash.Hex()).WithDetails("block", block)
	return false, &block, false, revertErr
}

// revertReason replays the original call at the block preceding the revert
// to recover the node's rejection message. EVM JSON-RPC nodes typically
// surface a Solidity revert(string) reason directly in the eth_call error
// text (e.g. "execution reverted: session already completed"), so a
// substring match is enough without ABI-decoding return data.
func (o *Operator) revertReason(ctx context.Context, c ChainBackend, target common.Address, data []byte, minedBlock *big.Int) string {
	var replayAt *big.Int
	if prior := new(big.Int).Sub(minedBlock, big.NewInt(1)); prior.Sign() >= 0 {
		replayAt = prior
	}
	_, err := c.CallContract(ctx, chain.CallMsg{From: o.signer.Address(), To: &target, Data: data}, replayAt)
	if err == nil {
		return ""
	}
	return err.Error()
}

func isNonceTooLow(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "nonce too low")
}

// StoreFailed persists a transaction that failed to send, for later
// inspection or retry outside the automatic retry budget.
func (o *Operator) StoreFailed(to string, data string, value config.BigInt, nonce uint64, cause error) error {
	if o.failedTxs == nil {
		return fmt.Errorf("chainops: no failed-transaction log configured")
	}
	return o.failedTxs.Record(to, data, value, nonce, cause)
}

// RetryFailed resubmits every currently-stored failed transaction, removing
// each on success and leaving failures in place for the next attempt.
func (o *Operator) RetryFailed(ctx context.Context) (succeeded, failed int) {
	if o.failedTxs == nil {
		return 0, 0
	}
	for _, entry := range o.failedTxs.List() {
		target := common.HexToAddress(entry.To)
		data := common.Hex2Bytes(trimHexPrefix(entry.Data))
		_, err := o.Send(ctx, target, data, entry.Value.Int, o.policy)
		if err != nil {
			failed++
			continue
		}
		succeeded++
		_ = o.failedTxs.Remove(entry.To, entry.Nonce)
	}
	return succeeded, failed
}

// CleanupExpired purges failed-transaction entries older than expiry.
func (o *Operator) CleanupExpired(expiry time.Duration) (int, error) {
	if o.failedTxs == nil {
		return 0, nil
	}
	return o.failedTxs.CleanupExpired(expiry)
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
