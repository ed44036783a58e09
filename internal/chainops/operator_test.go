package chainops

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/fabhost/agent/infrastructure/chain"
	"github.com/fabhost/agent/infrastructure/resilience"
	"github.com/fabhost/agent/internal/chainerr"
	"github.com/fabhost/agent/internal/config"
	"github.com/fabhost/agent/internal/wallet"
)

// fakeBackend implements ChainBackend entirely in memory, so chainops tests
// exercise real retry/backoff/circuit-breaker logic without a JSON-RPC
// round-trip. sendErrs is popped one at a time per SendTransaction call;
// once exhausted, sends succeed.
//
// receipt, when set, overrides the default successful receipt returned by
// TransactionReceipt. callErr, when set, makes CallContract fail instead of
// succeeding, for revert-reason replay tests. headerNums, when set, is
// consumed one value per HeaderByNumber call (repeating the last value once
// exhausted) so tests can simulate block height advancing across polls.
type fakeBackend struct {
	mu         sync.Mutex
	sendErrs   []error
	sent       int
	nonce      uint64
	receipt    *types.Receipt
	callErr    error
	headerNums []uint64
	headerIdx  int
}

func (f *fakeBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.headerNums) == 0 {
		// No BaseFee: forces the legacy gas path, keeping this fake simple.
		return &types.Header{Number: big.NewInt(100)}, nil
	}
	idx := f.headerIdx
	if idx >= len(f.headerNums) {
		idx = len(f.headerNums) - 1
	} else {
		f.headerIdx++
	}
	return &types.Header{Number: big.NewInt(int64(f.headerNums[idx]))}, nil
}

func (f *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent++
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		return err
	}
	return nil
}

func (f *fakeBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.receipt != nil {
		return f.receipt, nil
	}
	return &types.Receipt{BlockNumber: big.NewInt(101), Status: types.ReceiptStatusSuccessful}, nil
}

func (f *fakeBackend) CallContract(ctx context.Context, msg chain.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.callErr != nil {
		return nil, f.callErr
	}
	return []byte{0x01}, nil
}

func (f *fakeBackend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (f *fakeBackend) Close() {}

func (f *fakeBackend) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent
}

func newTestOperator(t *testing.T, backend *fakeBackend, failedTxPath string) *Operator {
	t.Helper()
	pool, err := chain.NewRPCPool(&chain.RPCPoolConfig{Endpoints: []string{"http://fake-rpc.local"}})
	if err != nil {
		t.Fatalf("NewRPCPool() error = %v", err)
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	var failedTxs *config.FailedTransactionLog
	if failedTxPath != "" {
		failedTxs, err = config.NewFailedTransactionLog(failedTxPath)
		if err != nil {
			t.Fatalf("NewFailedTransactionLog() error = %v", err)
		}
	}

	op, err := NewOperator(OperatorConfig{
		Pool:      pool,
		ChainID:   big.NewInt(1),
		Signer:    NewWalletSigner(&wallet.Wallet{PrivateKey: key}),
		FailedTxs: failedTxs,
	})
	if err != nil {
		t.Fatalf("NewOperator() error = %v", err)
	}
	op.dial = func(ctx context.Context, cfg chain.Config) (ChainBackend, error) {
		return backend, nil
	}
	return op
}

func TestOperator_Send_RetryThenSuccess(t *testing.T) {
	backend := &fakeBackend{sendErrs: []error{
		errors.New("dial tcp: connection refused"),
		errors.New("dial tcp: connection refused"),
	}}
	op := newTestOperator(t, backend, "")

	policy := RetryPolicy{
		MaxAttempts:   3,
		BaseDelay:     5 * time.Millisecond,
		MaxDelay:      50 * time.Millisecond,
		BackoffFactor: 2,
		Deadline:      time.Second,
	}

	start := time.Now()
	res, err := op.Send(context.Background(), common.HexToAddress("0x1111111111111111111111111111111111111111"), nil, nil, policy)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if res.TxHash == "" {
		t.Error("Send() returned empty TxHash on success")
	}
	if backend.sentCount() != 3 {
		t.Errorf("sentCount() = %d, want 3 (2 failures + 1 success)", backend.sentCount())
	}
	// Two backoff waits of 5ms and 10ms must have elapsed.
	if elapsed < 15*time.Millisecond {
		t.Errorf("elapsed = %v, want at least 15ms of backoff", elapsed)
	}
}

func TestOperator_Send_RetryExhaustion_PersistsFailedTx(t *testing.T) {
	dir := t.TempDir()
	backend := &fakeBackend{sendErrs: []error{
		errors.New("dial tcp: connection refused"),
		errors.New("dial tcp: connection refused"),
		errors.New("dial tcp: connection refused"),
	}}
	op := newTestOperator(t, backend, dir+"/failed.jsonl")

	policy := RetryPolicy{
		MaxAttempts:   3,
		BaseDelay:     1 * time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2,
		Deadline:      time.Second,
	}

	_, err := op.Send(context.Background(), common.HexToAddress("0x2222222222222222222222222222222222222222"), nil, nil, policy)
	var retryErr *RetryError
	if !errors.As(err, &retryErr) {
		t.Fatalf("Send() error = %v, want *RetryError", err)
	}
	if retryErr.Attempts != 3 {
		t.Errorf("RetryError.Attempts = %d, want 3", retryErr.Attempts)
	}

	entries := op.failedTxs.List()
	if len(entries) != 1 {
		t.Fatalf("failedTxs.List() has %d entries, want 1", len(entries))
	}
}

func TestOperator_Send_NonRetriableFailsImmediately(t *testing.T) {
	backend := &fakeBackend{sendErrs: []error{errors.New("unauthorized")}}
	op := newTestOperator(t, backend, "")

	policy := RetryPolicy{
		MaxAttempts:   5,
		BaseDelay:     time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2,
		Deadline:      time.Second,
	}

	_, err := op.Send(context.Background(), common.HexToAddress("0x3333333333333333333333333333333333333333"), nil, nil, policy)
	if err == nil {
		t.Fatal("Send() error = nil, want failure")
	}
	if backend.sentCount() != 1 {
		t.Errorf("sentCount() = %d, want 1 (no retries for a non-retriable error)", backend.sentCount())
	}
}

func TestOperator_Send_CircuitBreakerTrips(t *testing.T) {
	backend := &fakeBackend{sendErrs: []error{
		errors.New("dial tcp: connection refused"),
		errors.New("dial tcp: connection refused"),
		errors.New("dial tcp: connection refused"),
	}}

	pool, err := chain.NewRPCPool(&chain.RPCPoolConfig{Endpoints: []string{"http://fake-rpc.local"}})
	if err != nil {
		t.Fatalf("NewRPCPool() error = %v", err)
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	breaker := resilience.New(resilience.Config{MaxFailures: 3, Timeout: 50 * time.Millisecond, HalfOpenMax: 1})

	op, err := NewOperator(OperatorConfig{
		Pool:    pool,
		ChainID: big.NewInt(1),
		Signer:  NewWalletSigner(&wallet.Wallet{PrivateKey: key}),
		Breaker: breaker,
	})
	if err != nil {
		t.Fatalf("NewOperator() error = %v", err)
	}
	op.dial = func(ctx context.Context, cfg chain.Config) (ChainBackend, error) {
		return backend, nil
	}

	policy := RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond, Deadline: time.Second}
	target := common.HexToAddress("0x4444444444444444444444444444444444444444")

	// Three single-attempt sends, each failing once, trip the breaker.
	for i := 0; i < 3; i++ {
		if _, err := op.Send(context.Background(), target, nil, nil, policy); err == nil {
			t.Fatalf("Send() attempt %d: error = nil, want failure", i)
		}
	}

	sentBeforeOpen := backend.sentCount()
	_, err = op.Send(context.Background(), target, nil, nil, policy)
	if err == nil {
		t.Fatal("Send() after breaker trip: error = nil, want CircuitOpen")
	}
	if backend.sentCount() != sentBeforeOpen {
		t.Error("Send() reached the network while the breaker was open")
	}
}

func TestOperator_AwaitConfirmation_WaitsForConfiguredDepth(t *testing.T) {
	backend := &fakeBackend{
		headerNums: []uint64{100, 101, 103},
	}
	op := newTestOperator(t, backend, "")

	policy := RetryPolicy{
		MaxAttempts:   1,
		BaseDelay:     time.Millisecond,
		Deadline:      8 * time.Second,
		Confirmations: 3,
	}

	res, err := op.Send(context.Background(), common.HexToAddress("0x5555555555555555555555555555555555555555"), nil, nil, policy)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !res.Confirmed {
		t.Error("Send() Confirmed = false, want true")
	}
	if res.BlockNumber == nil || *res.BlockNumber != 101 {
		t.Errorf("Send() BlockNumber = %v, want 101 (the receipt's block, not the confirmation head)", res.BlockNumber)
	}
	// 3 confirmations means the poll loop must not return before the head
	// reaches block 103 (101 + 3 - 1); fakeBackend only reaches that on its
	// third HeaderByNumber call, so observing it proves the wait happened.
	if backend.headerIdx < 3 {
		t.Errorf("HeaderByNumber called %d times, want at least 3 to reach the configured depth", backend.headerIdx)
	}
}

func TestOperator_Send_RevertIsFatal(t *testing.T) {
	backend := &fakeBackend{
		receipt: &types.Receipt{BlockNumber: big.NewInt(101), Status: types.ReceiptStatusFailed},
		callErr: errors.New("execution reverted: insufficient balance"),
	}
	op := newTestOperator(t, backend, "")

	policy := RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Deadline:    time.Second,
	}

	_, err := op.Send(context.Background(), common.HexToAddress("0x6666666666666666666666666666666666666666"), nil, nil, policy)
	if err == nil {
		t.Fatal("Send() error = nil, want a fatal revert")
	}
	var chainErr *chainerr.Error
	if !errors.As(err, &chainErr) {
		t.Fatalf("Send() error = %v, want *chainerr.Error", err)
	}
	if chainErr.Kind != chainerr.Revert {
		t.Errorf("chainerr.Kind = %v, want Revert", chainErr.Kind)
	}
	if backend.sentCount() != 1 {
		t.Errorf("sentCount() = %d, want 1 (a revert is never retried)", backend.sentCount())
	}
}

func TestOperator_Send_DuplicateSettlementRevertIsSuccess(t *testing.T) {
	backend := &fakeBackend{
		receipt: &types.Receipt{BlockNumber: big.NewInt(101), Status: types.ReceiptStatusFailed},
		callErr: errors.New("execution reverted: session already completed"),
	}
	op := newTestOperator(t, backend, "")

	policy := RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Deadline:    time.Second,
	}

	res, err := op.Send(context.Background(), common.HexToAddress("0x7777777777777777777777777777777777777777"), nil, nil, policy)
	if err != nil {
		t.Fatalf("Send() error = %v, want nil (duplicate settlement is success-equivalent)", err)
	}
	if !res.Duplicate {
		t.Error("Send() Duplicate = false, want true")
	}
	if res.BlockNumber == nil || *res.BlockNumber != 101 {
		t.Errorf("Send() BlockNumber = %v, want 101", res.BlockNumber)
	}
	if backend.sentCount() != 1 {
		t.Errorf("sentCount() = %d, want 1 (a duplicate settlement is never retried)", backend.sentCount())
	}
}
