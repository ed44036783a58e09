package agent

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fabhost/agent/internal/chainerr"
	"github.com/fabhost/agent/internal/chainops"
	"github.com/fabhost/agent/internal/config"
	"github.com/fabhost/agent/internal/session"
)

var marketplaceABI = mustParseABI(`[
	{"name":"completeSessionJob","type":"function","inputs":[{"name":"jobId","type":"string"},{"name":"totalTokens","type":"uint256"}],"outputs":[]}
]`)

var proofSystemABI = mustParseABI(`[
	{"name":"submitCheckpoint","type":"function","inputs":[
		{"name":"jobId","type":"string"},
		{"name":"checkpoint","type":"tuple","components":[
			{"name":"index","type":"uint256"},
			{"name":"tokensGenerated","type":"uint256"},
			{"name":"proofBytes","type":"bytes"},
			{"name":"timestamp","type":"uint256"}
		]}
	],"outputs":[]}
]`)

// chainAdapter implements session.SettlementSubmitter and
// session.CheckpointSubmitter over an Agent's chainops.Operator, translating
// the session engine's abstract checkpoint/settlement vocabulary into the
// ABI-encoded calls the marketplace and proof-system contracts expect.
// *config.FailedTransactionLog already satisfies session.FailedTxRecorder
// directly, so the engine is handed it without going through this adapter.
type chainAdapter struct {
	agent *Agent
}

func newChainAdapter(a *Agent) *chainAdapter { return &chainAdapter{agent: a} }

func (c *chainAdapter) operator() (*chainops.Operator, config.ContractAddresses, error) {
	c.agent.mu.RLock()
	op := c.agent.op
	contracts := c.agent.cfg.Contracts
	c.agent.mu.RUnlock()
	if op == nil {
		return nil, contracts, chainerr.New(chainerr.Auth, "agent is not authenticated")
	}
	return op, contracts, nil
}

// CompleteSessionJob implements session.SettlementSubmitter.
func (c *chainAdapter) CompleteSessionJob(ctx context.Context, sessionID, jobID string, totalTokens uint64) (session.SettlementResult, error) {
	op, contracts, err := c.operator()
	if err != nil {
		return session.SettlementResult{}, err
	}
	data, err := marketplaceABI.Pack("completeSessionJob", jobID, new(big.Int).SetUint64(totalTokens))
	if err != nil {
		return session.SettlementResult{}, fmt.Errorf("agent: packing completeSessionJob: %w", err)
	}
	target := common.HexToAddress(contracts.Marketplace)
	result, sendErr := op.Send(ctx, target, data, big.NewInt(0), chainops.RetryPolicy{})
	if sendErr != nil {
		return session.SettlementResult{}, sendErr
	}
	c.agent.bus.publish(Event{Kind: EventSessionEnded, At: time.Now(), SessionID: sessionID, JobID: jobID, TxHash: result.TxHash})
	var blockNumber uint64
	if result.BlockNumber != nil {
		blockNumber = *result.BlockNumber
	}
	return session.SettlementResult{TxHash: result.TxHash, BlockNumber: blockNumber, Duplicate: result.Duplicate}, nil
}

// SubmitCheckpoint implements session.CheckpointSubmitter.
func (c *chainAdapter) SubmitCheckpoint(ctx context.Context, item session.CheckpointItem) (session.SettlementResult, error) {
	op, contracts, err := c.operator()
	if err != nil {
		return session.SettlementResult{}, err
	}
	checkpoint := struct {
		Index           *big.Int
		TokensGenerated *big.Int
		ProofBytes      []byte
		Timestamp       *big.Int
	}{
		Index:           big.NewInt(int64(item.CheckpointIndex)),
		TokensGenerated: new(big.Int).SetUint64(item.TokensClaimed),
		ProofBytes:      item.ProofBytes,
		Timestamp:       big.NewInt(item.EnqueuedAt.Unix()),
	}
	data, err := proofSystemABI.Pack("submitCheckpoint", item.SessionID, checkpoint)
	if err != nil {
		return session.SettlementResult{}, fmt.Errorf("agent: packing submitCheckpoint: %w", err)
	}
	target := common.HexToAddress(contracts.Proof)
	result, sendErr := op.Send(ctx, target, data, big.NewInt(0), chainops.RetryPolicy{})
	if sendErr != nil {
		return session.SettlementResult{}, sendErr
	}
	c.agent.bus.publish(Event{
		Kind:      EventCheckpointProcessed,
		At:        time.Now(),
		SessionID: item.SessionID,
		Index:     item.CheckpointIndex,
		TxHash:    result.TxHash,
	})
	var blockNumber uint64
	if result.BlockNumber != nil {
		blockNumber = *result.BlockNumber
	}
	return session.SettlementResult{TxHash: result.TxHash, BlockNumber: blockNumber}, nil
}

// NewSessionEngine builds the session/checkpoint engine wired to this
// Agent's on-chain adapter, VRF proof provider, and failed-transaction log,
// then attaches it so Info() and Shutdown() can see it. Requires
// Authenticate to have already run.
func (a *Agent) NewSessionEngine(cfg session.Config) (*session.Engine, error) {
	if err := a.requireAuth(); err != nil {
		return nil, err
	}
	adapter := newChainAdapter(a)
	proofs := session.NewVRFProofProvider(a.vrfKey)
	engine := session.New(cfg, proofs, adapter, adapter, a.failedTxs)
	a.AttachEngine(engine)
	return engine, nil
}

