package session

import (
	"context"
	"fmt"
	"math/big"

	"github.com/fabhost/agent/internal/config"
)

// SettlementResult is what a successful completeSessionJob submission
// returns.
type SettlementResult struct {
	TxHash      string
	BlockNumber uint64
	Nonce       uint64
	// Duplicate reports a settlement that the chain already had recorded
	// (a revert matching the duplicate-settlement reason, treated as
	// success-equivalent) rather than one this call newly confirmed.
	Duplicate bool
}

// SettlementSubmitter is the §4.3 boundary the engine calls to submit the
// final settlement transaction for a closed session. Defined here, at the
// consumer, rather than in the chain-operator package.
type SettlementSubmitter interface {
	CompleteSessionJob(ctx context.Context, sessionID, jobID string, totalTokens uint64) (SettlementResult, error)
}

// CheckpointSubmitter is the §4.3 boundary the engine hands a checkpoint to
// when AutoSubmit is enabled, distinct from SettlementSubmitter because a
// mid-session checkpoint and an end-of-session settlement are different
// on-chain calls.
type CheckpointSubmitter interface {
	SubmitCheckpoint(ctx context.Context, item CheckpointItem) (SettlementResult, error)
}

// ProofProvider supplies the proof blob for a checkpoint. In production
// this asks the running inference binary for a VRF-backed proof; tests
// inject a stub.
type ProofProvider interface {
	GetProof(sessionID string, checkpointIndex int, tokensClaimed uint64) ([]byte, error)
}

// FailedTxRecorder is the subset of *config.FailedTransactionLog the engine
// needs to persist a failed settlement intent.
type FailedTxRecorder interface {
	Record(to string, data string, value config.BigInt, nonce uint64, lastErr error) error
}

// OnSessionEnd flushes the session's settlement: it asks the submitter for
// a final completeSessionJob transaction, waits for confirmation within the
// engine's configured deadline, and reports the outcome as an event. On
// failure, the intent is persisted to the failed-transaction log so a
// subsequent startup can retry it. The session is removed from live
// accounting in either case.
func (e *Engine) OnSessionEnd(ctx context.Context, sessionID, jobID string) {
	s := e.session(sessionID, false)
	if s == nil {
		return
	}

	s.mu.Lock()
	total := s.tokens
	alreadySettled := s.settled
	s.settled = true
	s.mu.Unlock()

	if alreadySettled {
		return
	}

	e.ResetSession(sessionID)

	if e.settlementSubmitter == nil {
		return
	}

	settleCtx, cancel := context.WithTimeout(ctx, e.cfg.SettlementDeadline)
	defer cancel()

	result, err := e.settlementSubmitter.CompleteSessionJob(settleCtx, sessionID, jobID, total)
	if err != nil {
		e.emit(Event{Kind: SessionSettlementFailed, SessionID: sessionID, JobID: jobID, TokensAfter: total, Err: err})
		if e.failedTxs != nil && e.cfg.MarketplaceAddress != "" {
			data := fmt.Sprintf("completeSessionJob(%s,%d)", jobID, total)
			_ = e.failedTxs.Record(e.cfg.MarketplaceAddress, data, config.NewBigInt(big.NewInt(0)), result.Nonce, err)
		}
		e.mu.Lock()
		delete(e.sessions, sessionID)
		e.mu.Unlock()
		return
	}

	e.emit(Event{
		Kind:        SessionSettled,
		SessionID:   sessionID,
		JobID:       jobID,
		TokensAfter: total,
		TxHash:      result.TxHash,
		BlockNumber: result.BlockNumber,
		Duplicate:   result.Duplicate,
	})

	e.mu.Lock()
	delete(e.sessions, sessionID)
	e.mu.Unlock()
}
