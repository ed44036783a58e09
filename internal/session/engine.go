// Package session implements per-session token accounting and
// threshold-based checkpoint emission: the at-least-once,
// idempotent-checkpoint bookkeeping that sits between the inference
// binary's token stream and the on-chain settlement path.
package session

import (
	"context"
	"sync"
	"time"
)

// Config holds the engine's tunables.
type Config struct {
	// Threshold is the number of tokens (T) that make up one checkpoint.
	Threshold uint64
	// MaxQueueSize bounds the pending-checkpoint FIFO; the oldest entry is
	// dropped (emitting CheckpointDropped) once exceeded.
	MaxQueueSize int
	// ApproachingWindow is how close to the next threshold (in tokens)
	// triggers CheckpointApproaching.
	ApproachingWindow uint64
	// AutoSubmit, when true, hands freshly reached checkpoints to the
	// configured Submitter immediately rather than waiting for an external
	// drain loop.
	AutoSubmit bool
	// MarketplaceAddress is recorded against failed settlement intents.
	MarketplaceAddress string
	// SettlementDeadline bounds how long OnSessionEnd waits for
	// confirmation before treating the settlement as failed.
	SettlementDeadline time.Duration
}

// DefaultConfig matches the values named in spec examples (T=100,
// approaching within 10 tokens of the next checkpoint).
func DefaultConfig() Config {
	return Config{
		Threshold:          100,
		MaxQueueSize:        1000,
		ApproachingWindow:   10,
		AutoSubmit:          false,
		SettlementDeadline:  30 * time.Second,
	}
}

// CheckpointItem is one pending-submission entry in the FIFO.
type CheckpointItem struct {
	SessionID       string
	CheckpointIndex int
	TokensClaimed   uint64
	ProofBytes      []byte
	EnqueuedAt      time.Time
}

type sessionState struct {
	mu sync.Mutex

	jobID       string
	tokens      uint64
	checkpoints int
	processed   map[int]bool
	openedAt    time.Time
	lastActive  time.Time
	settled     bool
}

// Engine is the threshold-checkpoint accounting component. It is safe for
// concurrent use: operations on distinct sessions proceed in parallel,
// operations on the same session are serialized.
type Engine struct {
	cfg Config

	proofs              ProofProvider
	checkpointSubmitter CheckpointSubmitter
	settlementSubmitter SettlementSubmitter
	failedTxs           FailedTxRecorder

	mu       sync.Mutex
	sessions map[string]*sessionState
	pending  []CheckpointItem

	subsMu sync.Mutex
	subs   []chan Event
}

// New constructs an Engine. Any of proofs/checkpointSubmitter/
// settlementSubmitter/failedTxs may be nil; operations that need one simply
// skip that side effect (useful for accounting-only tests).
func New(cfg Config, proofs ProofProvider, checkpointSubmitter CheckpointSubmitter, settlementSubmitter SettlementSubmitter, failedTxs FailedTxRecorder) *Engine {
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultConfig().Threshold
	}
	return &Engine{
		cfg:                 cfg,
		proofs:              proofs,
		checkpointSubmitter: checkpointSubmitter,
		settlementSubmitter: settlementSubmitter,
		failedTxs:           failedTxs,
		sessions:            make(map[string]*sessionState),
	}
}

// Subscribe returns a channel that receives every event the engine emits
// from this point on. The channel is buffered; a slow subscriber misses
// nothing as long as it drains faster than burst size 256, beyond which new
// events are dropped for that subscriber rather than blocking the engine.
func (e *Engine) Subscribe() <-chan Event {
	ch := make(chan Event, 256)
	e.subsMu.Lock()
	e.subs = append(e.subs, ch)
	e.subsMu.Unlock()
	return ch
}

func (e *Engine) emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (e *Engine) session(sessionID string, create bool) *sessionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[sessionID]
	if !ok && create {
		s = &sessionState{
			processed:  make(map[int]bool),
			openedAt:   time.Now(),
			lastActive: time.Now(),
		}
		e.sessions[sessionID] = s
	}
	return s
}

// AddTokens admits n newly served tokens to sessionID, creating the session
// on first call. It never fails locally: proof generation and submission
// failures are reported as events, not returned errors.
func (e *Engine) AddTokens(sessionID string, n uint64) {
	s := e.session(sessionID, true)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActive = time.Now()

	prevCP := s.tokens / e.cfg.Threshold
	s.tokens += n
	newCP := s.tokens / e.cfg.Threshold

	e.emit(Event{Kind: TokenProgress, SessionID: sessionID, TokensAfter: s.tokens})

	remainder := s.tokens % e.cfg.Threshold
	tokensUntil := e.cfg.Threshold - remainder
	if remainder != 0 && tokensUntil <= e.cfg.ApproachingWindow {
		e.emit(Event{Kind: CheckpointApproaching, SessionID: sessionID, TokensAfter: s.tokens, TokensUntil: tokensUntil})
	}

	for i := prevCP + 1; i <= newCP; i++ {
		s.checkpoints = int(i)
		item := CheckpointItem{
			SessionID:       sessionID,
			CheckpointIndex: int(i),
			TokensClaimed:   i * e.cfg.Threshold,
			EnqueuedAt:      time.Now(),
		}
		if e.proofs != nil {
			if proof, err := e.proofs.GetProof(sessionID, int(i), item.TokensClaimed); err == nil {
				item.ProofBytes = proof
			}
		}
		e.enqueue(item)
		e.emit(Event{Kind: CheckpointReached, SessionID: sessionID, CheckpointIndex: int(i), TokensAfter: s.tokens})

		if e.cfg.AutoSubmit && e.checkpointSubmitter != nil {
			go e.submitCheckpoint(item)
		}
	}
}

func (e *Engine) enqueue(item CheckpointItem) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = append(e.pending, item)
	if e.cfg.MaxQueueSize > 0 && len(e.pending) > e.cfg.MaxQueueSize {
		dropped := e.pending[0]
		e.pending = e.pending[1:]
		e.emit(Event{Kind: CheckpointDropped, SessionID: dropped.SessionID, CheckpointIndex: dropped.CheckpointIndex})
	}
}

// PendingCheckpoints returns a snapshot of the pending FIFO, oldest first.
func (e *Engine) PendingCheckpoints() []CheckpointItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]CheckpointItem, len(e.pending))
	copy(out, e.pending)
	return out
}

// MarkCheckpointProcessed removes a checkpoint from the pending queue and
// records it as durably processed. Idempotent: marking an already-processed
// or never-enqueued checkpoint is a no-op.
func (e *Engine) MarkCheckpointProcessed(sessionID string, index int) {
	s := e.session(sessionID, false)
	if s != nil {
		s.mu.Lock()
		s.processed[index] = true
		s.mu.Unlock()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for i, item := range e.pending {
		if item.SessionID == sessionID && item.CheckpointIndex == index {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			return
		}
	}
}

// MarkCheckpointExhausted removes the checkpoint from the pending queue
// (§4.3 has given up retrying it) and reports CheckpointExhausted. The
// checkpoint's history entry remains, status=failed, for operator visibility.
func (e *Engine) MarkCheckpointExhausted(sessionID string, index int, cause error) {
	e.mu.Lock()
	for i, item := range e.pending {
		if item.SessionID == sessionID && item.CheckpointIndex == index {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			break
		}
	}
	e.mu.Unlock()
	e.emit(Event{Kind: CheckpointExhausted, SessionID: sessionID, CheckpointIndex: index, Err: cause})
}

// ResetSession purges all of sessionID's pending checkpoints from the queue
// without affecting other sessions' accounting.
func (e *Engine) ResetSession(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	filtered := e.pending[:0]
	for _, item := range e.pending {
		if item.SessionID != sessionID {
			filtered = append(filtered, item)
		}
	}
	e.pending = filtered
}

func (e *Engine) submitCheckpoint(item CheckpointItem) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.SettlementDeadline)
	defer cancel()
	if _, err := e.checkpointSubmitter.SubmitCheckpoint(ctx, item); err == nil {
		e.MarkCheckpointProcessed(item.SessionID, item.CheckpointIndex)
	} else {
		e.MarkCheckpointExhausted(item.SessionID, item.CheckpointIndex, err)
	}
}

// Stats is the aggregate operator-visible snapshot across all sessions.
type Stats struct {
	Sessions             int
	TotalTokens          uint64
	CheckpointsReached   int
	CheckpointsProcessed int
	CheckpointsPending   int
	AvgTokensPerCheckpoint float64
}

// Stats computes the current aggregate statistics.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	pendingLen := len(e.pending)
	sessionIDs := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		sessionIDs = append(sessionIDs, id)
	}
	e.mu.Unlock()

	var st Stats
	st.Sessions = len(sessionIDs)
	st.CheckpointsPending = pendingLen

	for _, id := range sessionIDs {
		s := e.session(id, false)
		s.mu.Lock()
		st.TotalTokens += s.tokens
		st.CheckpointsReached += s.checkpoints
		st.CheckpointsProcessed += len(s.processed)
		s.mu.Unlock()
	}
	if st.CheckpointsReached > 0 {
		st.AvgTokensPerCheckpoint = float64(st.TotalTokens) / float64(st.CheckpointsReached)
	}
	return st
}
