package chainops

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// NonceTracker hands out monotonically increasing nonces for a single
// account, refreshing from the chain only when its local cache is empty or
// has fallen behind (e.g. after a "nonce too low" rejection).
type NonceTracker struct {
	mu      sync.Mutex
	account common.Address
	next    uint64
	primed  bool
}

// NewNonceTracker creates a tracker for account. It lazily primes itself from
// PendingNonceAt on first use rather than at construction time, so building
// one never needs a context or a chain round-trip.
func NewNonceTracker(account common.Address) *NonceTracker {
	return &NonceTracker{account: account}
}

// Next returns the nonce to use for the next transaction, priming from the
// chain if this is the first call.
func (t *NonceTracker) Next(ctx context.Context, c ChainBackend) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.primed {
		n, err := c.PendingNonceAt(ctx, t.account)
		if err != nil {
			return 0, err
		}
		t.next = n
		t.primed = true
	}

	n := t.next
	t.next++
	return n, nil
}

// Peek returns the last nonce handed out (or 0 if none yet), without
// touching the chain. Used for labelling a failed-transaction record when a
// fresh RPC round-trip is not worth making.
func (t *NonceTracker) Peek() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.primed || t.next == 0 {
		return 0
	}
	return t.next - 1
}

// Release returns a nonce to the pool after a failed send that never reached
// the mempool (e.g. signing failure), so the next attempt reuses it instead
// of leaving a gap.
func (t *NonceTracker) Release(nonce uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.primed && nonce < t.next {
		t.next = nonce
	}
}

// Resync forces the next call to Next to re-fetch from the chain, used after
// a "nonce too low" rejection indicates the local cache has drifted.
func (t *NonceTracker) Resync() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.primed = false
}
