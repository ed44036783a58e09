package chainops

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TxQueueEntry is one pending or in-flight transaction handed to the
// operator's single-writer queue.
type TxQueueEntry struct {
	Target        common.Address
	CallData      []byte
	Value         *big.Int
	NonceHint     *uint64
	Policy        RetryPolicy
	Attempts      int
	NextAttemptAt time.Time
	result        chan queueResult
}

type queueResult struct {
	res SendResult
	err error
}

// Queue submits entry to the single-writer send loop and blocks until it
// either confirms or exhausts its retry budget. Concurrent callers never
// collide on nonce assignment because only the queue goroutine calls Send.
func (o *Operator) Queue(ctx context.Context, entry TxQueueEntry) (SendResult, error) {
	entry.result = make(chan queueResult, 1)
	select {
	case o.queueCh <- entry:
	case <-ctx.Done():
		return SendResult{}, ctx.Err()
	}

	select {
	case r := <-entry.result:
		return r.res, r.err
	case <-ctx.Done():
		return SendResult{}, ctx.Err()
	}
}

// ProcessQueue runs the single-writer loop until ctx is cancelled. Callers
// start it exactly once per Operator, typically from the agent's lifecycle
// goroutine.
func (o *Operator) ProcessQueue(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case entry := <-o.queueCh:
			res, err := o.Send(ctx, entry.Target, entry.CallData, entry.Value, entry.Policy)
			entry.result <- queueResult{res: res, err: err}
		}
	}
}
