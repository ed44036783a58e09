package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fabhost/agent/internal/config"
)

type stubSettlementSubmitter struct {
	result SettlementResult
	err    error
}

func (s *stubSettlementSubmitter) CompleteSessionJob(ctx context.Context, sessionID, jobID string, totalTokens uint64) (SettlementResult, error) {
	return s.result, s.err
}

type recordingFailedTxLog struct {
	calls []struct {
		to   string
		data string
	}
}

func (r *recordingFailedTxLog) Record(to string, data string, value config.BigInt, nonce uint64, lastErr error) error {
	r.calls = append(r.calls, struct {
		to   string
		data string
	}{to, data})
	return nil
}

func TestOnSessionEnd_S6SettlementSuccess(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Threshold = 100
	cfg.MarketplaceAddress = "0xMarketplace"
	submitter := &stubSettlementSubmitter{result: SettlementResult{TxHash: "0xABCD", BlockNumber: 42}}
	e := New(cfg, nil, nil, submitter, nil)
	events := e.Subscribe()

	e.AddTokens("s3", 257)
	e.MarkCheckpointProcessed("s3", 1)
	e.MarkCheckpointProcessed("s3", 2)

	e.OnSessionEnd(context.Background(), "s3", "job-1")

	var settled *Event
	for {
		select {
		case ev := <-events:
			if ev.Kind == SessionSettled {
				e := ev
				settled = &e
			}
		default:
			goto done
		}
	}
done:
	if settled == nil {
		t.Fatal("expected SessionSettled event")
	}
	if settled.TxHash != "0xABCD" || settled.TokensAfter != 257 {
		t.Errorf("SessionSettled = %+v, want txHash=0xABCD tokensAfter=257", settled)
	}
}

func TestOnSessionEnd_FailurePersistsToFailedTxLog(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Threshold = 100
	cfg.MarketplaceAddress = "0xMarketplace"
	cfg.SettlementDeadline = time.Second
	submitter := &stubSettlementSubmitter{err: errors.New("rpc unavailable")}
	failedTxs := &recordingFailedTxLog{}
	e := New(cfg, nil, nil, submitter, failedTxs)
	events := e.Subscribe()

	e.AddTokens("s3", 257)
	e.OnSessionEnd(context.Background(), "s3", "job-1")

	var failed bool
	for {
		select {
		case ev := <-events:
			if ev.Kind == SessionSettlementFailed {
				failed = true
			}
		default:
			goto done
		}
	}
done:
	if !failed {
		t.Fatal("expected SessionSettlementFailed event")
	}
	if len(failedTxs.calls) != 1 {
		t.Fatalf("expected 1 failed-tx record, got %d", len(failedTxs.calls))
	}
	if failedTxs.calls[0].to != "0xMarketplace" {
		t.Errorf("to = %q, want 0xMarketplace", failedTxs.calls[0].to)
	}
}

func TestOnSessionEnd_IsIdempotent(t *testing.T) {
	submitter := &stubSettlementSubmitter{result: SettlementResult{TxHash: "0x1"}}
	e := New(DefaultConfig(), nil, nil, submitter, nil)
	e.AddTokens("s", 10)

	e.OnSessionEnd(context.Background(), "s", "job")
	e.OnSessionEnd(context.Background(), "s", "job") // must not resubmit
}
