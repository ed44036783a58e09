package agent

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"testing"

	gethcommon "github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/fabhost/agent/internal/config"
)

func testConfig() config.OperatorConfig {
	return config.OperatorConfig{
		Version:       config.CurrentVersion,
		WalletAddress: "0x1234567890123456789012345678901234567890",
		Network:       "base-sepolia",
		RPCEndpoints:  []string{"https://example.invalid/rpc"},
		Contracts: config.ContractAddresses{
			Marketplace: "0x0000000000000000000000000000000000000001",
			Registry:    "0x0000000000000000000000000000000000000002",
			Proof:       "0x0000000000000000000000000000000000000003",
			Earnings:    "0x0000000000000000000000000000000000000004",
			FabricToken: "0x0000000000000000000000000000000000000005",
			StableToken: "0x0000000000000000000000000000000000000006",
		},
		ListenPort: 8080,
		PublicURL:  "https://host.example.invalid",
		Models:     []string{"llama-3-8b"},
		Resilience: config.DefaultResilienceConfig(),
	}
}

func genHexKey(t *testing.T) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(gethcrypto.S256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	return gethcommon.Bytes2Hex(gethcrypto.FromECDSA(key))
}

func TestInitialize_UnauthenticatedUntilAuthenticate(t *testing.T) {
	cfg := testConfig()
	a, err := Initialize(context.Background(), cfg, Deps{})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer a.Shutdown(context.Background())

	if err := a.requireAuth(); err == nil {
		t.Fatal("expected requireAuth to fail before Authenticate")
	}

	events := a.Subscribe()
	select {
	case ev := <-events:
		if ev.Kind != EventConnected {
			t.Fatalf("expected Connected first, got %s", ev.Kind)
		}
	default:
		t.Fatal("expected a Connected event to have been published")
	}
}

func TestInitialize_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Network = ""
	if _, err := Initialize(context.Background(), cfg, Deps{}); err == nil {
		t.Fatal("expected validation error for empty network")
	}
}

func TestAuthenticate_PrivateKeySucceeds(t *testing.T) {
	cfg := testConfig()
	a, err := Initialize(context.Background(), cfg, Deps{})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer a.Shutdown(context.Background())

	events := a.Subscribe()
	_ = drainOne(events) // Connected

	key := genHexKey(t)
	if err := a.Authenticate(AuthRequest{Method: AuthPrivateKey, Payload: key}); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if err := a.requireAuth(); err != nil {
		t.Fatalf("expected authenticated, got: %v", err)
	}

	ev := drainOne(events)
	if ev.Kind != EventAuthChanged || !ev.Authenticated {
		t.Fatalf("expected AuthChanged(true), got %+v", ev)
	}
}

func TestAuthenticate_EnvVarMissingFails(t *testing.T) {
	cfg := testConfig()
	a, err := Initialize(context.Background(), cfg, Deps{})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer a.Shutdown(context.Background())

	err = a.Authenticate(AuthRequest{Method: AuthEnvVar, Payload: "FABHOST_TEST_DOES_NOT_EXIST"})
	if err == nil {
		t.Fatal("expected an error for an unset env var")
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	cfg := testConfig()
	a, err := Initialize(context.Background(), cfg, Deps{})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown should be a no-op, got: %v", err)
	}
}

func drainOne(ch <-chan Event) Event {
	return <-ch
}
