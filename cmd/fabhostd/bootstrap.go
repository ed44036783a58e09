package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	envutil "github.com/fabhost/agent/infrastructure/config"
	infralog "github.com/fabhost/agent/infrastructure/logging"
	"github.com/fabhost/agent/internal/agent"
	"github.com/fabhost/agent/internal/chainerr"
	"github.com/fabhost/agent/internal/config"
)

func newLogger() *infralog.Logger {
	level := "info"
	if flags.verbose {
		level = "debug"
	}
	return infralog.New("fabhostd", level, envutil.GetEnv("LOG_FORMAT", "text"))
}

// openStore resolves the operator config directory from --config-dir or
// FABSTIR_CONFIG_DIR and opens its Store.
func openStore(logger *infralog.Logger) (*config.Store, error) {
	store, err := config.NewStore(flags.configDir, logger)
	if err != nil {
		return nil, chainerr.Wrap(chainerr.Validation, "opening config store", err)
	}
	return store, nil
}

// dataDir is $DATA from spec.md §6's persisted state layout: the directory
// the config file itself lives in, holding proof-history.json and
// failed-txs.json alongside config.json.
func dataDir(store *config.Store) string {
	return filepath.Dir(store.Path())
}

// loadConfig reads the persisted OperatorConfig, translating a first-run
// missing file into a clear instruction to run `fabhostd init`.
func loadConfig(store *config.Store) (*config.OperatorConfig, error) {
	cfg, err := store.Load()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, chainerr.New(chainerr.Validation, "no operator config found; run `fabhostd init` first")
		}
		return nil, chainerr.Wrap(chainerr.Validation, "loading operator config", err)
	}
	return cfg, nil
}

// bootstrapAgent loads the persisted config, wires an Agent's dependencies,
// and authenticates it from HOST_PRIVATE_KEY when that variable is set;
// otherwise the returned Agent is unauthenticated.
func bootstrapAgent(ctx context.Context, logger *infralog.Logger) (*agent.Agent, *config.Store, error) {
	store, err := openStore(logger)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := loadConfig(store)
	if err != nil {
		return nil, store, err
	}

	dir := dataDir(store)
	history, err := config.NewProofHistory(filepath.Join(dir, "proof-history.json"), 0)
	if err != nil {
		return nil, store, chainerr.Wrap(chainerr.Validation, "opening proof history", err)
	}
	failedTxs, err := config.NewFailedTransactionLog(filepath.Join(dir, "failed-txs.json"))
	if err != nil {
		return nil, store, chainerr.Wrap(chainerr.Validation, "opening failed-tx log", err)
	}

	a, err := agent.Initialize(ctx, *cfg, agent.Deps{
		Store:     store,
		History:   history,
		FailedTxs: failedTxs,
		Logger:    logger,
	})
	if err != nil {
		return nil, store, err
	}

	if key := os.Getenv("HOST_PRIVATE_KEY"); key != "" {
		if err := a.Authenticate(agent.AuthRequest{Method: agent.AuthEnvVar, Payload: "HOST_PRIVATE_KEY"}); err != nil {
			return nil, store, err
		}
	}

	return a, store, nil
}

// contractsFromEnv resolves the CONTRACT_* environment variables named in
// spec.md §6, for `init`'s first-run wizard.
func contractsFromEnv() config.ContractAddresses {
	return config.ContractAddresses{
		Marketplace: os.Getenv("CONTRACT_JOB_MARKETPLACE"),
		Registry:    os.Getenv("CONTRACT_NODE_REGISTRY"),
		Proof:       os.Getenv("CONTRACT_PROOF_SYSTEM"),
		Earnings:    os.Getenv("CONTRACT_HOST_EARNINGS"),
		FabricToken: os.Getenv("CONTRACT_FAB_TOKEN"),
		StableToken: os.Getenv("CONTRACT_USDC_TOKEN"),
	}
}

// rpcEndpointsFromEnv resolves the network-qualified RPC_URL_<NETWORK> form
// spec.md §6 names for base-sepolia, e.g. RPC_URL_BASE_SEPOLIA, falling
// back to plain RPC_URL.
func rpcEndpointsFromEnv(network string) []string {
	qualified := fmt.Sprintf("RPC_URL_%s", envSuffix(network))
	if v := os.Getenv(qualified); v != "" {
		return []string{v}
	}
	if v := os.Getenv("RPC_URL"); v != "" {
		return []string{v}
	}
	return nil
}

func envSuffix(network string) string {
	out := make([]byte, 0, len(network))
	for _, r := range network {
		if r == '-' {
			out = append(out, '_')
			continue
		}
		out = append(out, byte(r-'a'+'A'))
	}
	return string(out)
}
