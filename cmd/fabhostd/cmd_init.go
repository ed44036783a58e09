package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/fabhost/agent/internal/chainerr"
	"github.com/fabhost/agent/internal/config"
	"github.com/fabhost/agent/internal/wallet"
)

// newInitCmd runs an interactive first-run wizard that produces and saves
// the operator's config.json: network, contracts (from CONTRACT_* env vars
// when set), wallet, listen port, public URL, and models.
func newInitCmd() *cobra.Command {
	var nonInteractive bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactively create the operator config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			store, err := openStore(logger)
			if err != nil {
				return err
			}

			if _, err := store.Load(); err == nil {
				return chainerr.New(chainerr.Conflict, fmt.Sprintf("an operator config already exists at %s", store.Path()))
			}

			network := promptOrEnv("Network (base/base-sepolia)", "base-sepolia", nonInteractive)
			publicURL := promptOrEnv("Public URL this host is reachable at", "", nonInteractive)
			portRaw := promptOrEnv("Inference server listen port", "8000", nonInteractive)
			port, err := strconv.Atoi(portRaw)
			if err != nil {
				return chainerr.Wrap(chainerr.Validation, fmt.Sprintf("invalid port %q", portRaw), err)
			}
			modelsRaw := promptOrEnv("Comma-separated model IDs", "", nonInteractive)
			models := splitCSV(modelsRaw)

			w, err := resolveWallet(nonInteractive)
			if err != nil {
				return err
			}

			cfg := config.OperatorConfig{
				Version:       config.CurrentVersion,
				WalletAddress: w.Address().Hex(),
				Network:       network,
				RPCEndpoints:  rpcEndpointsFromEnv(network),
				Contracts:     contractsFromEnv(),
				ListenPort:    port,
				PublicURL:     publicURL,
				Models:        models,
				Resilience:    config.DefaultResilienceConfig(),
			}

			if err := store.Save(&cfg); err != nil {
				return err
			}

			pterm.Success.Printfln("wrote operator config to %s", store.Path())
			pterm.Info.Println("set HOST_PRIVATE_KEY in the environment before running `fabhostd serve` or `fabhostd start`")
			return nil
		},
	}

	cmd.Flags().BoolVar(&nonInteractive, "non-interactive", false, "use default values instead of prompting; fails if HOST_PRIVATE_KEY is not set")
	return cmd
}

func promptOrEnv(label, defaultValue string, nonInteractive bool) string {
	if nonInteractive {
		return defaultValue
	}
	result, err := pterm.DefaultInteractiveTextInput.WithDefaultText(fmt.Sprintf("%s [%s]", label, defaultValue)).Show()
	if err != nil || strings.TrimSpace(result) == "" {
		return defaultValue
	}
	return result
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// resolveWallet lets the operator generate a fresh wallet, import one from
// the environment, or supply a private key interactively.
func resolveWallet(nonInteractive bool) (*wallet.Wallet, error) {
	if key := os.Getenv("HOST_PRIVATE_KEY"); key != "" {
		return wallet.ImportPrivateKey(key)
	}
	if nonInteractive {
		return nil, chainerr.New(chainerr.Validation, "HOST_PRIVATE_KEY must be set in non-interactive mode")
	}

	choice, err := pterm.DefaultInteractiveSelect.WithOptions([]string{"generate a new wallet", "import a private key"}).Show()
	if err != nil {
		return nil, fmt.Errorf("wallet selection: %w", err)
	}

	if choice == "generate a new wallet" {
		w, err := wallet.Generate()
		if err != nil {
			return nil, err
		}
		pterm.Warning.Println("save this private key now; it will not be shown again")
		pterm.Println(w.PrivateKeyHex())
		return w, nil
	}

	key, err := pterm.DefaultInteractiveTextInput.WithMask("*").WithDefaultText("private key").Show()
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	return wallet.ImportPrivateKey(key)
}
