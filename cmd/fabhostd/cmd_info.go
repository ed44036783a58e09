package main

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// newInfoCmd prints the persisted operator configuration, as distinct from
// `status`'s live on-chain/process snapshot.
func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the persisted operator configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			store, err := openStore(logger)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(store)
			if err != nil {
				return err
			}

			rows := [][]string{
				{"field", "value"},
				{"walletAddress", cfg.WalletAddress},
				{"network", cfg.Network},
				{"rpcEndpoints", strings.Join(cfg.RPCEndpoints, ", ")},
				{"listenPort", fmt.Sprintf("%d", cfg.ListenPort)},
				{"publicUrl", cfg.PublicURL},
				{"models", strings.Join(cfg.Models, ", ")},
				{"marketplace", cfg.Contracts.Marketplace},
				{"registry", cfg.Contracts.Registry},
				{"proof", cfg.Contracts.Proof},
				{"earnings", cfg.Contracts.Earnings},
				{"fabricToken", cfg.Contracts.FabricToken},
				{"stableToken", cfg.Contracts.StableToken},
				{"configPath", store.Path()},
			}
			return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
		},
	}
}
