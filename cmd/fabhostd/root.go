package main

import (
	"github.com/spf13/cobra"
)

// globalFlags carries the persistent flags every subcommand reads through
// bootstrap.go.
type globalFlags struct {
	configDir string
	verbose   bool
}

var flags globalFlags

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fabhostd",
		Short: "Operator control plane for a Fabstir inference host",
		Long: `fabhostd authenticates an on-chain operator identity, supervises the
inference child process, settles sessions and checkpoints on-chain, and
exposes a management API for external tooling.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.configDir, "config-dir", "", "operator config directory (default: $FABSTIR_CONFIG_DIR or ~/.fabstir-host)")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "verbose logging")

	root.AddCommand(newInitCmd())
	root.AddCommand(newStartCmd())
	root.AddCommand(newStopCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newRegisterCmd())
	root.AddCommand(newUpdatePricingCmd())
	root.AddCommand(newWithdrawCmd())
	root.AddCommand(newInfoCmd())
	root.AddCommand(newLogsCmd())
	root.AddCommand(newWalletCmd())
	root.AddCommand(newServeCmd())

	return root
}
