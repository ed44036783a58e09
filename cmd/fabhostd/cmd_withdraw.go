package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/fabhost/agent/internal/chainerr"
)

func newWithdrawCmd() *cobra.Command {
	var tokens []string
	var all bool

	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Withdraw accrued earnings from the Earnings contract",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, _, err := bootstrapAgent(ctx, newLogger())
			if err != nil {
				return err
			}
			defer a.Shutdown(ctx)

			cfg := a.Config()
			var addrs []common.Address
			if all {
				addrs = []common.Address{
					common.HexToAddress(cfg.Contracts.FabricToken),
					common.HexToAddress(cfg.Contracts.StableToken),
				}
			} else {
				if len(tokens) == 0 {
					return chainerr.New(chainerr.Validation, "--tokens is required unless --all is set")
				}
				for _, t := range tokens {
					addrs = append(addrs, common.HexToAddress(t))
				}
			}

			spinner, _ := pterm.DefaultSpinner.Start("withdrawing earnings")
			result, err := a.Withdraw(ctx, addrs)
			if err != nil {
				spinner.Fail("withdrawal failed: " + err.Error())
				return err
			}
			spinner.Success("earnings withdrawn")
			for _, hash := range result.TxHashes {
				pterm.Success.Println(hash)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&tokens, "tokens", nil, "comma-separated token addresses to withdraw")
	cmd.Flags().BoolVar(&all, "all", false, "withdraw both the fabric and stable token balances")
	return cmd
}
