package main

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/fabhost/agent/internal/chainerr"
)

func newUpdatePricingCmd() *cobra.Command {
	var modelID string
	var token string
	var price string

	cmd := &cobra.Command{
		Use:   "update-pricing",
		Short: "Set or clear this host's minimum price for a model/token pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, _, err := bootstrapAgent(ctx, newLogger())
			if err != nil {
				return err
			}
			defer a.Shutdown(ctx)

			if modelID == "" {
				return chainerr.New(chainerr.Validation, "--model is required")
			}

			tokenAddr := common.Address{}
			if token != "" {
				tokenAddr = common.HexToAddress(token)
			}

			var parsedPrice *big.Int
			if price != "" {
				p, ok := new(big.Int).SetString(price, 10)
				if !ok {
					return chainerr.New(chainerr.Validation, "--price must be a base-10 integer")
				}
				parsedPrice = p
			}

			if err := a.UpdatePricing(ctx, modelID, tokenAddr, parsedPrice); err != nil {
				return err
			}
			if parsedPrice == nil {
				pterm.Success.Printfln("cleared pricing override for %s", modelID)
			} else {
				pterm.Success.Printfln("updated pricing for %s", modelID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&modelID, "model", "", "model ID")
	cmd.Flags().StringVar(&token, "token", "", "payment token address; empty or zero address means native coin")
	cmd.Flags().StringVar(&price, "price", "", "minimum price per million tokens in base units; omit to clear the override")
	return cmd
}
