package main

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/fabhost/agent/internal/agent"
	"github.com/fabhost/agent/internal/chainerr"
)

func newRegisterCmd() *cobra.Command {
	var models []string
	var stake string
	var nativePrice string
	var stablePrice string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Stake and register this host with the node registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, _, err := bootstrapAgent(ctx, newLogger())
			if err != nil {
				return err
			}
			defer a.Shutdown(ctx)

			if a.Wallet() == nil {
				return chainerr.New(chainerr.Auth, "agent is not authenticated: set HOST_PRIVATE_KEY")
			}
			if len(models) == 0 {
				return chainerr.New(chainerr.Validation, "--models is required")
			}
			stakeAmount, ok := new(big.Int).SetString(stake, 10)
			if !ok {
				return chainerr.New(chainerr.Validation, "--stake must be a base-10 integer")
			}

			cfg := a.Config()
			var pricing []agent.PricingEntry
			if nativePrice != "" {
				price, ok := new(big.Int).SetString(nativePrice, 10)
				if !ok {
					return chainerr.New(chainerr.Validation, "--native-price must be a base-10 integer")
				}
				for _, m := range models {
					pricing = append(pricing, agent.PricingEntry{ModelID: m, Token: common.Address{}, Price: price})
				}
			}
			if stablePrice != "" {
				price, ok := new(big.Int).SetString(stablePrice, 10)
				if !ok {
					return chainerr.New(chainerr.Validation, "--stable-price must be a base-10 integer")
				}
				for _, m := range models {
					pricing = append(pricing, agent.PricingEntry{ModelID: m, Token: common.HexToAddress(cfg.Contracts.StableToken), Price: price})
				}
			}

			spinner, _ := pterm.DefaultSpinner.Start("submitting registration")
			result, err := a.Register(ctx, agent.RegisterRequest{
				PublicURL: cfg.PublicURL,
				Models:    models,
				Stake:     stakeAmount,
				Pricing:   pricing,
			})
			if err != nil {
				spinner.Fail("registration failed: " + err.Error())
				return err
			}
			spinner.Success("host registered")

			pterm.Success.Printfln("approve tx:  %s", result.ApproveTxHash)
			pterm.Success.Printfln("register tx: %s", result.RegisterTxHash)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&models, "models", nil, "comma-separated model IDs to advertise")
	cmd.Flags().StringVar(&stake, "stake", "", "stake amount in fabric token base units")
	cmd.Flags().StringVar(&nativePrice, "native-price", "", "minimum native-coin price per million tokens, in wei")
	cmd.Flags().StringVar(&stablePrice, "stable-price", "", "minimum stable-token price per million tokens, in base units")
	return cmd
}
