package main

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/fabhost/agent/internal/agent"
	"github.com/fabhost/agent/internal/chainerr"
	"github.com/fabhost/agent/internal/supervisor"
)

func newStartCmd() *cobra.Command {
	var daemon bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Spawn the inference child process",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := newLogger()
			a, store, err := bootstrapAgent(ctx, logger)
			if err != nil {
				return err
			}
			defer a.Shutdown(ctx)

			w := a.Wallet()
			if w == nil {
				return chainerr.New(chainerr.Auth, "agent is not authenticated: set HOST_PRIVATE_KEY")
			}
			cfg := a.Config()

			spinner, _ := pterm.DefaultSpinner.Start("starting inference process")
			handle, err := supervisor.Spawn(ctx, supervisor.SpawnConfig{
				BinaryName:  "fabstir-llm-node",
				Port:        cfg.ListenPort,
				PublicURL:   cfg.PublicURL,
				ChainID:     agent.ChainIDFor(cfg.Network),
				OperatorKey: w.PrivateKeyHex(),
				ContractAddresses: map[string]string{
					"marketplace": cfg.Contracts.Marketplace,
					"registry":    cfg.Contracts.Registry,
					"proof":       cfg.Contracts.Proof,
					"earnings":    cfg.Contracts.Earnings,
					"fabricToken": cfg.Contracts.FabricToken,
					"stableToken": cfg.Contracts.StableToken,
				},
				Daemon: daemon,
			}, logger)
			if err != nil {
				spinner.Fail("start failed: " + err.Error())
				return err
			}
			spinner.Success("inference process running")

			a.AttachSupervisor(handle)
			info := handle.Info()

			cfg.LastPID = info.PID
			cfg.LastStartedAt = time.Now()
			if err := store.Save(&cfg); err != nil {
				pterm.Warning.Println("failed to persist last PID: " + err.Error())
			}

			pterm.Success.Printfln("pid %d listening on port %d", info.PID, info.Port)
			return nil
		},
	}

	cmd.Flags().BoolVar(&daemon, "daemon", false, "detach the inference process and discard its stdio")
	return cmd
}
