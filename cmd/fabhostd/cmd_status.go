package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var asJSON bool
	var verbose bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the agent's authentication, process, and session state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, _, err := bootstrapAgent(ctx, newLogger())
			if err != nil {
				return err
			}
			defer a.Shutdown(ctx)

			info := a.Info()

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}

			rows := [][]string{
				{"field", "value"},
				{"authenticated", fmt.Sprintf("%v", info.Authenticated)},
				{"address", info.Address},
				{"network", info.Network},
				{"publicUrl", info.PublicURL},
				{"uptime", info.Uptime.Round(0).String()},
				{"requirementsMet", fmt.Sprintf("%v", info.RequirementsMet)},
			}
			if info.Process != nil {
				rows = append(rows,
					[]string{"processStatus", string(info.Process.Status)},
					[]string{"processPid", fmt.Sprintf("%d", info.Process.PID)},
				)
			}
			if verbose {
				for symbol, bal := range info.Balances {
					rows = append(rows, []string{"balance." + symbol, bal})
				}
				rows = append(rows,
					[]string{"sessions", fmt.Sprintf("%d", info.Session.Sessions)},
					[]string{"totalTokens", fmt.Sprintf("%d", info.Session.TotalTokens)},
					[]string{"checkpointsPending", fmt.Sprintf("%d", info.Session.CheckpointsPending)},
				)
				for _, reason := range info.Reasons {
					rows = append(rows, []string{"reason", reason})
				}
			}

			return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print status as JSON")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "include balances, session stats, and requirement reasons")
	return cmd
}
