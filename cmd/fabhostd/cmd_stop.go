package main

import (
	"fmt"
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/fabhost/agent/internal/chainerr"
	"github.com/fabhost/agent/internal/supervisor"
)

// newStopCmd stops the inference child process. A `start`/`stop` pair
// issued from two separate CLI invocations can't share an in-process
// Supervisor handle, so stop falls back to signaling the PID `start`
// persisted to config.json when this process never spawned the child
// itself — the same child-process relationship `serve` maintains in-memory
// for its own lifetime.
func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running inference child process",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := newLogger()
			a, store, err := bootstrapAgent(ctx, logger)
			if err != nil {
				return err
			}
			defer a.Shutdown(ctx)

			if h := a.Supervisor(); h != nil {
				if err := h.Stop(supervisor.DefaultGracePeriod); err != nil {
					return err
				}
				pterm.Success.Println("inference process stopped")
				return nil
			}

			cfg := a.Config()
			if cfg.LastPID == 0 {
				return chainerr.New(chainerr.Conflict, "inference process is not running")
			}
			proc, err := os.FindProcess(cfg.LastPID)
			if err != nil {
				return fmt.Errorf("finding pid %d: %w", cfg.LastPID, err)
			}
			if err := proc.Signal(os.Interrupt); err != nil {
				return fmt.Errorf("signaling pid %d: %w", cfg.LastPID, err)
			}

			cfg.LastPID = 0
			cfg.LastStartedAt = time.Time{}
			if err := store.Save(&cfg); err != nil {
				pterm.Warning.Println("failed to clear persisted PID: " + err.Error())
			}
			pterm.Success.Printfln("sent interrupt to pid %d", proc.Pid)
			return nil
		},
	}
}
