package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	envutil "github.com/fabhost/agent/infrastructure/config"
	"github.com/fabhost/agent/internal/api"
	"github.com/fabhost/agent/internal/chainerr"
)

func newServeCmd() *cobra.Command {
	var port int
	var corsOrigins []string
	var apiKey string
	var apiKeyEnv string
	var metricsEnabled bool
	var rateLimitPerSecond int
	var rateLimitBurst int
	var requestTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the management API, blocking until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if apiKeyEnv != "" {
				secret, err := envutil.EnvOrSecretBytes(apiKeyEnv)
				if err != nil {
					return chainerr.Wrap(chainerr.Validation, "reading --api-key-env", err)
				}
				apiKey = string(secret)
			}

			a, _, err := bootstrapAgent(ctx, logger)
			if err != nil {
				return err
			}
			defer a.Shutdown(ctx)

			srv := api.New(a, api.Config{
				Addr:               fmt.Sprintf(":%d", port),
				APIKey:             apiKey,
				CORSOrigins:        corsOrigins,
				MetricsEnabled:     metricsEnabled,
				RateLimitPerSecond: rateLimitPerSecond,
				RateLimitBurst:     rateLimitBurst,
				RequestTimeout:     requestTimeout,
			}, logger)

			return srv.Run(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 8090, "management API listen port")
	cmd.Flags().StringSliceVar(&corsOrigins, "cors", nil, "allowed CORS origins (default: localhost only)")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "require this value in the X-API-Key header on /api/*")
	cmd.Flags().StringVar(&apiKeyEnv, "api-key-env", "", "read the X-API-Key value from this environment variable instead of --api-key (0x-hex decoded, or used as raw bytes)")
	cmd.Flags().BoolVar(&metricsEnabled, "metrics", false, "expose /metrics and wrap requests with Prometheus instrumentation")
	cmd.Flags().IntVar(&rateLimitPerSecond, "rate-limit", 0, "requests per second allowed per caller on /api/*; 0 disables rate limiting")
	cmd.Flags().IntVar(&rateLimitBurst, "rate-limit-burst", 20, "burst size for --rate-limit")
	cmd.Flags().DurationVar(&requestTimeout, "request-timeout", 30*time.Second, "maximum duration for a single /api/* request")
	return cmd
}
