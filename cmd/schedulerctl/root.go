package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	serverAddr string
	bearerToken string
	logger      *slog.Logger
)

type commandContext struct {
	correlationID uuid.UUID
	startedAt     time.Time
}

type commandContextKey struct{}

var rootCmd = &cobra.Command{
	Use:   "schedulerctl",
	Short: "schedulerctl drives the scheduling orchestrator from the command line",
	Long: `schedulerctl is a thin client for the Request Orchestrator's HTTP API.
It lets an operator trigger a schedule run for a capture or undo a plan
without going through whatever client normally submits captures.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if logger == nil {
			logger = slog.Default()
		}
		ctx := cmd.Context()
		info := commandContext{correlationID: uuid.New(), startedAt: time.Now()}
		cmd.SetContext(context.WithValue(ctx, commandContextKey{}, info))
		logger.Info("command start", "command", cmd.CommandPath(), "correlation_id", info.correlationID.String())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger == nil {
			logger = slog.Default()
		}
		info, ok := cmd.Context().Value(commandContextKey{}).(commandContext)
		if !ok {
			return
		}
		logger.Info("command end",
			"command", cmd.CommandPath(),
			"correlation_id", info.correlationID.String(),
			"duration_ms", time.Since(info.startedAt).Milliseconds(),
		)
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", envOr("SCHEDULERCTL_SERVER", "http://localhost:8090"), "orchestrator base URL")
	rootCmd.PersistentFlags().StringVar(&bearerToken, "token", os.Getenv("SCHEDULERCTL_TOKEN"), "bearer token identifying the acting user")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
