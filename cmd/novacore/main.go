// Package main provides the CLI entry point for the orchestrator.
//
// novacore runs the chat execution engine (spec §4.2) behind a turn
// dispatcher (spec §4.1), persisting transcripts to Postgres or SQLite,
// broadcasting turn state over a websocket hub, and mirroring the dev
// conversation log to S3.
//
// # Basic Usage
//
// Start the server:
//
//	novacore serve --config novacore.yaml
//
// Check configuration and provider credentials:
//
//	novacore doctor
//
// Print today's dev conversation log:
//
//	novacore devlog tail
//
// # Environment Variables
//
//   - ANTHROPIC_API_KEY, OPENAI_API_KEY, GEMINI_API_KEY: provider credentials
//   - AWS_REGION: default region for the Bedrock provider (the S3 archive
//     mirror uses dev_log.archive.region, else us-east-1)
//   - ORCHESTRATOR_HUD_TOKEN_SECRET: HMAC secret for sensitive-tool HUD tokens
//   - ORCHESTRATOR_OTLP_ENDPOINT, ORCHESTRATOR_LOG_LEVEL: observability overrides
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
//
// Example build command:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// This is separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "novacore",
		Short: "novacore - chat execution engine and turn dispatcher",
		Long: `novacore dispatches inbound turns to the chat execution engine,
persists transcripts, and broadcasts live turn state over a websocket hub.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildDoctorCmd(),
		buildDevLogCmd(),
	)

	return rootCmd
}

func defaultConfigPath() string {
	if path := os.Getenv("ORCHESTRATOR_CONFIG"); path != "" {
		return path
	}
	return "novacore.yaml"
}
