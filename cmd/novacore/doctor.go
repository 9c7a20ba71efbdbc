package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nova-run/orchestrator/internal/config"
)

// buildDoctorCmd creates the "doctor" command: load the config (printing
// every validation issue Load reports), print the configured session
// store target, which provider credentials are present and the archive
// target, then build the provider registry. It opens no database
// connection and makes no network call to a provider.
func buildDoctorCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration and report store/provider settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			cfg, err := config.Load(configPath)
			if err != nil {
				fmt.Fprintf(out, "config: FAIL\n  %v\n", err)
				return err
			}
			fmt.Fprintf(out, "config: OK (%s)\n", configPath)

			fmt.Fprintf(out, "database: driver=%s", cfg.Database.Driver)
			if cfg.Database.Driver == "postgres" {
				fmt.Fprintf(out, " host=%s:%d db=%s", cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)
			} else {
				fmt.Fprintf(out, " path=%s", cfg.Database.SQLitePath)
			}
			fmt.Fprintln(out)

			checkCredential(out, "anthropic", cfg.Providers.Anthropic.APIKey != "")
			checkCredential(out, "openai", cfg.Providers.OpenAI.APIKey != "")
			checkCredential(out, "gemini", cfg.Providers.Gemini.APIKey != "")
			checkCredential(out, "bedrock", cfg.Providers.Bedrock.Region != "")

			if cfg.DevLog.Archive.Enabled {
				fmt.Fprintf(out, "archive: s3://%s/%s (region %s)\n",
					cfg.DevLog.Archive.Bucket, cfg.DevLog.Archive.Prefix, cfg.DevLog.Archive.Region)
			} else {
				fmt.Fprintln(out, "archive: disabled")
			}

			registry, _ := buildProviderRegistry(cmd.Context(), cfg.Providers)
			if registry == nil {
				return fmt.Errorf("no provider credentials configured")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to YAML configuration file")
	return cmd
}

func checkCredential(out io.Writer, name string, present bool) {
	status := "not configured"
	if present {
		status = "configured"
	}
	fmt.Fprintf(out, "provider %s: %s\n", name, status)
}
