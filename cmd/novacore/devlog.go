package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/nova-run/orchestrator/internal/config"
	"github.com/nova-run/orchestrator/internal/devlog"
)

// buildDevLogCmd creates the "devlog" command group for inspecting the
// JSONL conversation log on disk (spec §4.13).
func buildDevLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devlog",
		Short: "Inspect the dev conversation log",
	}
	cmd.AddCommand(buildDevLogTailCmd())
	return cmd
}

// buildDevLogTailCmd creates the "devlog tail" subcommand: print today's
// (or a named day's) JSONL segment, one decoded event per line.
func buildDevLogTailCmd() *cobra.Command {
	var configPath string
	var day string
	var onlyTags []string

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print the dev log's JSONL segment for a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if day == "" {
				day = time.Now().UTC().Format("2006-01-02")
			}
			path := filepath.Join(cfg.DevLog.Path, day+".jsonl")
			return tailDevLog(cmd.OutOrStdout(), path, onlyTags)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to YAML configuration file")
	cmd.Flags().StringVar(&day, "day", "", "Day to read (YYYY-MM-DD); defaults to today (UTC)")
	cmd.Flags().StringSliceVar(&onlyTags, "tag", nil, "Only print events carrying one of these tags")
	return cmd
}

func tailDevLog(out io.Writer, path string, onlyTags []string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open dev log segment: %w", err)
	}
	defer f.Close()

	wantTags := make(map[devlog.Tag]bool, len(onlyTags))
	for _, t := range onlyTags {
		wantTags[devlog.Tag(t)] = true
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var evt devlog.Event
		if err := json.Unmarshal(scanner.Bytes(), &evt); err != nil {
			continue
		}
		if len(wantTags) > 0 && !hasAnyTag(evt.Tags, wantTags) {
			continue
		}
		fmt.Fprintf(out, "%s  %-12s  q=%.2f  %dms  %s -> %s\n",
			evt.Timestamp.Format(time.RFC3339), evt.SessionKey, evt.QualityScore,
			evt.LatencyMs, firstNonEmpty(evt.UserText, evt.UserTextHash), firstNonEmpty(evt.ReplyText, evt.ReplyTextHash))
	}
	return scanner.Err()
}

func hasAnyTag(tags []devlog.Tag, want map[devlog.Tag]bool) bool {
	for _, t := range tags {
		if want[t] {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
