// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/extract-server/internal/audit"
	"github.com/pdiddy/extract-server/pkg/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent conversions from the audit log",
	Long: `History reads the SQLite audit log configured by audit.path and prints
the newest conversion records. Records hold request metadata only; file
content and Markdown are never stored.

Use --stats for per-status counts instead of individual records.`,
	RunE: runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Audit.Path == "" {
		return errors.New("audit log is disabled: set audit.path or EXTRACT_SERVER_AUDIT_PATH")
	}

	store, err := audit.Open(cfg.Audit.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	format, _ := cmd.Flags().GetString("format")
	out := cmd.OutOrStdout()

	if stats, _ := cmd.Flags().GetBool("stats"); stats {
		counts, err := store.Stats(cmd.Context())
		if err != nil {
			return err
		}
		return formatStats(out, counts, format)
	}

	limit, _ := cmd.Flags().GetInt("limit")
	status, _ := cmd.Flags().GetString("status")
	recs, err := store.Recent(cmd.Context(), audit.Filter{
		Status: types.ConversionStatus(status),
		Limit:  limit,
	})
	if err != nil {
		return err
	}
	return formatHistory(out, recs, format)
}

func formatHistory(w io.Writer, recs []types.ConversionRecord, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if recs == nil {
			recs = []types.ConversionRecord{}
		}
		return enc.Encode(recs)
	case "yaml":
		return yaml.NewEncoder(w).Encode(recs)
	case "table", "":
	default:
		return fmt.Errorf("unknown format %q (want table, yaml, or json)", format)
	}

	if len(recs) == 0 {
		fmt.Fprintln(w, "No conversions recorded.")
		return nil
	}

	fmt.Fprintf(w, "%-36s  %-9s  %-30s  %9s  %-12s  %8s  %s\n",
		"ID", "Status", "File", "Size", "Backend", "Took", "When")
	fmt.Fprintln(w, strings.Repeat("-", 130))
	for _, r := range recs {
		fmt.Fprintf(w, "%-36s  %-9s  %-30s  %9s  %-12s  %8s  %s\n",
			r.ID, r.Status, truncate(r.Filename, 30), humanize.Bytes(uint64(r.SizeBytes)),
			truncate(r.Backend, 12), r.Duration.Round(time.Millisecond), humanize.Time(r.CreatedAt))
		if r.Error != "" {
			fmt.Fprintf(w, "    error: %s\n", r.Error)
		}
	}
	return nil
}

func formatStats(w io.Writer, counts map[types.ConversionStatus]int, format string) error {
	switch format {
	case "json":
		return json.NewEncoder(w).Encode(counts)
	case "yaml":
		return yaml.NewEncoder(w).Encode(counts)
	case "table", "":
	default:
		return fmt.Errorf("unknown format %q (want table, yaml, or json)", format)
	}

	statuses := make([]string, 0, len(counts))
	total := 0
	for st, n := range counts {
		statuses = append(statuses, string(st))
		total += n
	}
	sort.Strings(statuses)
	for _, st := range statuses {
		fmt.Fprintf(w, "%-10s %s\n", st, humanize.Comma(int64(counts[types.ConversionStatus(st)])))
	}
	fmt.Fprintf(w, "%-10s %s\n", "total", humanize.Comma(int64(total)))
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of records to show")
	historyCmd.Flags().String("status", "", "only show records with this status: converted, failed, or rejected")
	historyCmd.Flags().String("format", "table", "output format: table, yaml, or json")
	historyCmd.Flags().Bool("stats", false, "print per-status counts")

	rootCmd.AddCommand(historyCmd)
}
