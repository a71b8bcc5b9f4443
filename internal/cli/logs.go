package cli

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show recent server logs",
	Long: `Display the most recent log entries kept in the server's memory buffer.
Requires admin.token to be set on the server.`,
	Example: `jalaprana logs
jalaprana logs -n 20 --level warn
jalaprana logs --json`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server statistics",
	Example: `jalaprana stats
jalaprana stats --json`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	addServerFlags(logsCmd)
	addServerFlags(statsCmd)
	logsCmd.Flags().IntP("lines", "n", 100, "Number of log lines to show")
	logsCmd.Flags().String("level", "", "Minimum log level (debug, info, warn, error)")
}

type logEntry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

var levelRank = map[string]int{"DEBUG": 0, "INFO": 1, "WARN": 2, "ERROR": 3}

func runLogs(cmd *cobra.Command, _ []string) error {
	lines, _ := cmd.Flags().GetInt("lines")
	level, _ := cmd.Flags().GetString("level")
	minRank, ok := levelRank[strings.ToUpper(level)]
	if level != "" && !ok {
		return fmt.Errorf("invalid --level %q (want debug, info, warn or error)", level)
	}

	body, err := adminCall(cmd, http.MethodGet, "/api/admin/logs", nil, http.StatusOK)
	if err != nil {
		return err
	}

	var result struct {
		Entries []logEntry `json:"entries"`
		Message string     `json:"message"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	entries := slices.DeleteFunc(result.Entries, func(e logEntry) bool {
		return levelRank[e.Level] < minRank
	})
	if lines > 0 && len(entries) > lines {
		entries = entries[len(entries)-lines:]
	}

	out := cmd.OutOrStdout()
	if outputFormat(cmd) == "json" {
		return writeJSON(out, entries)
	}
	if len(entries) == 0 {
		if result.Message != "" {
			fmt.Fprintln(out, result.Message)
		} else {
			fmt.Fprintln(out, "No log entries.")
		}
		return nil
	}

	c := colorEnabled()
	for _, e := range entries {
		fmt.Fprintf(out, "%s %s %s%s\n",
			dim(e.Time.Format("15:04:05"), c), levelLabel(e.Level, c), e.Message, formatAttrs(e.Attrs))
	}
	return nil
}

func levelLabel(level string, c bool) string {
	label := fmt.Sprintf("%-5s", level)
	switch level {
	case "WARN":
		return yellow(label, c)
	case "ERROR":
		return red(label, c)
	case "DEBUG":
		return dim(label, c)
	}
	return cyan(label, c)
}

// formatAttrs renders attrs as " k=v" pairs sorted by key.
func formatAttrs(attrs map[string]any) string {
	if len(attrs) == 0 {
		return ""
	}
	var b strings.Builder
	for _, k := range slices.Sorted(maps.Keys(attrs)) {
		fmt.Fprintf(&b, " %s=%v", k, attrs[k])
	}
	return b.String()
}

func runStats(cmd *cobra.Command, _ []string) error {
	body, err := adminCall(cmd, http.MethodGet, "/api/admin/stats", nil, http.StatusOK)
	if err != nil {
		return err
	}

	var stats map[string]any
	if err := json.Unmarshal(body, &stats); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	keys := slices.Sorted(maps.Keys(stats))

	out := cmd.OutOrStdout()
	switch outputFormat(cmd) {
	case "json":
		return writeJSON(out, stats)
	case "csv":
		vals := make([]string, len(keys))
		for i, k := range keys {
			vals[i] = fmt.Sprint(stats[k])
		}
		return writeCSV(out, keys, [][]string{vals})
	}

	fmt.Fprintln(out, "Jalaprana Server Statistics")
	fmt.Fprintln(out, "───────────────────────────")
	for _, k := range keys {
		fmt.Fprintf(out, "  %-22s %v\n", k+":", stats[k])
	}
	return nil
}
