package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/brightline/vantage/internal/archive"
	"github.com/brightline/vantage/internal/syncer"
)

var (
	syncNamesFile  string
	syncJSONOutput bool
)

var syncCmd = &cobra.Command{
	Use:   "sync [name ...]",
	Short: "Run one synchronization pass over the given competitors",
	Long:  "Researches each named competitor, diffs against the local snapshot, and applies minimal writes to the external document store. Names come from arguments, --file, or both.",
	RunE:  runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncNamesFile, "file", "",
		"File with one competitor name per line (lines starting with # are skipped)")
	syncCmd.Flags().BoolVar(&syncJSONOutput, "json", false,
		"Output the full run report as JSON")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	names := append([]string(nil), args...)
	if syncNamesFile != "" {
		fromFile, err := readNamesFile(syncNamesFile)
		if err != nil {
			return err
		}
		names = append(names, fromFile...)
	}
	if len(names) == 0 {
		return fmt.Errorf("no competitor names given; pass arguments or --file")
	}

	s, store, err := buildSyncer(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	report, runErr := s.Run(ctx, names)
	if report == nil {
		return runErr
	}

	uploader, err := archive.NewUploader(cfg.Archive)
	if err != nil {
		return err
	}
	if err := archive.StoreReport(context.Background(), uploader, report); err != nil {
		slog.Warn("report archive failed", "run_id", report.RunID, "error", err)
	}

	if syncJSONOutput {
		if err := printJSON(cmd.OutOrStdout(), report); err != nil {
			return err
		}
	} else {
		printReport(cmd.OutOrStdout(), report)
	}

	if runErr != nil {
		return runErr
	}
	if report.Failed() {
		return fmt.Errorf("run %s completed with failures", report.RunID)
	}
	return nil
}

// readNamesFile reads one competitor name per line, skipping blanks and
// comment lines.
func readNamesFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open names file: %w", err)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read names file: %w", err)
	}
	return names, nil
}

func printReport(out io.Writer, report *syncer.Report) {
	w := newTabWriter(out)
	fmt.Fprintln(w, "COMPETITOR\tOUTCOME\tDETAIL")
	for _, res := range report.Results {
		detail := "-"
		switch res.Outcome {
		case syncer.OutcomeCreated, syncer.OutcomeUpdated:
			if len(res.Changed) > 0 {
				detail = strings.Join(res.Changed, ", ")
			}
		case syncer.OutcomeFailed:
			detail = string(res.Reason)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", res.DisplayName, res.Outcome, detail)
	}
	w.Flush()

	counts := report.Counts()
	fmt.Fprintf(w, "\nrun %s: %d created, %d updated, %d unchanged, %d stale, %d failed\n",
		report.RunID,
		counts[syncer.OutcomeCreated],
		counts[syncer.OutcomeUpdated],
		counts[syncer.OutcomeUnchanged],
		counts[syncer.OutcomeStale],
		counts[syncer.OutcomeFailed],
	)
	if len(report.Discovered) > 0 {
		fmt.Fprintf(w, "discovered: %s\n", strings.Join(report.Discovered, ", "))
	}
	w.Flush()
}
