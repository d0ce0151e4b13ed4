package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/brightline/vantage/internal/snapshot"
)

var statusJSONOutput bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tracked competitors and their last sync times",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSONOutput, "json", false,
		"Output in JSON format")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := snapshot.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	snaps, err := store.All(ctx)
	if err != nil {
		return fmt.Errorf("list snapshots: %w", err)
	}
	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].Key < snaps[j].Key
	})

	if statusJSONOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"snapshots": snaps,
			"total":     len(snaps),
		})
	}

	if len(snaps) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No competitors tracked yet.")
		return nil
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "KEY\tNAME\tEXTERNAL REF\tLAST SYNCED")
	for _, s := range snaps {
		ref := s.ExternalRef
		if ref == "" {
			ref = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			s.Key,
			s.DisplayName,
			ref,
			s.SyncedAt.Format("2006-01-02 15:04"),
		)
	}
	w.Flush()

	return nil
}
