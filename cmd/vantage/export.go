package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brightline/vantage/internal/snapshot"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all snapshots to a flat JSON file",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "snapshots.json",
		"Destination file for the JSON export")
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := snapshot.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := snapshot.ExportJSON(context.Background(), store, exportOut)
	if err != nil {
		return fmt.Errorf("export snapshots: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d snapshots exported to %s\n", n, exportOut)
	return nil
}
