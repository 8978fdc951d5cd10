package commands

import (
	"github.com/spf13/cobra"

	"github.com/e7canasta/orion-ticket-capture/internal/printer"
	"github.com/e7canasta/orion-ticket-capture/modules/storage"
)

var cleanupDays int

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove capture directories older than the retention period",
	Args:  cobra.NoArgs,
	RunE:  runCleanup,
}

func init() {
	cleanupCmd.Flags().IntVarP(&cleanupDays, "days", "d", 0, "retention in days (default files.retention_days)")
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	days := cleanupDays
	if days == 0 {
		days = cfg.Files.RetentionDays
	}
	if days < 1 {
		return printer.Error("no retention period",
			"files.retention_days is not set in the configuration",
			"pass --days N")
	}

	store, err := storage.New(cfg.StorageConfig(version))
	if err != nil {
		return printer.Error("cannot open the capture directory", err.Error())
	}
	n, err := store.Cleanup(days)
	if err != nil {
		return printer.Error("cleanup failed", err.Error())
	}
	printer.Success("%d directories older than %d days removed from %s", n, days, cfg.Files.BaseDir)
	return nil
}
