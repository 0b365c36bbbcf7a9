package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tim-hub/reinstall-magisk-on-lineageos/internal/config"
	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/db"
	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/errors"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded pipeline runs",
	RunE:  runRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	// Ensure the journal directory exists
	if err := ensureDirectories(cfg.JournalPath, "", ""); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.JournalPath)
	if err != nil {
		return errors.Wrap(err, "journal init failed")
	}
	defer repo.Close()

	runs, err := repo.List()
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	fmt.Printf("%-4s %-14s %-34s %-14s %-14s %-10s %-10s\n",
		"ID", "SERIAL", "VERSION", "SOURCE", "FORMAT", "STAGE", "STATUS")
	fmt.Println("----------------------------------------------------------------------------------------------------------")

	for _, run := range runs {
		source := run.Source
		if source == "" {
			source = "-"
		}
		format := run.Format
		if format == "" {
			format = "-"
		}
		fmt.Printf("%-4d %-14s %-34s %-14s %-14s %-10s %-10s\n",
			run.ID, run.Serial, run.Version, source, format, run.Stage, run.Status)
		if run.ErrorMessage != "" {
			fmt.Printf("     %s\n", run.ErrorMessage)
		}
	}

	return nil
}
