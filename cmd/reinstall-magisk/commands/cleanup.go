package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tim-hub/reinstall-magisk-on-lineageos/internal/config"
	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/db"
	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/errors"
)

var (
	cleanupStaging bool
	cleanupJournal bool
	cleanupAll     bool
)

// Local staging slots a run leaves behind. Device-side files are left
// alone: no rollback is attempted on the device.
var stagingFiles = []string{
	"lineage-build.zip",
	"payload.bin",
	"boot.img",
	"patched-boot.img",
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove local staging artifacts and optionally the run journal",
	Long: `Clean up local resources left by previous runs:
  --staging   Remove staged archives and boot images from the work dir
  --journal   Purge all rows from the run journal
  --all       Both`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().BoolVar(&cleanupStaging, "staging", false, "Remove local staging files")
	cleanupCmd.Flags().BoolVar(&cleanupJournal, "journal", false, "Purge the run journal")
	cleanupCmd.Flags().BoolVar(&cleanupAll, "all", false, "Remove staging files and purge the journal")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	if !cleanupStaging && !cleanupJournal && !cleanupAll {
		return fmt.Errorf("must specify --staging, --journal, or --all")
	}

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	if cleanupStaging || cleanupAll {
		if err := cleanupStagingFiles(cfg); err != nil {
			return err
		}
	}

	if cleanupJournal || cleanupAll {
		if err := cleanupJournalRows(cfg); err != nil {
			return err
		}
	}

	return nil
}

func cleanupStagingFiles(cfg *config.Config) error {
	removed := 0
	for _, name := range stagingFiles {
		path := filepath.Join(cfg.WorkDir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := os.Remove(path); err != nil {
			return errors.Wrap(err, fmt.Sprintf("failed to remove %s", path))
		}
		fmt.Printf("Removed: %s\n", path)
		removed++
	}
	fmt.Printf("Cleaned %d staging files\n", removed)
	return nil
}

func cleanupJournalRows(cfg *config.Config) error {
	repo, err := db.NewRepository(cfg.JournalPath)
	if err != nil {
		return errors.Wrap(err, "journal init failed")
	}
	defer repo.Close()

	deleted, err := repo.Purge()
	if err != nil {
		return errors.Wrap(err, "journal purge failed")
	}
	fmt.Printf("Purged %d journal rows\n", deleted)
	return nil
}
