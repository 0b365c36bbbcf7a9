package commands

import (
	"os"
	"path/filepath"

	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/errors"
)

// ensureDirectories creates all necessary directories for the application
func ensureDirectories(journalPath, fsmDBPath, workDir string) error {
	// Create journal directory
	if err := os.MkdirAll(filepath.Dir(journalPath), 0755); err != nil {
		return errors.Wrap(err, "failed to create journal directory")
	}

	// Create FSM database directory (only needed for the patch command)
	if fsmDBPath != "" {
		if err := os.MkdirAll(filepath.Dir(fsmDBPath), 0755); err != nil {
			return errors.Wrap(err, "failed to create FSM directory")
		}
	}

	// Create work directory (only needed for the patch command)
	if workDir != "" {
		if err := os.MkdirAll(workDir, 0755); err != nil {
			return errors.Wrap(err, "failed to create work directory")
		}
	}

	return nil
}
