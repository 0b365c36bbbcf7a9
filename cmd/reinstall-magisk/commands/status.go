package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tim-hub/reinstall-magisk-on-lineageos/internal/config"
	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/device"
	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/errors"
	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/shell"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report device mode, identity, and Magisk presence without changing anything",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	transport := device.NewTransport(shell.ExecRunner{}, cfg.ADBPath, cfg.FastbootPath, cfg.Serial)

	mode := transport.Mode(ctx)
	fmt.Printf("Mode:     %s\n", mode)

	if mode != device.ModeNormal {
		// Identity props and pm are only reachable through the running OS.
		return nil
	}

	id, err := transport.ReadIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to read device identity")
	}
	fmt.Printf("Serial:   %s\n", id.Serial)
	fmt.Printf("Codename: %s\n", id.Codename)
	fmt.Printf("Version:  %s\n", id.Version)

	paths, err := transport.PackagePaths(ctx, cfg.MagiskAppID)
	if err != nil {
		return errors.Wrap(err, "failed to probe Magisk")
	}
	switch len(paths) {
	case 0:
		fmt.Printf("Magisk:   not installed\n")
	case 1:
		fmt.Printf("Magisk:   installed (%s)\n", paths[0])
	default:
		fmt.Printf("Magisk:   ambiguous, %d installs\n", len(paths))
	}

	return nil
}
