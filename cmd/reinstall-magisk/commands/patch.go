package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/superfly/fsm"

	"github.com/tim-hub/reinstall-magisk-on-lineageos/internal/config"
	"github.com/tim-hub/reinstall-magisk-on-lineageos/internal/netutil"
	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/build"
	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/db"
	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/device"
	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/errors"
	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/flash"
	appfsm "github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/fsm"
	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/magisk"
	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/mirror"
	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/ota"
	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/shell"
)

var patchCmd = &cobra.Command{
	Use:   "patch",
	Short: "Acquire the running build, patch its boot image with Magisk, and flash it",
	RunE:  runPatch,
}

func init() {
	rootCmd.AddCommand(patchCmd)
}

func runPatch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "config invalid")
	}

	// Ensure all necessary directories exist
	if err := ensureDirectories(cfg.JournalPath, cfg.FSMDBPath, cfg.WorkDir); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.JournalPath)
	if err != nil {
		return errors.Wrap(err, "journal init failed")
	}
	defer repo.Close()

	httpClient := netutil.NewHTTPClient()
	runner := shell.ExecRunner{}

	transport := device.NewTransport(runner, cfg.ADBPath, cfg.FastbootPath, cfg.Serial)
	catalog := mirror.NewClient(httpClient, cfg.PortalURL, cfg.MirrorHost)
	acquirer := build.NewAcquirer(transport, catalog, cfg.DeviceCacheDir, cfg.WorkDir)
	extractor := ota.NewExtractor(runner, ota.NewReleaseFetcher(httpClient, cfg.PayloadDumperURL), cfg.WorkDir)
	coordinator := magisk.NewCoordinator(transport, cfg.DeviceStagingDir, cfg.MagiskDir, cfg.WorkDir)
	flasher := flash.NewOrchestrator(transport,
		time.Duration(cfg.BootloaderTimeout)*time.Second,
		time.Duration(cfg.PollInterval)*time.Second)

	manager, err := fsm.New(fsm.Config{DBPath: cfg.FSMDBPath})
	if err != nil {
		return errors.Wrap(err, "FSM manager failed")
	}
	defer manager.Shutdown(10 * time.Second)

	machine := appfsm.NewMachine(repo, transport, acquirer, catalog, extractor, coordinator, flasher,
		cfg.ADBPath, cfg.FastbootPath, cfg.MagiskAppID)
	start, _, err := machine.Register(ctx, manager)
	if err != nil {
		return errors.Wrap(err, "FSM register failed")
	}

	req := &appfsm.PatchRequest{Serial: cfg.Serial}
	resp := &appfsm.PatchResponse{}

	key := fmt.Sprintf("boot-patch-%d", time.Now().UnixNano())
	version, err := start(ctx, key, fsm.NewRequest(req, resp))
	if err != nil {
		return errors.Wrap(err, "FSM start failed")
	}

	slog.Info("fsm started", "version", version)

	if err := manager.Wait(ctx, version); err != nil {
		// Surface the stage diagnostic with its exit-code classification;
		// the raw FSM error has lost the wrap chain.
		if resp.ErrorMessage != "" {
			return errors.Classifyf(resp.FailureKind, "%s", resp.ErrorMessage)
		}
		return errors.Wrap(err, "pipeline failed")
	}

	slog.Info("patch completed",
		"serial", resp.Serial,
		"version", resp.Version,
		"source", resp.Source,
		"format", resp.Format,
		"patched", resp.PatchedPath,
	)

	return nil
}
