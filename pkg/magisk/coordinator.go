// Package magisk coordinates the on-device patch step: push the unpatched
// boot image, run Magisk's boot_patch.sh against it as root, and pull the
// patched result back.
package magisk

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/errors"
	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/shell"
)

// Fixed staging names. boot_patch.sh writes its output relative to the
// Magisk directory; the coordinator renames it to the patched slot.
const (
	unpatchedName = "boot.img"
	patchedName   = "patched-boot.img"
	rawOutputName = "new-boot.img"
	patchScript   = "boot_patch.sh"
)

// DeviceShell is the slice of the device transport patching needs.
type DeviceShell interface {
	Push(ctx context.Context, localPath, remotePath string) error
	Shell(ctx context.Context, cmd string) (shell.Result, error)
	Pull(ctx context.Context, remotePath, localPath string) error
}

// Coordinator drives the root toolkit through one patch cycle.
type Coordinator struct {
	device     DeviceShell
	stagingDir string
	magiskDir  string
	workDir    string
}

func NewCoordinator(device DeviceShell, stagingDir, magiskDir, workDir string) *Coordinator {
	return &Coordinator{
		device:     device,
		stagingDir: stagingDir,
		magiskDir:  magiskDir,
		workDir:    workDir,
	}
}

// UnpatchedDevicePath is where the unpatched image lands on the device.
func (c *Coordinator) UnpatchedDevicePath() string {
	return path.Join(c.stagingDir, unpatchedName)
}

// PatchedDevicePath is where the renamed patched image ends up.
func (c *Coordinator) PatchedDevicePath() string {
	return path.Join(c.stagingDir, patchedName)
}

// PushUnpatched transfers the extracted boot image to the device staging
// path.
func (c *Coordinator) PushUnpatched(ctx context.Context, localPath string) error {
	return c.device.Push(ctx, localPath, c.UnpatchedDevicePath())
}

// PatchOnDevice invokes boot_patch.sh with the pushed image as its sole
// argument, then renames the script's output to the fixed patched path.
// Success or failure is entirely the toolkit's exit status.
func (c *Coordinator) PatchOnDevice(ctx context.Context) error {
	cmd := fmt.Sprintf("su -c 'cd %s && sh %s %s && mv %s %s'",
		c.magiskDir, patchScript, c.UnpatchedDevicePath(), rawOutputName, c.PatchedDevicePath())

	slog.Info("magisk_patch_start", "script", patchScript, "image", c.UnpatchedDevicePath())
	res, err := c.device.Shell(ctx, cmd)
	if err != nil {
		return errors.Classify(errors.Patch, err)
	}
	if res.ExitCode != 0 {
		return errors.Classifyf(errors.Patch, "boot_patch.sh exited %d: %s",
			res.ExitCode, strings.TrimSpace(res.Stderr+res.Stdout))
	}

	slog.Info("magisk_patch_complete", "patched", c.PatchedDevicePath())
	return nil
}

// PullPatched retrieves the patched image into the local work dir and
// returns its path.
func (c *Coordinator) PullPatched(ctx context.Context) (string, error) {
	localPath := filepath.Join(c.workDir, patchedName)
	if err := c.device.Pull(ctx, c.PatchedDevicePath(), localPath); err != nil {
		return "", errors.Classify(errors.Patch,
			errors.Wrap(err, "failed to pull patched image"))
	}
	return localPath, nil
}
