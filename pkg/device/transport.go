// Package device talks to a single Android device over adb and fastboot.
// Every operation targets the one device selected at startup; the two
// executables are invoked through a shell.Runner so tests can substitute
// a deterministic fake.
package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	apperrors "github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/errors"
	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/shell"
)

// ErrUnreachable marks failures caused by the device disappearing or never
// being connected, as opposed to an operation that ran and failed.
var ErrUnreachable = errors.New("device unreachable")

// Mode is the transport-observable execution mode of the device.
type Mode int

const (
	ModeUnknown Mode = iota
	ModeNormal
	ModeBootloader
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeBootloader:
		return "bootloader"
	default:
		return "unknown"
	}
}

// Identity describes the target device, read once at session start and
// immutable afterwards.
type Identity struct {
	Serial   string
	Codename string
	Version  string
}

// Transport drives one device through adb (running OS) and fastboot
// (bootloader). The two channels are mutually exclusive: adb operations
// fail once the device reboots to bootloader and vice versa.
type Transport struct {
	runner       shell.Runner
	adbPath      string
	fastbootPath string
	serial       string
}

// NewTransport selects the device with the given serial; an empty serial
// addresses the sole connected device.
func NewTransport(runner shell.Runner, adbPath, fastbootPath, serial string) *Transport {
	return &Transport{
		runner:       runner,
		adbPath:      adbPath,
		fastbootPath: fastbootPath,
		serial:       serial,
	}
}

func (t *Transport) adbArgs(args ...string) []string {
	if t.serial == "" {
		return args
	}
	return append([]string{"-s", t.serial}, args...)
}

func (t *Transport) fastbootArgs(args ...string) []string {
	if t.serial == "" {
		return args
	}
	return append([]string{"-s", t.serial}, args...)
}

func (t *Transport) adb(ctx context.Context, args ...string) (shell.Result, error) {
	res, err := t.runner.Run(ctx, t.adbPath, t.adbArgs(args...)...)
	if err != nil {
		return res, fmt.Errorf("%w: adb %s: %v", ErrUnreachable, strings.Join(args, " "), err)
	}
	return res, nil
}

func (t *Transport) fastboot(ctx context.Context, args ...string) (shell.Result, error) {
	res, err := t.runner.Run(ctx, t.fastbootPath, t.fastbootArgs(args...)...)
	if err != nil {
		return res, fmt.Errorf("%w: fastboot %s: %v", ErrUnreachable, strings.Join(args, " "), err)
	}
	return res, nil
}

// State returns the adb connection state ("device", "unauthorized",
// "offline", ...). An error means adb itself could not answer.
func (t *Transport) State(ctx context.Context) (string, error) {
	res, err := t.adb(ctx, "get-state")
	if err != nil {
		return "", err
	}
	state := strings.TrimSpace(res.Stdout)
	if state == "" {
		// adb prints the state to stderr when no device matches.
		state = strings.TrimSpace(res.Stderr)
	}
	return state, nil
}

// CheckReachable verifies the running-OS channel is usable: the device is
// connected and USB debugging is authorized. Both failure modes surface as
// distinguishable precondition errors.
func (t *Transport) CheckReachable(ctx context.Context) error {
	state, err := t.State(ctx)
	if err != nil {
		return apperrors.Classify(apperrors.Precondition, err)
	}
	switch {
	case state == "device":
		return nil
	case strings.Contains(state, "unauthorized"):
		return apperrors.Classifyf(apperrors.Precondition,
			"USB debugging not authorized for this host (device state %q)", state)
	default:
		return apperrors.Classify(apperrors.Precondition,
			fmt.Errorf("%w: adb state %q", ErrUnreachable, state))
	}
}

// ReadIdentity reads the device identity props. The serial comes from adb
// so a run against "the sole connected device" still records which one.
func (t *Transport) ReadIdentity(ctx context.Context) (Identity, error) {
	serial := t.serial
	if serial == "" {
		res, err := t.adb(ctx, "get-serialno")
		if err != nil {
			return Identity{}, err
		}
		serial = strings.TrimSpace(res.Stdout)
	}

	codename, err := t.GetProp(ctx, "ro.lineage.device")
	if err != nil {
		return Identity{}, err
	}
	version, err := t.GetProp(ctx, "ro.lineage.version")
	if err != nil {
		return Identity{}, err
	}

	id := Identity{Serial: serial, Codename: codename, Version: version}
	if id.Codename == "" || id.Version == "" {
		return id, fmt.Errorf("device did not report LineageOS identity props (codename %q, version %q)",
			id.Codename, id.Version)
	}

	slog.Info("device_identity", "serial", id.Serial, "codename", id.Codename, "version", id.Version)
	return id, nil
}

// GetProp reads a single system property, trimmed.
func (t *Transport) GetProp(ctx context.Context, name string) (string, error) {
	res, err := t.adb(ctx, "shell", "getprop", name)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// Shell runs a command on the device and returns its captured result.
func (t *Transport) Shell(ctx context.Context, cmd string) (shell.Result, error) {
	return t.adb(ctx, "shell", cmd)
}

// FileExists reports whether a regular file exists on the device.
func (t *Transport) FileExists(ctx context.Context, remotePath string) (bool, error) {
	res, err := t.adb(ctx, "shell", fmt.Sprintf("test -f %s", remotePath))
	if err != nil {
		return false, err
	}
	return res.ExitCode == 0, nil
}

// Pull copies a file from the device to local storage.
func (t *Transport) Pull(ctx context.Context, remotePath, localPath string) error {
	slog.Info("device_pull", "remote", remotePath, "local", localPath)
	res, err := t.adb(ctx, "pull", remotePath, localPath)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("adb pull %s failed: %s", remotePath, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// Push copies a local file onto the device.
func (t *Transport) Push(ctx context.Context, localPath, remotePath string) error {
	slog.Info("device_push", "local", localPath, "remote", remotePath)
	res, err := t.adb(ctx, "push", localPath, remotePath)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("adb push %s failed: %s", localPath, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// PackagePaths lists the install paths of an app package id via pm. Zero
// entries means the package is absent.
func (t *Transport) PackagePaths(ctx context.Context, appID string) ([]string, error) {
	res, err := t.adb(ctx, "shell", fmt.Sprintf("pm path %s", appID))
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if p, ok := strings.CutPrefix(line, "package:"); ok {
			paths = append(paths, p)
		}
	}
	return paths, nil
}

// RebootToBootloader issues the mode-switch command once; it does not wait
// for the transition.
func (t *Transport) RebootToBootloader(ctx context.Context) error {
	slog.Info("device_reboot_bootloader", "serial", t.serial)
	res, err := t.adb(ctx, "reboot", "bootloader")
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("adb reboot bootloader failed: %s", strings.TrimSpace(res.Stderr))
	}
	return nil
}

// InBootloaderMode reports whether fastboot currently sees the device.
func (t *Transport) InBootloaderMode(ctx context.Context) (bool, error) {
	res, err := t.fastboot(ctx, "devices")
	if err != nil {
		return false, err
	}
	out := strings.TrimSpace(res.Stdout)
	if out == "" {
		return false, nil
	}
	if t.serial == "" {
		return true, nil
	}
	return strings.Contains(out, t.serial), nil
}

// Mode probes both channels and reports which one the device answers on.
func (t *Transport) Mode(ctx context.Context) Mode {
	if in, err := t.InBootloaderMode(ctx); err == nil && in {
		return ModeBootloader
	}
	if state, err := t.State(ctx); err == nil && state == "device" {
		return ModeNormal
	}
	return ModeUnknown
}

// Flash writes an image to the named partition. Valid only in bootloader
// mode.
func (t *Transport) Flash(ctx context.Context, partition, localPath string) error {
	slog.Info("device_flash", "partition", partition, "image", localPath)
	res, err := t.fastboot(ctx, "flash", partition, localPath)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("fastboot flash %s failed: %s", partition, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// RebootNormal reboots out of bootloader mode. The caller does not wait
// for the OS to come back up.
func (t *Transport) RebootNormal(ctx context.Context) error {
	slog.Info("device_reboot_normal", "serial", t.serial)
	res, err := t.fastboot(ctx, "reboot")
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("fastboot reboot failed: %s", strings.TrimSpace(res.Stderr))
	}
	return nil
}
