package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	apperrors "github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/errors"
	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/shell"
)

// fakeRunner maps a joined command line to a canned result.
type fakeRunner struct {
	results map[string]shell.Result
	errs    map[string]error
	calls   []string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (shell.Result, error) {
	key := name + " " + strings.Join(args, " ")
	f.calls = append(f.calls, key)
	if err, ok := f.errs[key]; ok {
		return shell.Result{}, err
	}
	return f.results[key], nil
}

func TestAdbArgs_SerialSelection(t *testing.T) {
	runner := &fakeRunner{results: map[string]shell.Result{
		"adb -s SER123 get-state": {Stdout: "device\n"},
	}}
	tr := NewTransport(runner, "adb", "fastboot", "SER123")

	state, err := tr.State(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != "device" {
		t.Errorf("expected trimmed state %q, got %q", "device", state)
	}
	if len(runner.calls) != 1 || !strings.HasPrefix(runner.calls[0], "adb -s SER123") {
		t.Errorf("serial not passed to adb: %v", runner.calls)
	}
}

func TestCheckReachable_Unauthorized(t *testing.T) {
	runner := &fakeRunner{results: map[string]shell.Result{
		"adb get-state": {Stdout: "unauthorized\n"},
	}}
	tr := NewTransport(runner, "adb", "fastboot", "")

	err := tr.CheckReachable(context.Background())
	if err == nil {
		t.Fatal("expected error for unauthorized device")
	}
	if apperrors.KindOf(err) != apperrors.Precondition {
		t.Errorf("expected Precondition kind, got %v", apperrors.KindOf(err))
	}
	if !strings.Contains(err.Error(), "not authorized") {
		t.Errorf("unauthorized state not called out: %v", err)
	}
}

func TestCheckReachable_GoneDeviceIsUnreachable(t *testing.T) {
	runner := &fakeRunner{results: map[string]shell.Result{
		"adb get-state": {Stderr: "error: no devices/emulators found\n", ExitCode: 1},
	}}
	tr := NewTransport(runner, "adb", "fastboot", "")

	err := tr.CheckReachable(context.Background())
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("expected ErrUnreachable in chain, got %v", err)
	}
}

func TestGetProp_Trims(t *testing.T) {
	runner := &fakeRunner{results: map[string]shell.Result{
		"adb shell getprop ro.lineage.version": {Stdout: "21.0-20240101-NIGHTLY-lemonade\n"},
	}}
	tr := NewTransport(runner, "adb", "fastboot", "")

	got, err := tr.GetProp(context.Background(), "ro.lineage.version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "21.0-20240101-NIGHTLY-lemonade" {
		t.Errorf("prop not trimmed: %q", got)
	}
}

func TestPackagePaths_Parsing(t *testing.T) {
	tests := []struct {
		name   string
		stdout string
		want   int
	}{
		{"absent", "", 0},
		{"single", "package:/data/app/magisk/base.apk\n", 1},
		{"multiple", "package:/data/app/a/base.apk\npackage:/data/app/b/base.apk\n", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{results: map[string]shell.Result{
				"adb shell pm path com.topjohnwu.magisk": {Stdout: tt.stdout},
			}}
			tr := NewTransport(runner, "adb", "fastboot", "")

			paths, err := tr.PackagePaths(context.Background(), "com.topjohnwu.magisk")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(paths) != tt.want {
				t.Errorf("expected %d paths, got %v", tt.want, paths)
			}
		})
	}
}

func TestFileExists_ExitCode(t *testing.T) {
	runner := &fakeRunner{results: map[string]shell.Result{
		"adb shell test -f /data/lineageos_updates/x.zip": {ExitCode: 0},
		"adb shell test -f /data/lineageos_updates/y.zip": {ExitCode: 1},
	}}
	tr := NewTransport(runner, "adb", "fastboot", "")

	if ok, _ := tr.FileExists(context.Background(), "/data/lineageos_updates/x.zip"); !ok {
		t.Error("expected hit for x.zip")
	}
	if ok, _ := tr.FileExists(context.Background(), "/data/lineageos_updates/y.zip"); ok {
		t.Error("expected miss for y.zip")
	}
}

func TestInBootloaderMode(t *testing.T) {
	tests := []struct {
		name   string
		serial string
		stdout string
		want   bool
	}{
		{"empty list", "SER123", "", false},
		{"listed", "SER123", "SER123\tfastboot\n", true},
		{"other device", "SER123", "OTHER\tfastboot\n", false},
		{"any device no serial", "", "OTHER\tfastboot\n", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "fastboot devices"
			if tt.serial != "" {
				key = fmt.Sprintf("fastboot -s %s devices", tt.serial)
			}
			runner := &fakeRunner{results: map[string]shell.Result{key: {Stdout: tt.stdout}}}
			tr := NewTransport(runner, "adb", "fastboot", tt.serial)

			got, err := tr.InBootloaderMode(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestFlash_NonZeroExit(t *testing.T) {
	runner := &fakeRunner{results: map[string]shell.Result{
		"fastboot flash boot /tmp/patched-boot.img": {ExitCode: 1, Stderr: "FAILED (remote: denied)\n"},
	}}
	tr := NewTransport(runner, "adb", "fastboot", "")

	err := tr.Flash(context.Background(), "boot", "/tmp/patched-boot.img")
	if err == nil {
		t.Fatal("expected error on non-zero fastboot exit")
	}
	if !strings.Contains(err.Error(), "denied") {
		t.Errorf("stderr not surfaced: %v", err)
	}
}
