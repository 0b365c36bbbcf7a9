// Package fsm implements the boot-patch pipeline as a finite state machine:
// preflight checks, identity read, archive acquisition, digest verification,
// format detection, boot image extraction, on-device patching, and the final
// flash, using the superfly/fsm library.
package fsm

import (
	"context"

	"github.com/superfly/fsm"

	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/build"
	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/db"
	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/device"
	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/errors"
	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/integrity"
	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/ota"
	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/shell"
)

// DeviceGate is the slice of the device transport the precondition stages
// use.
type DeviceGate interface {
	CheckReachable(ctx context.Context) error
	ReadIdentity(ctx context.Context) (device.Identity, error)
	PackagePaths(ctx context.Context, appID string) ([]string, error)
}

// Acquirer obtains the firmware archive for the device's running build.
type Acquirer interface {
	Acquire(ctx context.Context, id device.Identity) (build.Artifact, error)
	ResolveURL(ctx context.Context, id device.Identity, art build.Artifact) (string, error)
}

// DigestSource fetches the trusted reference digest for a build URL.
type DigestSource interface {
	FetchReferenceDigest(ctx context.Context, buildURL string) (integrity.Digest, error)
}

// Extractor produces the unpatched boot image from the archive.
type Extractor interface {
	ExtractBootImage(ctx context.Context, archivePath string, format ota.Format) (string, error)
}

// Patcher drives the on-device root toolkit.
type Patcher interface {
	PushUnpatched(ctx context.Context, localPath string) error
	PatchOnDevice(ctx context.Context) error
	PullPatched(ctx context.Context) (string, error)
}

// Flasher runs the bootloader leg: reboot, wait, flash, reboot.
type Flasher interface {
	Run(ctx context.Context, patchedPath string) error
}

// Machine holds dependencies for FSM transitions
type Machine struct {
	repo      *db.Repository
	gate      DeviceGate
	acquirer  Acquirer
	digests   DigestSource
	extractor Extractor
	patcher   Patcher
	flasher   Flasher

	lookPath     func(string) error
	adbPath      string
	fastbootPath string
	magiskAppID  string
}

// NewMachine creates a new FSM machine with dependencies
func NewMachine(
	repo *db.Repository,
	gate DeviceGate,
	acquirer Acquirer,
	digests DigestSource,
	extractor Extractor,
	patcher Patcher,
	flasher Flasher,
	adbPath, fastbootPath, magiskAppID string,
) *Machine {
	return &Machine{
		repo:         repo,
		gate:         gate,
		acquirer:     acquirer,
		digests:      digests,
		extractor:    extractor,
		patcher:      patcher,
		flasher:      flasher,
		lookPath:     shell.LookPath,
		adbPath:      adbPath,
		fastbootPath: fastbootPath,
		magiskAppID:  magiskAppID,
	}
}

// Register registers the boot-patch FSM
func (m *Machine) Register(ctx context.Context, manager *fsm.Manager) (fsm.Start[PatchRequest, PatchResponse], fsm.Resume, error) {
	start, resume, err := fsm.Register[PatchRequest, PatchResponse](manager, "boot-patch").
		Start(StatePreflight, m.handlePreflight).
		To(StateIdentify, m.handleIdentify).
		To(StateAcquire, m.handleAcquire).
		To(StateVerify, m.handleVerify).
		To(StateDetect, m.handleDetect).
		To(StateExtract, m.handleExtract).
		To(StatePatch, m.handlePatch).
		To(StateFlash, m.handleFlash).
		To(StateComplete, m.handleComplete).
		End(StateFailed).
		Build(ctx)

	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to register FSM")
	}

	return start, resume, nil
}
