package fsm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/superfly/fsm"

	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/build"
	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/db"
	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/device"
	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/errors"
	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/integrity"
	"github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/ota"
)

// The stage logic lives in plain methods operating on PatchResponse so it
// stays unit-testable without the fsm library; the handle* wrappers adapt
// them to FSM transitions and enforce fail-fast via fsm.Abort.

// preflight checks every precondition before anything touches the device:
// platform tools on PATH, device reachable and authorized, Magisk present
// exactly once.
func (m *Machine) preflight(ctx context.Context) error {
	for _, tool := range []string{m.adbPath, m.fastbootPath} {
		if err := m.lookPath(tool); err != nil {
			return errors.Classifyf(errors.Precondition, "required tool %q not found", tool)
		}
	}

	if err := m.gate.CheckReachable(ctx); err != nil {
		return err
	}

	paths, err := m.gate.PackagePaths(ctx, m.magiskAppID)
	if err != nil {
		return errors.Classify(errors.Precondition, err)
	}
	switch len(paths) {
	case 1:
		return nil
	case 0:
		return errors.Classifyf(errors.Precondition, "root toolkit %s not installed", m.magiskAppID)
	default:
		return errors.Classifyf(errors.Precondition,
			"root toolkit %s installed %d times, expected exactly one", m.magiskAppID, len(paths))
	}
}

// identify reads the device identity props and opens the journal row.
func (m *Machine) identify(ctx context.Context, resp *PatchResponse) error {
	id, err := m.gate.ReadIdentity(ctx)
	if err != nil {
		return errors.Classify(errors.Precondition, err)
	}
	resp.Serial = id.Serial
	resp.Codename = id.Codename
	resp.Version = id.Version

	run := &db.Run{
		Serial:   id.Serial,
		Codename: id.Codename,
		Version:  id.Version,
		Stage:    StateIdentify,
		Status:   db.StatusRunning,
	}
	if err := m.repo.Create(run); err != nil {
		return err
	}
	resp.RunID = run.ID
	return nil
}

// record persists the metadata a stage accumulated onto the run row, so
// the journal carries source, archive, digests, and format even when a
// later stage fails.
func (m *Machine) record(resp *PatchResponse, stage string) error {
	if resp.RunID == 0 {
		return nil
	}
	return m.repo.Update(&db.Run{
		ID:              resp.RunID,
		Serial:          resp.Serial,
		Codename:        resp.Codename,
		Version:         resp.Version,
		Source:          resp.Source,
		ArchivePath:     resp.ArchivePath,
		BuildURL:        resp.BuildURL,
		ReferenceDigest: resp.ReferenceDigest,
		ComputedDigest:  resp.ComputedDigest,
		Format:          resp.Format,
		Stage:           stage,
		Status:          db.StatusRunning,
	})
}

func (m *Machine) identity(resp *PatchResponse) device.Identity {
	return device.Identity{Serial: resp.Serial, Codename: resp.Codename, Version: resp.Version}
}

func (m *Machine) artifact(resp *PatchResponse) build.Artifact {
	return build.Artifact{LocalPath: resp.ArchivePath, Source: resp.Source, URL: resp.BuildURL}
}

// acquire obtains the archive from the device cache or the mirror.
func (m *Machine) acquire(ctx context.Context, resp *PatchResponse) error {
	art, err := m.acquirer.Acquire(ctx, m.identity(resp))
	if err != nil {
		return err
	}
	resp.Source = art.Source
	resp.ArchivePath = art.LocalPath
	resp.BuildURL = art.URL
	return m.record(resp, StateAcquire)
}

// verify is the integrity gate: reference digest from the catalog, local
// digest over the archive, byte-for-byte hex equality. A mismatch aborts
// the run before any extraction.
func (m *Machine) verify(ctx context.Context, resp *PatchResponse) error {
	url, err := m.acquirer.ResolveURL(ctx, m.identity(resp), m.artifact(resp))
	if err != nil {
		return err
	}
	resp.BuildURL = url

	reference, err := m.digests.FetchReferenceDigest(ctx, url)
	if err != nil {
		return err
	}
	resp.ReferenceDigest = reference.Hex

	computed, err := integrity.ComputeDigest(resp.ArchivePath)
	if err != nil {
		return err
	}
	resp.ComputedDigest = computed.Hex

	// Journal both digests before the gate so a mismatch row still shows
	// what was compared.
	if err := m.record(resp, StateVerify); err != nil {
		return err
	}

	return integrity.Verify(reference, computed)
}

// detect classifies the archive layout.
func (m *Machine) detect(resp *PatchResponse) error {
	format, err := ota.Classify(resp.ArchivePath)
	if err != nil {
		return err
	}
	resp.Format = format.String()
	return m.record(resp, StateDetect)
}

func parseFormat(s string) (ota.Format, error) {
	for _, f := range []ota.Format{ota.FormatBlock, ota.FormatPayload, ota.FormatFile} {
		if f.String() == s {
			return f, nil
		}
	}
	return ota.FormatFile, fmt.Errorf("unknown OTA format %q", s)
}

// extract produces the unpatched boot image with the format's strategy.
func (m *Machine) extract(ctx context.Context, resp *PatchResponse) error {
	format, err := parseFormat(resp.Format)
	if err != nil {
		return err
	}
	path, err := m.extractor.ExtractBootImage(ctx, resp.ArchivePath, format)
	if err != nil {
		return err
	}
	resp.UnpatchedPath = path
	return nil
}

// patch pushes the image, runs the root toolkit, and pulls the result.
func (m *Machine) patch(ctx context.Context, resp *PatchResponse) error {
	if err := m.patcher.PushUnpatched(ctx, resp.UnpatchedPath); err != nil {
		return errors.Classify(errors.Patch, err)
	}
	if err := m.patcher.PatchOnDevice(ctx); err != nil {
		return err
	}
	patched, err := m.patcher.PullPatched(ctx)
	if err != nil {
		return err
	}
	resp.PatchedPath = patched
	return nil
}

// flashStage hands the patched image to the bootloader leg.
func (m *Machine) flashStage(ctx context.Context, resp *PatchResponse) error {
	return m.flasher.Run(ctx, resp.PatchedPath)
}

// fail records the terminal failure in the journal. The run row may not
// exist yet when preflight or identify fails.
func (m *Machine) fail(resp *PatchResponse, stage string, err error) {
	resp.Status = db.StatusFailed
	resp.ErrorMessage = fmt.Sprintf("%s: %s", stage, err)
	resp.FailureKind = errors.KindOf(err)
	if resp.RunID != 0 {
		if dbErr := m.repo.Finish(resp.RunID, db.StatusFailed, resp.ErrorMessage); dbErr != nil {
			slog.Error("journal_record_failure_failed", "run_id", resp.RunID, "error", dbErr)
		}
	}
}

// enterStage records progress in the journal once a run row exists.
func (m *Machine) enterStage(resp *PatchResponse, stage string) {
	slog.Info("pipeline_stage", "stage", stage, "serial", resp.Serial)
	if resp.RunID != 0 {
		if err := m.repo.UpdateStage(resp.RunID, stage); err != nil {
			slog.Error("journal_stage_record_failed", "run_id", resp.RunID, "stage", stage, "error", err)
		}
	}
}

func responseOf(req *fsm.Request[PatchRequest, PatchResponse]) *PatchResponse {
	if req.W.Msg != nil {
		return req.W.Msg
	}
	return &PatchResponse{}
}

func (m *Machine) handlePreflight(ctx context.Context, req *fsm.Request[PatchRequest, PatchResponse]) (*fsm.Response[PatchResponse], error) {
	resp := responseOf(req)
	m.enterStage(resp, StatePreflight)

	if err := m.preflight(ctx); err != nil {
		slog.Error("preflight_failed", "error", err)
		m.fail(resp, StatePreflight, err)
		return nil, fsm.Abort(err)
	}
	return fsm.NewResponse(resp), nil
}

func (m *Machine) handleIdentify(ctx context.Context, req *fsm.Request[PatchRequest, PatchResponse]) (*fsm.Response[PatchResponse], error) {
	resp := responseOf(req)
	m.enterStage(resp, StateIdentify)

	if err := m.identify(ctx, resp); err != nil {
		slog.Error("identify_failed", "error", err)
		m.fail(resp, StateIdentify, err)
		return nil, fsm.Abort(err)
	}
	return fsm.NewResponse(resp), nil
}

func (m *Machine) handleAcquire(ctx context.Context, req *fsm.Request[PatchRequest, PatchResponse]) (*fsm.Response[PatchResponse], error) {
	resp := responseOf(req)
	m.enterStage(resp, StateAcquire)

	if err := m.acquire(ctx, resp); err != nil {
		slog.Error("acquire_failed", "error", err)
		m.fail(resp, StateAcquire, err)
		return nil, fsm.Abort(err)
	}

	slog.Info("build_acquired", "source", resp.Source, "archive", resp.ArchivePath)
	return fsm.NewResponse(resp), nil
}

func (m *Machine) handleVerify(ctx context.Context, req *fsm.Request[PatchRequest, PatchResponse]) (*fsm.Response[PatchResponse], error) {
	resp := responseOf(req)
	m.enterStage(resp, StateVerify)

	if err := m.verify(ctx, resp); err != nil {
		slog.Error("verify_failed", "reference", resp.ReferenceDigest, "computed", resp.ComputedDigest, "error", err)
		m.fail(resp, StateVerify, err)
		return nil, fsm.Abort(err)
	}
	return fsm.NewResponse(resp), nil
}

func (m *Machine) handleDetect(ctx context.Context, req *fsm.Request[PatchRequest, PatchResponse]) (*fsm.Response[PatchResponse], error) {
	resp := responseOf(req)
	m.enterStage(resp, StateDetect)

	if err := m.detect(resp); err != nil {
		slog.Error("detect_failed", "error", err)
		m.fail(resp, StateDetect, err)
		return nil, fsm.Abort(err)
	}
	return fsm.NewResponse(resp), nil
}

func (m *Machine) handleExtract(ctx context.Context, req *fsm.Request[PatchRequest, PatchResponse]) (*fsm.Response[PatchResponse], error) {
	resp := responseOf(req)
	m.enterStage(resp, StateExtract)

	if err := m.extract(ctx, resp); err != nil {
		slog.Error("extract_failed", "format", resp.Format, "error", err)
		m.fail(resp, StateExtract, err)
		return nil, fsm.Abort(err)
	}
	return fsm.NewResponse(resp), nil
}

func (m *Machine) handlePatch(ctx context.Context, req *fsm.Request[PatchRequest, PatchResponse]) (*fsm.Response[PatchResponse], error) {
	resp := responseOf(req)
	m.enterStage(resp, StatePatch)

	if err := m.patch(ctx, resp); err != nil {
		slog.Error("patch_failed", "error", err)
		m.fail(resp, StatePatch, err)
		return nil, fsm.Abort(err)
	}
	return fsm.NewResponse(resp), nil
}

func (m *Machine) handleFlash(ctx context.Context, req *fsm.Request[PatchRequest, PatchResponse]) (*fsm.Response[PatchResponse], error) {
	resp := responseOf(req)
	m.enterStage(resp, StateFlash)

	if err := m.flashStage(ctx, resp); err != nil {
		slog.Error("flash_failed", "error", err)
		m.fail(resp, StateFlash, err)
		return nil, fsm.Abort(err)
	}
	return fsm.NewResponse(resp), nil
}

func (m *Machine) handleComplete(ctx context.Context, req *fsm.Request[PatchRequest, PatchResponse]) (*fsm.Response[PatchResponse], error) {
	resp := responseOf(req)
	m.enterStage(resp, StateComplete)

	if err := m.repo.Finish(resp.RunID, db.StatusSucceeded, ""); err != nil {
		slog.Error("journal_finish_failed", "run_id", resp.RunID, "error", err)
		return nil, errors.Wrap(err, "failed to record completion")
	}
	resp.Status = db.StatusSucceeded

	slog.Info("pipeline_complete", "serial", resp.Serial, "version", resp.Version, "format", resp.Format)
	return fsm.NewResponse(resp), nil
}
