package fsm

import "github.com/tim-hub/reinstall-magisk-on-lineageos/pkg/errors"

// PatchRequest is the FSM input
type PatchRequest struct {
	Serial string
}

// PatchResponse is the FSM output (accumulated across transitions)
type PatchResponse struct {
	// From Identify
	RunID    int64
	Serial   string
	Codename string
	Version  string

	// From Acquire
	Source      string
	ArchivePath string
	BuildURL    string

	// From Verify
	ReferenceDigest string
	ComputedDigest  string

	// From Detect/Extract
	Format        string
	UnpatchedPath string

	// From Patch
	PatchedPath string

	// From Complete/Failed
	Status       string
	ErrorMessage string
	FailureKind  errors.Kind
}

// State names
const (
	StatePreflight = "preflight"
	StateIdentify  = "identify"
	StateAcquire   = "acquire"
	StateVerify    = "verify"
	StateDetect    = "detect"
	StateExtract   = "extract"
	StatePatch     = "patch"
	StateFlash     = "flash"
	StateComplete  = "complete"
	StateFailed    = "failed"
)
