package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrap_NilStaysNil(t *testing.T) {
	if err := Wrap(nil, "context"); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestWrap_Message(t *testing.T) {
	err := Wrap(fmt.Errorf("boom"), "stage failed")
	if err.Error() != "stage failed: boom" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestKindOf_Unclassified(t *testing.T) {
	if kind := KindOf(fmt.Errorf("plain")); kind != Generic {
		t.Errorf("expected Generic, got %v", kind)
	}
}

func TestKindOf_SurvivesWrapping(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
	}{
		{"precondition", Precondition},
		{"acquisition", Acquisition},
		{"integrity", Integrity},
		{"unsupported format", UnsupportedFormat},
		{"patch", Patch},
		{"bootloader timeout", BootloaderTimeout},
		{"flash", Flash},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify(tt.kind, fmt.Errorf("inner"))
			err = Wrap(err, "stage")
			err = Wrap(err, "pipeline")
			if got := KindOf(err); got != tt.kind {
				t.Errorf("expected kind %v, got %v", tt.kind, got)
			}
		})
	}
}

func TestClassify_NilStaysNil(t *testing.T) {
	if err := Classify(Integrity, nil); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestClassify_PreservesSentinels(t *testing.T) {
	sentinel := errors.New("device gone")
	err := Classify(Flash, Wrap(sentinel, "flash boot"))
	if !errors.Is(err, sentinel) {
		t.Error("classification should not hide the underlying sentinel")
	}
}

func TestExitCodes_DistinctAndNonZero(t *testing.T) {
	kinds := []Kind{Generic, Precondition, Acquisition, Integrity,
		UnsupportedFormat, Patch, BootloaderTimeout, Flash}

	seen := make(map[int]Kind)
	for _, k := range kinds {
		code := k.ExitCode()
		if code == 0 {
			t.Errorf("kind %v has exit code 0", k)
		}
		if prev, dup := seen[code]; dup {
			t.Errorf("kinds %v and %v share exit code %d", prev, k, code)
		}
		seen[code] = k
	}
}
