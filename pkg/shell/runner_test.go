package shell

import (
	"context"
	"strings"
	"testing"
)

func TestExecRunner_CapturesStdoutAndStderr(t *testing.T) {
	res, err := ExecRunner{}.Run(context.Background(), "sh", "-c", "echo out; echo err 1>&2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(res.Stdout) != "out" {
		t.Errorf("unexpected stdout: %q", res.Stdout)
	}
	if strings.TrimSpace(res.Stderr) != "err" {
		t.Errorf("unexpected stderr: %q", res.Stderr)
	}
	if res.ExitCode != 0 {
		t.Errorf("unexpected exit code: %d", res.ExitCode)
	}
}

func TestExecRunner_NonZeroExitIsNotAnError(t *testing.T) {
	res, err := ExecRunner{}.Run(context.Background(), "sh", "-c", "exit 3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", res.ExitCode)
	}
}

func TestExecRunner_MissingBinary(t *testing.T) {
	_, err := ExecRunner{}.Run(context.Background(), "definitely-not-a-real-binary-name")
	if err == nil {
		t.Fatal("expected an error for a missing binary")
	}
}

func TestLookPath(t *testing.T) {
	if err := LookPath("sh"); err != nil {
		t.Errorf("sh should resolve: %v", err)
	}
	if err := LookPath("definitely-not-a-real-binary-name"); err == nil {
		t.Error("expected an error for an unresolvable binary")
	}
}
