// Package shell runs external tools (adb, fastboot, the payload dumper)
// behind a small interface so tests can substitute a deterministic runner.
package shell

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// Result captures what an external tool produced.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes one external command and captures its outcome. A non-zero
// exit status is reported through Result.ExitCode, not through the error;
// the error is reserved for commands that could not run at all (missing
// binary, killed process, cancelled context).
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, err
	}
	return res, nil
}

// LookPath reports whether an executable resolves on PATH (or directly when
// the name contains a path separator).
func LookPath(name string) error {
	_, err := exec.LookPath(name)
	return err
}
