package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure. Each kind is reserved a distinct
// non-zero exit code so callers can tell a missing precondition from a
// digest mismatch or an unresponsive bootloader without parsing output.
type Kind int

const (
	Generic Kind = iota
	Precondition
	Acquisition
	Integrity
	UnsupportedFormat
	Patch
	BootloaderTimeout
	Flash
)

var kindNames = map[Kind]string{
	Generic:           "failure",
	Precondition:      "precondition failure",
	Acquisition:       "acquisition failure",
	Integrity:         "integrity mismatch",
	UnsupportedFormat: "unsupported OTA format",
	Patch:             "patch failure",
	BootloaderTimeout: "bootloader timeout",
	Flash:             "flash failure",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[Generic]
}

// ExitCode returns the process exit code reserved for the kind.
func (k Kind) ExitCode() int {
	switch k {
	case Precondition:
		return 2
	case Acquisition:
		return 3
	case Integrity:
		return 4
	case UnsupportedFormat:
		return 5
	case Patch:
		return 6
	case BootloaderTimeout:
		return 7
	case Flash:
		return 8
	default:
		return 1
	}
}

// kindError carries a Kind along an error chain.
type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

// Classify marks err with the given failure kind. A nil err stays nil.
func Classify(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// Classifyf formats a new error and classifies it in one step.
func Classifyf(kind Kind, format string, args ...any) error {
	return &kindError{kind: kind, err: fmt.Errorf(format, args...)}
}

// KindOf walks the wrap chain and reports the first classification found,
// or Generic when err carries none.
func KindOf(err error) Kind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return Generic
}
