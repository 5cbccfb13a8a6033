// Package errors defines fuelprobe's single structured error type.
// Every stage of the pipeline reports failures as a *PipelineError
// rather than a bare error, so a CLI or watch client can branch on
// Kind without string-matching a message.
package errors

import (
	"fmt"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// Kind classifies why a pipeline stage gave up.
type Kind string

const (
	// MalformedModule: the input module violates a structural invariant
	// (unbalanced brackets, a call to an out-of-range function index, a
	// type section that doesn't cover a call_indirect's type index).
	MalformedModule Kind = "malformed_module"
	// UnsupportedOpcode: a real opcode the module representation doesn't
	// model, or a modeled opcode the current stage has no rule for yet.
	UnsupportedOpcode Kind = "unsupported_opcode"
	// InvariantViolation: the synthesizer cannot produce a faithful probe
	// (a branching instruction with no taken-token parameter, a probe
	// whose slice reaches into a nested loop it skips, a request for the
	// unimplemented Approx variant), or encode was handed a document
	// stamped with an incompatible probe-format version.
	InvariantViolation Kind = "invariant_violation"
	// Io: reading the module, writing probes, or touching the build
	// cache failed at the filesystem/network boundary.
	Io Kind = "io"
)

// Location pins an error to a specific function and instruction, which
// is usually enough to jump straight to the offending line in a dump.
type Location struct {
	Func  string
	Instr int
}

func (l Location) String() string {
	if l.Func == "" {
		return ""
	}
	if l.Instr < 0 {
		return l.Func
	}
	return fmt.Sprintf("%s@%d", l.Func, l.Instr)
}

// PipelineError is the error type every fuelprobe stage returns. It
// carries a Kind for programmatic branching, a human message, an
// optional Location, and an optional wrapped cause (set via Wrap, which
// uses github.com/pkg/errors so the original stack trace survives
// through CLI error reporting).
type PipelineError struct {
	Kind     Kind
	Message  string
	Loc      Location
	Cause    error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s: %s", e.Kind, e.Message))
	if loc := e.Loc.String(); loc != "" {
		sb.WriteString(fmt.Sprintf(" (at %s)", loc))
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

// Unwrap lets errors.Is/errors.As from the standard library see through
// to the wrapped cause.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// New creates a bare PipelineError of the given kind.
func New(kind Kind, message string) *PipelineError {
	return &PipelineError{Kind: kind, Message: message}
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(kind Kind, format string, args ...any) *PipelineError {
	return &PipelineError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// At sets the error's Location.
func (e *PipelineError) At(fn string, instr int) *PipelineError {
	e.Loc = Location{Func: fn, Instr: instr}
	return e
}

// Wrap attaches cause to e using pkg/errors so the cause's stack trace
// is preserved for diagnostics, and returns e for chaining.
func (e *PipelineError) Wrap(cause error) *PipelineError {
	if cause != nil {
		e.Cause = pkgerrors.WithStack(cause)
	}
	return e
}

// WrapIO is a convenience constructor for filesystem/network failures:
// Io-kind, wrapping cause with a stack trace.
func WrapIO(message string, cause error) *PipelineError {
	return New(Io, message).Wrap(cause)
}
