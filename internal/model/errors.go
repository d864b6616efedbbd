package model

import (
	"errors"
	"fmt"
)

// ErrorKind is a coarse-grained categorization for pipeline failures.
type ErrorKind string

const (
	// KindConfiguration marks malformed or forward-referencing model declarations.
	KindConfiguration ErrorKind = "configuration"
	// KindGeneration marks invalid sample counts or non-normalizable densities.
	KindGeneration ErrorKind = "generation"
	// KindIO marks output artifacts that could not be written.
	KindIO ErrorKind = "io"
	// KindState marks a pipeline transition requested out of order.
	KindState ErrorKind = "state"
)

// Sentinel errors for broad classification.
var (
	ErrUndeclared = errors.New("undeclared name")
	ErrDuplicate  = errors.New("duplicate name")
	ErrBounds     = errors.New("invalid bounds")
	ErrNotNormal  = errors.New("density not normalizable")
)

// Error wraps an underlying error with operation context and a kind.
type Error struct {
	Op   string
	Kind ErrorKind
	Path string // Optional: relevant file path
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	base := fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	if e.Path != "" {
		base += fmt.Sprintf(" (path=%s)", e.Path)
	}
	if e.Err != nil {
		base += fmt.Sprintf(": %v", e.Err)
	}
	return base
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ConfigurationError wraps err as a model declaration failure.
func ConfigurationError(op string, err error) error {
	return &Error{Op: op, Kind: KindConfiguration, Err: err}
}

// GenerationError wraps err as a toy generation failure.
func GenerationError(op string, err error) error {
	return &Error{Op: op, Kind: KindGeneration, Err: err}
}

// IOError wraps err as a failure to write the artifact at path.
func IOError(op, path string, err error) error {
	return &Error{Op: op, Kind: KindIO, Path: path, Err: err}
}

// StateError reports a transition requested from the wrong pipeline state.
func StateError(op string, err error) error {
	return &Error{Op: op, Kind: KindState, Err: err}
}

// IsKind helps callers classify errors without depending on the failing package.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// WarningKind classifies a non-fatal fit condition.
type WarningKind string

const (
	WarnNotConverged  WarningKind = "not_converged"
	WarnAtLimit       WarningKind = "at_limit"
	WarnCovariance    WarningKind = "covariance"
	WarnInvalidRegion WarningKind = "invalid_region"
)

// ConvergenceWarning flags a fit result that callers should treat as suspect.
// It travels with the result as metadata and is never returned as an error.
type ConvergenceWarning struct {
	Kind    WarningKind
	Param   string
	Message string
}

func (w ConvergenceWarning) String() string {
	if w.Param != "" {
		return fmt.Sprintf("%s (%s): %s", w.Kind, w.Param, w.Message)
	}
	return fmt.Sprintf("%s: %s", w.Kind, w.Message)
}
