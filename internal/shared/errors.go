package shared

import (
	"errors"
	"fmt"
)

var (
	// Configuration errors
	ErrMissingConfig  = fmt.Errorf("configuration not found")
	ErrInvalidConfig  = fmt.Errorf("invalid configuration")
	ErrUnknownDriver  = fmt.Errorf("unknown database driver")
	ErrDatabaseConfig = fmt.Errorf("database not configured")

	// Provisioning step errors
	ErrDependencyResolution = fmt.Errorf("dependency resolution failed")
	ErrStaticCollection     = fmt.Errorf("static collection failed")
	ErrMigrationGeneration  = fmt.Errorf("migration generation failed")
	ErrMigrationApply       = fmt.Errorf("migration apply failed")

	// Migration graph errors
	ErrMigrationConflict     = fmt.Errorf("conflicting migrations")
	ErrInconsistentHistory   = fmt.Errorf("inconsistent migration history")
	ErrMigrationNotFound     = fmt.Errorf("migration not found")
	ErrNodeDependencyMissing = fmt.Errorf("migration dependency missing")

	// Input validation errors
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// StepError reports the failure of a single provisioning step.
//
// Kind is one of the step sentinels above. ExitCode is what the process exits with;
// installer failures carry the installer's own status.
type StepError struct {
	Kind     error
	Step     string
	ExitCode int
	Err      error
}

// NewStepError wraps err as a failure of step with exit code 1.
func NewStepError(kind error, step string, err error) *StepError {
	return &StepError{Kind: kind, Step: step, ExitCode: 1, Err: err}
}

func (e *StepError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Step, e.Kind)
	}
	if errors.Is(e.Err, e.Kind) {
		return fmt.Sprintf("%s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Step, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to [errors.Is] and [errors.As].
func (e *StepError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ExitCode returns the process exit code for err: 0 for nil, the [StepError] code when present, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var stepErr *StepError
	if errors.As(err, &stepErr) && stepErr.ExitCode != 0 {
		return stepErr.ExitCode
	}
	return 1
}
