package models

import (
	"fmt"
	"time"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// Step statuses.
const (
	StepSucceeded = "succeeded"
	StepFailed    = "failed"
	StepSkipped   = "skipped"
)

// RunStep is the recorded outcome of one step of a run.
type RunStep struct {
	Position int
	Name     string
	Status   string
	Duration time.Duration
}

// Run is a single provisioning invocation.
//
// A run starts as [RunRunning] and is finished exactly once with [Run.Finish].
type Run struct {
	id           string
	sequence     int
	status       string
	failedStep   string
	exitCode     int
	errorMessage string
	configPath   string
	startedAt    time.Time
	completedAt  *time.Time
	createdAt    time.Time
	updatedAt    time.Time
	steps        []RunStep
}

// NewRun creates a running [Run] for the given config file.
func NewRun(sequence int, configPath string) *Run {
	now := time.Now()
	return &Run{
		sequence:   sequence,
		status:     RunRunning,
		configPath: configPath,
		startedAt:  now,
		createdAt:  now,
		updatedAt:  now,
	}
}

func (r *Run) ID() string { return r.id }
func (r *Run) Sequence() int { return r.sequence }
func (r *Run) Status() string { return r.status }
func (r *Run) FailedStep() string { return r.failedStep }
func (r *Run) ExitCode() int { return r.exitCode }
func (r *Run) ErrorMessage() string { return r.errorMessage }
func (r *Run) ConfigPath() string { return r.configPath }
func (r *Run) StartedAt() time.Time { return r.startedAt }
func (r *Run) CompletedAt() *time.Time { return r.completedAt }
func (r *Run) CreatedAt() time.Time { return r.createdAt }
func (r *Run) UpdatedAt() time.Time { return r.updatedAt }
func (r *Run) Steps() []RunStep { return r.steps }

func (r *Run) SetID(id string) { r.id = id }
func (r *Run) SetSequence(sequence int) { r.sequence = sequence }
func (r *Run) SetStatus(status string) { r.status = status }
func (r *Run) SetFailedStep(step string) { r.failedStep = step }
func (r *Run) SetExitCode(code int) { r.exitCode = code }
func (r *Run) SetErrorMessage(msg string) { r.errorMessage = msg }
func (r *Run) SetStartedAt(t time.Time) { r.startedAt = t }
func (r *Run) SetCompletedAt(t *time.Time) { r.completedAt = t }
func (r *Run) SetCreatedAt(t time.Time) { r.createdAt = t }
func (r *Run) SetUpdatedAt(t time.Time) { r.updatedAt = t }
func (r *Run) SetSteps(steps []RunStep) { r.steps = steps }
func (r *Run) AddStep(step RunStep) { r.steps = append(r.steps, step) }

// Duration returns the wall time of a finished run, or zero while it is running.
func (r *Run) Duration() time.Duration {
	if r.completedAt == nil {
		return 0
	}
	return r.completedAt.Sub(r.startedAt)
}

// Finish marks the run complete. A zero exit code means success; otherwise failedStep and
// msg describe what stopped the run.
func (r *Run) Finish(exitCode int, failedStep, msg string) {
	now := time.Now()
	r.completedAt = &now
	r.exitCode = exitCode
	r.failedStep = failedStep
	r.errorMessage = msg
	if exitCode == 0 {
		r.status = RunSucceeded
	} else {
		r.status = RunFailed
	}
}

// Validate checks the run's status and the consistency of its outcome fields.
func (r *Run) Validate() error {
	if r.id == "" {
		return fmt.Errorf("run ID is required")
	}
	switch r.status {
	case RunRunning:
		if r.completedAt != nil {
			return fmt.Errorf("running run cannot have a completion time")
		}
	case RunSucceeded:
		if r.exitCode != 0 {
			return fmt.Errorf("succeeded run must exit 0, got %d", r.exitCode)
		}
	case RunFailed:
		if r.exitCode == 0 {
			return fmt.Errorf("failed run must have a non-zero exit code")
		}
	default:
		return fmt.Errorf("invalid run status: %q", r.status)
	}
	if r.status != RunRunning && r.completedAt == nil {
		return fmt.Errorf("finished run requires a completion time")
	}
	for _, s := range r.steps {
		switch s.Status {
		case StepSucceeded, StepFailed, StepSkipped:
		default:
			return fmt.Errorf("invalid status %q for step %s", s.Status, s.Name)
		}
	}
	return nil
}
