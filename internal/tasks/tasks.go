// package tasks runs the provisioning sequence: install, collectstatic, makemigrations, migrate.
//
// Steps run strictly in order and the first failure stops the run.
// Progress is emitted via channels for non-blocking status reporting to the CLI layer.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/provision/internal/shared"
)

// ExitInterrupted is the exit code of a run cancelled by SIGINT or SIGTERM.
const ExitInterrupted = 130

// StepStatus is the outcome of one step.
type StepStatus string

const (
	StatusSucceeded StepStatus = "succeeded"
	StatusFailed    StepStatus = "failed"
	StatusSkipped   StepStatus = "skipped"
)

// Report sends a step-specific progress message.
type Report func(msg string)

// Step is one stage of a provisioning run.
type Step struct {
	Name  string
	Title string // Shown while the step runs, e.g. "Installing dependencies"
	Phase Phase
	// Kind is the error sentinel failures of this step are reported as.
	Kind error
	Run  func(ctx context.Context, report Report) error
}

// StepResult records how one step went.
type StepResult struct {
	Name     string
	Phase    Phase
	Status   StepStatus
	Duration time.Duration
	Err      error
}

// Result contains the outcome of a full run.
type Result struct {
	Steps     []StepResult
	Started   time.Time
	Completed time.Time
	// Failed is the step that stopped the run, or nil.
	Failed *StepResult
}

// Duration returns the wall time of the run.
func (r *Result) Duration() time.Duration {
	return r.Completed.Sub(r.Started)
}

// Succeeded reports whether every step ran and succeeded.
func (r *Result) Succeeded() bool {
	return r.Failed == nil
}

// Sequencer runs steps in order, stopping at the first failure.
// Earlier steps are never rolled back.
type Sequencer struct {
	steps  []Step
	logger *log.Logger
	now    func() time.Time
}

// NewSequencer creates a sequencer for steps. A nil logger discards output.
func NewSequencer(logger *log.Logger, steps ...Step) *Sequencer {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Sequencer{steps: steps, logger: logger, now: time.Now}
}

// Steps returns the names of the configured steps in order.
func (s *Sequencer) Steps() []string {
	names := make([]string, len(s.steps))
	for i, step := range s.steps {
		names[i] = step.Name
	}
	return names
}

// Run executes every step in order.
//
// The returned error is a [shared.StepError] for the failing step; its exit code is the
// step's own (installer status) or [ExitInterrupted] when ctx was cancelled.
// The [Result] is always returned, including the skipped steps after a failure.
func (s *Sequencer) Run(ctx context.Context, progress chan<- ProgressUpdate) (*Result, error) {
	total := len(s.steps)
	result := &Result{Started: s.now(), Steps: make([]StepResult, 0, total)}

	var runErr error
	for i, step := range s.steps {
		n := i + 1

		if runErr != nil {
			res := StepResult{Name: step.Name, Phase: step.Phase, Status: StatusSkipped}
			result.Steps = append(result.Steps, res)
			s.sendProgress(progress, stepSkippedUpdate(n, total, &res))
			continue
		}

		s.sendProgress(progress, stepStartedUpdate(n, total, step))
		s.logger.Info("starting step", "step", step.Name, "position", n, "total", total)

		start := s.now()
		err := ctx.Err()
		if err == nil {
			err = step.Run(ctx, func(msg string) {
				s.sendProgress(progress, stepMessageUpdate(n, total, step, msg))
			})
		}
		res := StepResult{Name: step.Name, Phase: step.Phase, Duration: s.now().Sub(start)}

		if err != nil {
			runErr = stepError(ctx, step, err)
			res.Status = StatusFailed
			res.Err = runErr
			result.Steps = append(result.Steps, res)
			failed := res
			result.Failed = &failed
			s.logger.Error("step failed", "step", step.Name, "err", err, "exit_code", shared.ExitCode(runErr))
			s.sendProgress(progress, stepFailedUpdate(n, total, &res))
			continue
		}

		res.Status = StatusSucceeded
		result.Steps = append(result.Steps, res)
		s.logger.Info("step finished", "step", step.Name, "duration", res.Duration.Round(time.Millisecond))
		s.sendProgress(progress, stepSucceededUpdate(n, total, &res))
	}

	result.Completed = s.now()
	return result, runErr
}

// stepError wraps err as a [shared.StepError] of the step's kind unless it already is one.
func stepError(ctx context.Context, step Step, err error) error {
	var stepErr *shared.StepError
	if !errors.As(err, &stepErr) {
		stepErr = shared.NewStepError(step.Kind, step.Name, err)
	}
	if ctx.Err() != nil {
		stepErr.ExitCode = ExitInterrupted
	}
	return stepErr
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (s *Sequencer) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
		s.logger.Debug("progress update dropped", "phase", update.Phase, "message", update.Message)
	}
}

// String summarizes the run as "3 steps succeeded, 1 failed (migrate)".
func (r *Result) String() string {
	var ok, skipped int
	for _, s := range r.Steps {
		switch s.Status {
		case StatusSucceeded:
			ok++
		case StatusSkipped:
			skipped++
		}
	}
	msg := fmt.Sprintf("%d %s succeeded", ok, shared.Plural(ok, "step"))
	if r.Failed != nil {
		msg += fmt.Sprintf(", 1 failed (%s)", r.Failed.Name)
	}
	if skipped > 0 {
		msg += fmt.Sprintf(", %d skipped", skipped)
	}
	return msg
}
