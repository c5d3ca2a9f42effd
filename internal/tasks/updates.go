package tasks

import (
	"fmt"
	"time"
)

// ProgressUpdate represents a progress event during a provisioning run.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Step being run
	Step    int    // Position of the step in the run, starting at 1
	Total   int    // Number of steps in the run
	Message string // Human-readable message for display
	Data    any    // StepStarted when the step begins, *StepResult once it has finished
}

// StepStarted is the Data of the update announcing a step.
type StepStarted struct {
	Name  string
	Title string
}

// Phase enumerates the provisioning steps.
type Phase int

const (
	Install Phase = iota
	CollectStatic
	MakeMigrations
	Migrate
)

func (p Phase) String() string {
	switch p {
	case Install:
		return "install"
	case CollectStatic:
		return "collectstatic"
	case MakeMigrations:
		return "makemigrations"
	case Migrate:
		return "migrate"
	default:
		return ""
	}
}

func stepStartedUpdate(step, total int, s Step) ProgressUpdate {
	return ProgressUpdate{
		Phase:   s.Phase,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s...", step, total, s.Title),
		Data:    StepStarted{Name: s.Name, Title: s.Title},
	}
}

func stepMessageUpdate(step, total int, s Step, msg string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   s.Phase,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s", step, total, msg),
	}
}

func stepSucceededUpdate(step, total int, res *StepResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   res.Phase,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%s)", step, total, res.Name, res.Duration.Round(time.Millisecond)),
		Data:    res,
	}
}

func stepFailedUpdate(step, total int, res *StepResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   res.Phase,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, res.Name, res.Err),
		Data:    res,
	}
}

func stepSkippedUpdate(step, total int, res *StepResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   res.Phase,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] - %s skipped", step, total, res.Name),
		Data:    res,
	}
}
