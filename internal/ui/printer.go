package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/desertthunder/provision/internal/shared"
	"github.com/desertthunder/provision/internal/tasks"
)

// Printer writes progress updates as plain lines, one per update.
type Printer struct {
	w       io.Writer
	verbose bool
}

// NewPrinter creates a Printer writing to w. Step messages are only printed when verbose is set.
func NewPrinter(w io.Writer, verbose bool) *Printer {
	return &Printer{w: w, verbose: verbose}
}

// Consume prints updates until progress is closed.
func (p *Printer) Consume(progress <-chan tasks.ProgressUpdate) {
	for update := range progress {
		p.Print(update)
	}
}

// Print writes a single update. Finished steps are colored by status.
func (p *Printer) Print(update tasks.ProgressUpdate) {
	line := update.Message
	if res, ok := update.Data.(*tasks.StepResult); ok {
		switch res.Status {
		case tasks.StatusSucceeded:
			line = styles.OK(line)
		case tasks.StatusFailed:
			line = styles.Err(line)
		case tasks.StatusSkipped:
			line = styles.Muted(line)
		}
	} else if _, started := update.Data.(tasks.StepStarted); !started && !p.verbose {
		return
	}
	fmt.Fprintln(p.w, line)
}

// Summary renders the one-line outcome of a run.
func Summary(result *tasks.Result, err error) string {
	if result == nil {
		if err != nil {
			return styles.Err(fmt.Sprintf("✗ %v", err))
		}
		return ""
	}

	msg := fmt.Sprintf("%s in %s", result, result.Duration().Round(time.Millisecond))
	if result.Succeeded() {
		return styles.OK("✓ " + msg)
	}
	return styles.Err(fmt.Sprintf("✗ %s (exit code %d)", msg, shared.ExitCode(err)))
}
