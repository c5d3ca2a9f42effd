package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/provision/internal/shared"
	"github.com/desertthunder/provision/internal/tasks"
)

func step(name string, phase tasks.Phase, err error) tasks.Step {
	return tasks.Step{
		Name:  name,
		Title: "Running " + name,
		Phase: phase,
		Kind:  shared.ErrMigrationApply,
		Run: func(ctx context.Context, report tasks.Report) error {
			report(name + " working")
			return err
		},
	}
}

// collect runs seq and returns every update it produced.
func collect(t *testing.T, seq *tasks.Sequencer) ([]tasks.ProgressUpdate, *tasks.Result, error) {
	t.Helper()
	progress := make(chan tasks.ProgressUpdate, 64)
	result, err := seq.Run(context.Background(), progress)
	close(progress)
	var updates []tasks.ProgressUpdate
	for u := range progress {
		updates = append(updates, u)
	}
	return updates, result, err
}

func TestPrinter(t *testing.T) {
	seq := tasks.NewSequencer(nil,
		step("install", tasks.Install, nil),
		step("migrate", tasks.Migrate, errors.New("no such table")),
	)
	updates, _, _ := collect(t, seq)

	t.Run("quiet prints starts and outcomes", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewPrinter(&buf, false)
		for _, u := range updates {
			p.Print(u)
		}

		out := buf.String()
		for _, want := range []string{"[1/2] Running install...", "✓ install", "[2/2] Running migrate...", "✗ migrate", "no such table"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in output:\n%s", want, out)
			}
		}
		if strings.Contains(out, "install working") {
			t.Error("expected step messages to be hidden")
		}
	})

	t.Run("verbose prints step messages", func(t *testing.T) {
		var buf bytes.Buffer
		progress := make(chan tasks.ProgressUpdate, len(updates))
		for _, u := range updates {
			progress <- u
		}
		close(progress)

		NewPrinter(&buf, true).Consume(progress)
		if !strings.Contains(buf.String(), "install working") {
			t.Errorf("expected step messages in verbose output:\n%s", buf.String())
		}
	})
}

func TestSummary(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		seq := tasks.NewSequencer(nil, step("install", tasks.Install, nil))
		_, result, err := collect(t, seq)
		if got := Summary(result, err); !strings.Contains(got, "✓ 1 step succeeded") {
			t.Errorf("unexpected summary %q", got)
		}
	})

	t.Run("failure carries exit code", func(t *testing.T) {
		seq := tasks.NewSequencer(nil, step("migrate", tasks.Migrate, errors.New("boom")))
		_, result, err := collect(t, seq)
		got := Summary(result, err)
		if !strings.Contains(got, "1 failed (migrate)") || !strings.Contains(got, "exit code 1") {
			t.Errorf("unexpected summary %q", got)
		}
	})

	t.Run("no result", func(t *testing.T) {
		if got := Summary(nil, errors.New("bad config")); !strings.Contains(got, "bad config") {
			t.Errorf("unexpected summary %q", got)
		}
	})
}

func TestModel(t *testing.T) {
	seq := tasks.NewSequencer(nil,
		step("install", tasks.Install, nil),
		step("collectstatic", tasks.CollectStatic, errors.New("source missing")),
		step("migrate", tasks.Migrate, nil),
	)

	t.Run("applies updates to steps", func(t *testing.T) {
		updates, result, err := collect(t, seq)
		m := NewModel(context.Background(), "Provisioning", seq)

		for _, u := range updates {
			m.Update(progressUpdateMsg(u))
		}
		_, cmd := m.Update(runCompleteMsg{result: result, err: err})
		if cmd == nil {
			t.Error("expected quit command after completion")
		}

		if m.steps[0].status != tasks.StatusSucceeded {
			t.Errorf("expected install succeeded, got %q", m.steps[0].status)
		}
		if m.steps[1].status != tasks.StatusFailed || m.steps[1].err == nil {
			t.Errorf("expected collectstatic failed, got %+v", m.steps[1])
		}
		if m.steps[2].status != tasks.StatusSkipped {
			t.Errorf("expected migrate skipped, got %q", m.steps[2].status)
		}

		view := m.View()
		for _, want := range []string{"Provisioning", "1. install", "source missing", "1 failed (collectstatic)"} {
			if !strings.Contains(view, want) {
				t.Errorf("expected %q in view:\n%s", want, view)
			}
		}
		if got, gotErr := m.Result(); got != result || gotErr != err {
			t.Error("expected Result to return the completed run")
		}
	})

	t.Run("quit interrupts a running run", func(t *testing.T) {
		m := NewModel(context.Background(), "Provisioning", seq)
		m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})

		if !m.interrupted {
			t.Error("expected model to be interrupted")
		}
		select {
		case <-m.ctx.Done():
		case <-time.After(time.Second):
			t.Fatal("expected run context to be cancelled")
		}
		if !strings.Contains(m.View(), "Interrupting") {
			t.Error("expected interrupt notice in view")
		}
	})

	t.Run("details toggle shows step messages", func(t *testing.T) {
		m := NewModel(context.Background(), "Provisioning", seq)
		m.apply(tasks.ProgressUpdate{Phase: tasks.Install, Step: 1, Total: 3, Message: "[1/3] 12 requirements installed"})

		if strings.Contains(m.View(), "12 requirements") {
			t.Error("expected messages hidden by default")
		}
		m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
		if !strings.Contains(m.View(), "12 requirements") {
			t.Error("expected messages after toggling details")
		}
	})
}
