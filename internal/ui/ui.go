package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/provision/internal/tasks"
)

// stepState is the display state of one step.
type stepState struct {
	name     string
	status   tasks.StepStatus // empty until the step finishes
	running  bool
	duration time.Duration
	message  string
	err      error
}

// Model is the progress view of a provisioning run.
//
// The run starts in Init and the program quits by itself once the sequencer returns.
type Model struct {
	ctx          context.Context
	cancel       context.CancelFunc
	title        string
	sequencer    *tasks.Sequencer
	steps        []stepState
	progressChan chan tasks.ProgressUpdate
	doneChan     chan runCompleteMsg
	result       *tasks.Result
	err          error
	done         bool
	interrupted  bool
	details      bool
	spinner      spinner.Model
	help         help.Model
	keys         keyMap
}

// NewModel creates a progress view that runs seq under ctx.
func NewModel(ctx context.Context, title string, seq *tasks.Sequencer) *Model {
	ctx, cancel := context.WithCancel(ctx)

	names := seq.Steps()
	steps := make([]stepState, len(names))
	for i, name := range names {
		steps[i] = stepState{name: name}
	}

	s := spinner.New()
	s.Spinner = spinner.Dot

	return &Model{
		ctx:       ctx,
		cancel:    cancel,
		title:     title,
		sequencer: seq,
		steps:     steps,
		spinner:   s,
		help:      help.New(),
		keys:      newKeyMap(),
	}
}

// Result returns the outcome of the run once the program has exited.
func (m *Model) Result() (*tasks.Result, error) {
	return m.result, m.err
}

// Init starts the run and the spinner.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.start())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.quit):
			if m.done {
				return m, tea.Quit
			}
			// the sequencer reports the interrupted step and exits on its own
			m.interrupted = true
			m.cancel()
			return m, nil
		case key.Matches(msg, m.keys.details):
			m.details = !m.details
			return m, nil
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progressUpdateMsg:
		m.apply(tasks.ProgressUpdate(msg))
		return m, m.waitForProgress()

	case runCompleteMsg:
		m.result = msg.result
		m.err = msg.err
		m.done = true
		m.cancel()
		return m, tea.Quit
	}

	return m, nil
}

// apply records a progress update against its step.
func (m *Model) apply(update tasks.ProgressUpdate) {
	i := update.Step - 1
	if i < 0 || i >= len(m.steps) {
		return
	}
	st := &m.steps[i]

	if res, ok := update.Data.(*tasks.StepResult); ok {
		st.running = false
		st.status = res.Status
		st.duration = res.Duration
		st.err = res.Err
		return
	}
	st.running = true
	st.message = update.Message
}

func (m *Model) start() tea.Cmd {
	m.progressChan = make(chan tasks.ProgressUpdate, 50)
	m.doneChan = make(chan runCompleteMsg, 1)

	progress, done := m.progressChan, m.doneChan
	go func() {
		result, err := m.sequencer.Run(m.ctx, progress)
		close(progress)
		done <- runCompleteMsg{result: result, err: err}
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	progress, done := m.progressChan, m.doneChan
	return func() tea.Msg {
		if update, ok := <-progress; ok {
			return progressUpdateMsg(update)
		}
		return <-done
	}
}

// View renders the step list, the summary once finished, and key help while running.
func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(styles.Title(m.title))
	b.WriteString("\n")

	for i, st := range m.steps {
		fmt.Fprintf(&b, "%s %d. %s", m.icon(st), i+1, st.name)
		switch {
		case st.status == tasks.StatusSucceeded:
			b.WriteString(styles.Muted(fmt.Sprintf(" (%s)", st.duration.Round(time.Millisecond))))
		case st.status == tasks.StatusFailed && st.err != nil:
			b.WriteString(": " + styles.Err(st.err.Error()))
		case st.running && m.details && st.message != "":
			b.WriteString("\n     " + styles.Muted(st.message))
		}
		b.WriteString("\n")
	}

	if m.done {
		b.WriteString("\n")
		b.WriteString(Summary(m.result, m.err))
		b.WriteString("\n")
		return b.String()
	}

	if m.interrupted {
		b.WriteString("\n" + styles.Warn("Interrupting...") + "\n")
	}
	b.WriteString("\n" + m.help.ShortHelpView(m.keys.ShortHelp()) + "\n")
	return b.String()
}

func (m *Model) icon(st stepState) string {
	switch {
	case st.status == tasks.StatusSucceeded:
		return styles.OK("✓")
	case st.status == tasks.StatusFailed:
		return styles.Err("✗")
	case st.status == tasks.StatusSkipped:
		return styles.Muted("-")
	case st.running:
		return m.spinner.View()
	default:
		return styles.Muted("·")
	}
}
