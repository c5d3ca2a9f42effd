package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/provision/internal/tasks"
)

var (
	_ tea.Msg = progressUpdateMsg{}
	_ tea.Msg = runCompleteMsg{}
)

// progressUpdateMsg carries one [tasks.ProgressUpdate] from the sequencer.
type progressUpdateMsg tasks.ProgressUpdate

// runCompleteMsg is sent once the sequencer returns.
type runCompleteMsg struct {
	result *tasks.Result
	err    error
}
