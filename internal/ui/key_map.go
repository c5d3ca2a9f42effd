package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the progress view.
type keyMap struct {
	details key.Binding
	quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		details: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "toggle details")),
		quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "interrupt")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.details, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.details, k.quit}}
}
