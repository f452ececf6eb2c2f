// ABOUTME: TUI initialization and control
// ABOUTME: Wraps bubbletea program for the playloop status view
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// QuitMsg is sent when the user asks to stop playback
type QuitMsg struct{}

// Controls holds channels for communication from the TUI to the session
type Controls struct {
	Quit chan QuitMsg
}

// NewControls creates a new control handler
func NewControls() *Controls {
	return &Controls{
		Quit: make(chan QuitMsg, 1),
	}
}

// NewModel creates a new TUI model
func NewModel(controls *Controls) Model {
	return Model{
		state:    "starting",
		controls: controls,
	}
}

// Run creates the TUI program; the caller starts it
func Run(controls *Controls) (*tea.Program, error) {
	p := tea.NewProgram(NewModel(controls), tea.WithAltScreen())
	return p, nil
}
