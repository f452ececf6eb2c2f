// ABOUTME: Bubbletea model for the playloop status view
// ABOUTME: Defines display state, status updates and rendering
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// maxEvents is the number of recent loop events shown
const maxEvents = 5

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle  = lipgloss.NewStyle().Faint(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	helpStyle   = lipgloss.NewStyle().Faint(true).Italic(true)
	eventsStyle = lipgloss.NewStyle().PaddingLeft(2)
)

// Model represents the TUI state
type Model struct {
	// Source
	file       string
	vendor     string
	sampleRate int
	channels   int
	device     string
	length     int64

	// Loop
	loopStart int64
	loopEnd   int64
	hasLoop   bool
	loopState string

	// Playback
	state      string
	played     time.Duration
	frames     int64
	iterations int
	buffered   time.Duration
	dropped    int64
	err        string

	events []string

	controls *Controls

	// Dimensions
	width  int
	height int
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderLoop())
	b.WriteString("\n")
	b.WriteString(m.renderPlayback())
	if len(m.events) > 0 {
		b.WriteString("\n\n")
		b.WriteString(m.renderEvents())
	}

	box := boxStyle
	if m.width > 4 {
		box = box.Width(m.width - 4)
	}
	return box.Render(b.String()) + "\n" + helpStyle.Render("q: quit")
}

func (m Model) renderHeader() string {
	s := titleStyle.Render("playloop") + "  " + truncate(m.file, 48) + "\n"
	if m.sampleRate == 0 {
		return s + labelStyle.Render("Format: ") + "unknown"
	}
	s += labelStyle.Render("Format: ") + fmt.Sprintf("%dHz %s", m.sampleRate, channelName(m.channels))
	if m.device != "" {
		s += labelStyle.Render(" -> ") + m.device
	}
	if m.length > 0 {
		d := time.Duration(m.length) * time.Second / time.Duration(m.sampleRate)
		s += "\n" + labelStyle.Render("Length: ") + formatDuration(d) + fmt.Sprintf("  (%d frames)", m.length)
	}
	if m.vendor != "" {
		s += "\n" + labelStyle.Render("Encoder: ") + truncate(m.vendor, 48)
	}
	return s
}

func (m Model) renderLoop() string {
	if !m.hasLoop {
		return labelStyle.Render("Loop:   ") + "none"
	}

	state := m.loopState
	switch m.loopState {
	case "confirmed":
		state = okStyle.Render(state)
	case "unavailable", "incomplete":
		state = warnStyle.Render(state)
	}
	return labelStyle.Render("Loop:   ") + fmt.Sprintf("%d..%d  %s  x%d", m.loopStart, m.loopEnd, state, m.iterations)
}

func (m Model) renderPlayback() string {
	state := m.state
	switch m.state {
	case "playing":
		state = okStyle.Render(state)
	case "failed":
		state = errorStyle.Render(state)
	}

	s := labelStyle.Render("State:  ") + state + "\n"
	s += labelStyle.Render("Played: ") + formatDuration(m.played) + fmt.Sprintf("  (%d frames)", m.frames) + "\n"
	s += labelStyle.Render("Buffer: ") + fmt.Sprintf("%dms", m.buffered.Milliseconds())
	if m.dropped > 0 {
		s += warnStyle.Render(fmt.Sprintf("  %d events dropped", m.dropped))
	}
	if m.err != "" {
		s += "\n" + errorStyle.Render("Error: "+truncate(m.err, 60))
	}
	return s
}

func (m Model) renderEvents() string {
	return labelStyle.Render("Events:") + "\n" + eventsStyle.Render(strings.Join(m.events, "\n"))
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.controls != nil {
			select {
			case m.controls.Quit <- QuitMsg{}:
			default:
			}
		}
		return m, tea.Quit
	}

	return m, nil
}

// applyStatus updates model from status message. Empty strings and zero
// formats leave the current values in place; counters always update.
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.File != "" {
		m.file = msg.File
	}
	if msg.Vendor != "" {
		m.vendor = msg.Vendor
	}
	if msg.SampleRate != 0 {
		m.sampleRate = msg.SampleRate
		m.channels = msg.Channels
	}
	if msg.Device != "" {
		m.device = msg.Device
	}
	if msg.Length > 0 {
		m.length = msg.Length
	}
	if msg.LoopState != "" {
		m.loopState = msg.LoopState
	}
	if msg.HasLoop {
		m.hasLoop = true
		m.loopStart = msg.LoopStart
		m.loopEnd = msg.LoopEnd
	}
	if msg.State != "" {
		m.state = msg.State
	}
	if msg.Err != "" {
		m.err = msg.Err
	}
	if msg.Event != "" {
		m.events = append(m.events, msg.Event)
		if len(m.events) > maxEvents {
			m.events = m.events[len(m.events)-maxEvents:]
		}
	}
	if msg.Stats {
		m.played = msg.Played
		m.frames = msg.Frames
		m.iterations = msg.Iterations
		m.buffered = msg.Buffered
		m.dropped = msg.Dropped
	}
}

// StatusMsg updates TUI state
type StatusMsg struct {
	File       string
	Vendor     string
	SampleRate int
	Channels   int
	Device     string
	Length     int64

	HasLoop   bool
	LoopStart int64
	LoopEnd   int64
	LoopState string

	State string
	Err   string
	Event string

	// Stats marks the counters below as present
	Stats      bool
	Played     time.Duration
	Frames     int64
	Iterations int
	Buffered   time.Duration
	Dropped    int64
}

// Utility functions
func formatDuration(d time.Duration) string {
	d = d.Truncate(10 * time.Millisecond)
	minutes := int(d / time.Minute)
	seconds := d % time.Minute
	return fmt.Sprintf("%d:%05.2f", minutes, seconds.Seconds())
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func channelName(channels int) string {
	switch channels {
	case 1:
		return "Mono"
	case 2:
		return "Stereo"
	default:
		return fmt.Sprintf("%dch", channels)
	}
}
