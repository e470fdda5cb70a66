// Package tui provides a terminal user interface for midiseq
package tui

import (
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/james-see/midiseq/pkg/midifile"
	"github.com/james-see/midiseq/pkg/playback"
	"github.com/james-see/midiseq/pkg/transport"
)

// Acid-inspired color scheme
var (
	acidGreen  = lipgloss.Color("#39FF14")
	acidYellow = lipgloss.Color("#FFFF00")
	silverGray = lipgloss.Color("#C0C0C0")
	darkGray   = lipgloss.Color("#333333")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(acidGreen).
			Background(darkGray).
			Padding(0, 2).
			MarginBottom(1)

	menuStyle = lipgloss.NewStyle().
			Foreground(silverGray).
			PaddingLeft(2)

	selectedStyle = lipgloss.NewStyle().
			Foreground(acidGreen).
			Bold(true).
			PaddingLeft(2)

	statusStyle = lipgloss.NewStyle().
			Foreground(acidYellow).
			PaddingTop(1)

	logStyle = lipgloss.NewStyle().
			Foreground(silverGray)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(acidGreen).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(acidGreen).
			Padding(1, 2)
)

// logLines is the number of recent events shown while playing.
const logLines = 12

// State represents the current TUI state
type State int

const (
	StateMenu State = iota
	StateFilePicker
	StateLoading
	StatePlaying
	StateInspect
	StateResult
)

// Action is what happens to the picked file.
type Action int

const (
	ActionPlay Action = iota
	ActionInspect
	ActionExit
)

// MenuItem represents a menu option
type MenuItem struct {
	Title       string
	Description string
	Action      Action
}

var menuItems = []MenuItem{
	{Title: "Play", Description: "Play a MIDI file in real time", Action: ActionPlay},
	{Title: "Inspect", Description: "Show the header and tracks of a MIDI file", Action: ActionInspect},
	{Title: "Exit", Description: "Exit the application", Action: ActionExit},
}

// Options configures the TUI.
type Options struct {
	// File is used to open the picked file.
	File midifile.Options
	// Sink receives the played events. Nil plays silently.
	Sink transport.Sink
	// Reuse plays with borrowed events.
	Reuse bool
	// Reset sends all notes off before and after playing.
	Reset  bool
	Logger *log.Logger
	// Clock defaults to the system clock.
	Clock playback.Clock
}

// Model represents the TUI model
type Model struct {
	opts Options

	state        State
	menuIndex    int
	action       Action
	filePicker   filepicker.Model
	spinner      spinner.Model
	progress     progress.Model
	selectedFile string

	file     *midifile.File
	length   int64
	position int64
	events   int
	log      []string
	tracks   []trackSummary

	cancel  context.CancelFunc
	updates <-chan tea.Msg

	err    error
	width  int
	height int
}

type trackSummary struct {
	index  int
	bytes  int64
	events int
	name   string
}

// loadedMsg signals that the picked file was opened and measured.
type loadedMsg struct {
	file   *midifile.File
	length int64
	tracks []trackSummary
	err    error
}

// playedMsg reports one event sent during playback.
type playedMsg struct {
	timestamp int64
	text      string
}

// playDoneMsg signals the end of playback.
type playDoneMsg struct {
	err error
}

// Init initializes the TUI model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick)
}

// New creates a new TUI model
func New(opts Options) Model {
	fp := filepicker.New()
	fp.AllowedTypes = midifile.Extensions
	fp.CurrentDirectory, _ = os.Getwd()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(acidGreen)

	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr)
		opts.Logger.SetLevel(log.FatalLevel)
	}

	return Model{
		opts:       opts,
		state:      StateMenu,
		filePicker: fp,
		spinner:    s,
		progress:   progress.New(progress.WithSolidFill(string(acidGreen))),
	}
}

// Update handles TUI updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// Handle file picker state first - it needs to receive all messages
	if m.state == StateFilePicker {
		if keyMsg, ok := msg.(tea.KeyMsg); ok {
			switch keyMsg.String() {
			case "esc":
				m.state = StateMenu
				return m, nil
			case "q", "ctrl+c":
				return m, tea.Quit
			}
		}

		var cmd tea.Cmd
		m.filePicker, cmd = m.filePicker.Update(msg)

		if didSelect, path := m.filePicker.DidSelectFile(msg); didSelect {
			m.selectedFile = path
			m.state = StateLoading
			return m, tea.Batch(m.spinner.Tick, m.load())
		}

		return m, cmd
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.filePicker.SetHeight(msg.Height - 10)
		m.progress.Width = max(msg.Width-12, 10)
		return m, nil

	case tea.KeyMsg:
		switch m.state {
		case StateMenu:
			return m.updateMenu(msg)
		case StatePlaying:
			return m.updatePlaying(msg)
		case StateInspect, StateResult:
			return m.updateResult(msg)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case loadedMsg:
		if msg.err != nil {
			m.state = StateResult
			m.err = msg.err
			return m, nil
		}
		m.file = msg.file
		m.length = msg.length
		m.tracks = msg.tracks
		if m.action == ActionInspect {
			m.state = StateInspect
			return m, nil
		}
		return m.startPlayback()

	case playedMsg:
		m.position = msg.timestamp
		m.events++
		m.log = append(m.log, msg.text)
		if len(m.log) > logLines {
			m.log = m.log[len(m.log)-logLines:]
		}
		return m, listen(m.updates)

	case playDoneMsg:
		m.stop()
		m.state = StateResult
		m.err = msg.err
		return m, nil
	}

	return m, nil
}

func (m Model) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.menuIndex > 0 {
			m.menuIndex--
		}
	case "down", "j":
		if m.menuIndex < len(menuItems)-1 {
			m.menuIndex++
		}
	case "enter":
		m.action = menuItems[m.menuIndex].Action
		if m.action == ActionExit {
			return m, tea.Quit
		}
		m.state = StateFilePicker
		return m, m.filePicker.Init()
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) updatePlaying(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "s":
		// playback goroutine reports context.Canceled through playDoneMsg
		m.stop()
		return m, nil
	case "q", "ctrl+c":
		m.stop()
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) updateResult(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc":
		m.state = StateMenu
		m.err = nil
		m.selectedFile = ""
		m.file = nil
		m.log = nil
		m.events = 0
		m.position = 0
		return m, nil
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m Model) load() tea.Cmd {
	path, opts := m.selectedFile, m.opts.File
	return func() tea.Msg {
		f, err := midifile.Open(path, opts)
		if err != nil {
			return loadedMsg{err: err}
		}
		var tracks []trackSummary
		for _, t := range f.Tracks() {
			s := trackSummary{index: t.Index(), bytes: t.Len()}
			for ev, err := range t.Borrow() {
				if err != nil {
					return loadedMsg{err: err}
				}
				s.events++
				if ev.Status == midifile.TrackName && s.name == "" {
					if msg, err := ev.Message(); err == nil {
						if name, ok := msg.(midifile.NameMsg); ok {
							s.name = name.Name
						}
					}
				}
			}
			tracks = append(tracks, s)
		}
		length, err := f.LengthMicros()
		if errors.Is(err, midifile.ErrFormat2Merge) {
			err = nil
		}
		return loadedMsg{file: f, length: length, tracks: tracks, err: err}
	}
}

func (m Model) startPlayback() (Model, tea.Cmd) {
	ctx, cancel := context.WithCancel(log.WithContext(context.Background(), m.opts.Logger))
	updates := make(chan tea.Msg, 64)
	m.cancel = cancel
	m.updates = updates
	m.state = StatePlaying
	m.position = 0
	m.events = 0
	m.log = nil

	var seq iter.Seq2[*midifile.Event, error]
	if m.opts.Reuse {
		seq = m.file.Borrow()
	} else {
		seq = playback.Copies(m.file.Events())
	}
	go play(ctx, seq, m.opts, updates)

	return m, tea.Batch(m.spinner.Tick, listen(updates))
}

// play runs the scheduler and reports every event on updates, which it
// closes when done.
func play(ctx context.Context, seq iter.Seq2[*midifile.Event, error], opts Options, updates chan<- tea.Msg) {
	defer close(updates)

	if opts.Sink != nil && opts.Reset {
		if err := transport.Reset(opts.Sink); err != nil {
			report(ctx, updates, playDoneMsg{err: err})
			return
		}
		defer func() { _ = transport.Reset(opts.Sink) }()
	}

	s := playback.New(opts.Clock)
	err := s.Run(ctx, seq, func(ev *midifile.Event) error {
		if opts.Sink != nil {
			if _, err := transport.Send(opts.Sink, ev); err != nil {
				return err
			}
		}
		report(ctx, updates, playedMsg{timestamp: ev.TimestampUS, text: ev.String()})
		return nil
	})
	report(ctx, updates, playDoneMsg{err: err})
}

// report delivers msg unless the UI has stopped listening.
func report(ctx context.Context, updates chan<- tea.Msg, msg tea.Msg) {
	select {
	case updates <- msg:
	case <-ctx.Done():
	}
}

func listen(updates <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-updates
		if !ok {
			return playDoneMsg{}
		}
		return msg
	}
}

// View renders the TUI
func (m Model) View() string {
	var s strings.Builder

	s.WriteString(asciiLogo())
	s.WriteString("\n")

	switch m.state {
	case StateMenu:
		s.WriteString(m.viewMenu())
	case StateFilePicker:
		s.WriteString(m.viewFilePicker())
	case StateLoading:
		s.WriteString(m.viewLoading())
	case StatePlaying:
		s.WriteString(m.viewPlaying())
	case StateInspect:
		s.WriteString(m.viewInspect())
	case StateResult:
		s.WriteString(m.viewResult())
	}

	s.WriteString("\n")
	s.WriteString(helpStyle.Render("↑/↓: navigate • enter: select • esc: stop • q: quit"))

	return s.String()
}

func (m Model) viewMenu() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" MIDISEQ "))
	s.WriteString("\n\n")

	for i, item := range menuItems {
		if i == m.menuIndex {
			s.WriteString(selectedStyle.Render(fmt.Sprintf("▸ %s", item.Title)))
			s.WriteString("\n")
			s.WriteString(lipgloss.NewStyle().Foreground(acidYellow).PaddingLeft(4).Render(item.Description))
		} else {
			s.WriteString(menuStyle.Render(fmt.Sprintf("  %s", item.Title)))
		}
		s.WriteString("\n")
	}

	return boxStyle.Render(s.String())
}

func (m Model) viewFilePicker() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" SELECT MIDI FILE "))
	s.WriteString("\n\n")
	s.WriteString(m.filePicker.View())
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("esc: back to menu"))

	return s.String()
}

func (m Model) viewLoading() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" LOADING "))
	s.WriteString("\n\n")
	s.WriteString(fmt.Sprintf("%s Reading %s...\n", m.spinner.View(), filepath.Base(m.selectedFile)))

	return boxStyle.Render(s.String())
}

func (m Model) viewPlaying() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" PLAYING "))
	s.WriteString("\n\n")
	s.WriteString(fmt.Sprintf("%s %s\n\n", m.spinner.View(), filepath.Base(m.selectedFile)))

	var percent float64
	if m.length > 0 {
		percent = min(float64(m.position)/float64(m.length), 1)
	}
	s.WriteString(m.progress.ViewAs(percent))
	s.WriteString(statusStyle.Render(fmt.Sprintf("  %s / %s  •  %d events",
		micros(m.position), micros(m.length), m.events)))
	s.WriteString("\n\n")
	for _, line := range m.log {
		s.WriteString(logStyle.Render(line))
		s.WriteString("\n")
	}

	return boxStyle.Render(s.String())
}

func (m Model) viewInspect() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" FILE "))
	s.WriteString("\n\n")
	s.WriteString(fmt.Sprintf("File:    %s\n", filepath.Base(m.selectedFile)))
	s.WriteString(fmt.Sprintf("Format:  %d\n", m.file.Format))
	s.WriteString(fmt.Sprintf("Ticks:   %d per quarter note\n", m.file.TicksPerQuarter))
	if m.file.Format == 2 && len(m.tracks) > 1 {
		s.WriteString("Length:  independent tracks\n")
	} else {
		s.WriteString(fmt.Sprintf("Length:  %s\n", micros(m.length)))
	}
	s.WriteString("\n")
	for _, t := range m.tracks {
		line := fmt.Sprintf("Track %2d  %6d bytes  %5d events", t.index, t.bytes, t.events)
		if t.name != "" {
			line += "  " + t.name
		}
		s.WriteString(menuStyle.Render(line))
		s.WriteString("\n")
	}

	s.WriteString("\n")
	s.WriteString(helpStyle.Render("Press enter to continue"))

	return boxStyle.Render(s.String())
}

func (m Model) viewResult() string {
	var s strings.Builder

	stopped := errors.Is(m.err, context.Canceled)
	if m.err != nil && !stopped {
		s.WriteString(titleStyle.Render(" ERROR "))
		s.WriteString("\n\n")
		s.WriteString(errorStyle.Render(fmt.Sprintf("✗ %s", m.err.Error())))
	} else {
		s.WriteString(titleStyle.Render(" DONE "))
		s.WriteString("\n\n")
		if stopped {
			s.WriteString(successStyle.Render("■ Playback stopped"))
		} else {
			s.WriteString(successStyle.Render("✓ Playback complete!"))
		}
		s.WriteString("\n\n")
		s.WriteString(fmt.Sprintf("File:   %s\n", filepath.Base(m.selectedFile)))
		s.WriteString(fmt.Sprintf("Events: %d", m.events))
	}

	s.WriteString("\n\n")
	s.WriteString(helpStyle.Render("Press enter to continue"))

	return boxStyle.Render(s.String())
}

func micros(us int64) string {
	return (time.Duration(us) * time.Microsecond).Truncate(time.Millisecond).String()
}

func asciiLogo() string {
	logo := `
            _     _
  _ __ ___ (_) __| (_)___  ___  __ _
 | '_ ` + "`" + ` _ \| |/ _` + "`" + ` | / __|/ _ \/ _` + "`" + ` |
 | | | | | | | (_| | \__ \  __/ (_| |
 |_| |_| |_|_|\__,_|_|___/\___|\__, |
                                  |_|
`
	return lipgloss.NewStyle().Foreground(acidGreen).Render(logo)
}

// Run starts the TUI application
func Run(opts Options) error {
	p := tea.NewProgram(New(opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
