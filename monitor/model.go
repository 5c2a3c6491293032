// Package monitor is a bubbletea debug dashboard showing live Conductor
// mode, error counts, and skip-draw forcing, driven by an EngineListener
// registered on the engine under observation.
package monitor

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// KeyMap defines the dashboard's keybindings.
type KeyMap struct {
	Quit key.Binding
}

// DefaultKeyMap returns the dashboard's default keybindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// tickInterval matches the teacher's audio player's own polling cadence.
const tickInterval = 100 * time.Millisecond

var (
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("62")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// Listener is an EngineListener that feeds a Model. Safe for concurrent
// use — the engine may call it from a different goroutine than the one
// running the bubbletea program.
type Listener struct {
	mu sync.Mutex

	messageID       string
	mode            string
	skipDrawCount   int
	chunksComplete  int
	lastStartAudio  uint32
	errors          []string
}

// NewListener constructs a Listener ready to attach to an engine.
func NewListener() *Listener {
	return &Listener{mode: "idle"}
}

func (l *Listener) OnStateChange(messageID string, from, to string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messageID = messageID
	l.mode = to
}

func (l *Listener) OnError(component string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fmt.Sprintf("[%s] %v", component, err))
	if len(l.errors) > 20 {
		l.errors = l.errors[len(l.errors)-20:]
	}
}

func (l *Listener) OnStartAudio(messageID string, chunkIndex uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastStartAudio = chunkIndex
}

func (l *Listener) OnAllChunksComplete(messageID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.chunksComplete++
}

// RecordSkipDrawForced lets the engine (or a wrapper around it) report
// forced skip-draws, which EngineListener itself does not carry since
// that detail is diagnostics-grade rather than lifecycle-grade.
func (l *Listener) RecordSkipDrawForced() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.skipDrawCount++
}

func (l *Listener) snapshot() snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	errs := make([]string, len(l.errors))
	copy(errs, l.errors)
	return snapshot{
		messageID:      l.messageID,
		mode:           l.mode,
		skipDrawCount:  l.skipDrawCount,
		chunksComplete: l.chunksComplete,
		lastStartAudio: l.lastStartAudio,
		errors:         errs,
	}
}

type snapshot struct {
	messageID      string
	mode           string
	skipDrawCount  int
	chunksComplete int
	lastStartAudio uint32
	errors         []string
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Model is the bubbletea program model for the debug dashboard.
type Model struct {
	listener      *Listener
	skipDrawCount func() int // optional, e.g. diagnostics.Log.SkipDrawCount
	KeyMap        KeyMap
	width         int
	current       snapshot
}

// New constructs a Model reading from listener.
func New(listener *Listener) Model {
	return Model{listener: listener, KeyMap: DefaultKeyMap(), width: 60}
}

// WithSkipDrawSource overrides the skip-draw counter source, used when a
// diagnostics.Log is attached to the engine (EngineListener itself does
// not carry skip-draw detail, only diagnostics does).
func (m Model) WithSkipDrawSource(f func() int) Model {
	m.skipDrawCount = f
	return m
}

func (m Model) Init() tea.Cmd {
	return tickCmd()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		if key.Matches(msg, m.KeyMap.Quit) {
			return m, tea.Quit
		}
	case tickMsg:
		m.current = m.listener.snapshot()
		if m.skipDrawCount != nil {
			m.current.skipDrawCount = m.skipDrawCount()
		}
		return m, tickCmd()
	}
	return m, nil
}

func (m Model) View() string {
	s := m.current
	var b []string
	b = append(b, labelStyle.Render("message:")+" "+valueStyle.Render(s.messageID))
	b = append(b, labelStyle.Render("mode:")+" "+valueStyle.Render(s.mode))
	b = append(b, labelStyle.Render("chunks complete:")+" "+valueStyle.Render(fmt.Sprintf("%d", s.chunksComplete)))
	b = append(b, labelStyle.Render("last audio start chunk:")+" "+valueStyle.Render(fmt.Sprintf("%d", s.lastStartAudio)))
	if s.skipDrawCount > 0 {
		b = append(b, warnStyle.Render(fmt.Sprintf("skip-draws forced: %d", s.skipDrawCount)))
	}
	for _, e := range s.errors {
		b = append(b, errStyle.Render(e))
	}
	b = append(b, labelStyle.Render(fmt.Sprintf("[%s] %s", m.KeyMap.Quit.Help().Key, m.KeyMap.Quit.Help().Desc)))

	out := ""
	for _, line := range b {
		out += line + "\n"
	}
	return lipgloss.NewStyle().
		Width(m.width).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2).
		Render(out)
}
