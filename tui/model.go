// Package tui provides the Bubble Tea terminal dashboard for a running
// download: live queue/enqueue/reject counters while the crawl is in
// flight, then a styled summary once Engine.Run returns.
package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lukemcguire/retriever/engine"
	"github.com/lukemcguire/retriever/stats"
)

// Model is the Bubble Tea model for the download dashboard.
type Model struct {
	ctx    context.Context
	cancel context.CancelFunc
	eng    *engine.Engine
	events <-chan engine.Event

	spinner spinner.Model

	enqueued int
	fetched  int
	rejected int
	current  string

	quitting      bool
	eventsClosed  bool
	done          bool
	snapshot      stats.Snapshot
	err           error
	width         int
}

// NewModel creates a dashboard model wired to eng's event stream.
func NewModel(ctx context.Context, cancel context.CancelFunc, eng *engine.Engine) Model {
	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return Model{
		ctx:    ctx,
		cancel: cancel,
		eng:    eng,
		events: eng.Events(),

		spinner: spin,
	}
}

// Init starts the spinner, the crawl itself, and the event listener.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.runEngine(), waitForEvent(m.events))
}

// runEngine returns a tea.Cmd that runs the engine to completion and
// reports its final snapshot.
func (m Model) runEngine() tea.Cmd {
	return func() tea.Msg {
		snap, err := m.eng.Run(m.ctx)
		if err != nil {
			err = fmt.Errorf("run: %w", err)
		}
		return EngineDoneMsg{Snapshot: snap, Err: err}
	}
}

// Update handles messages from the Bubble Tea runtime.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			m.cancel()
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case EngineEventMsg:
		switch msg.Event.Kind {
		case engine.EventEnqueued:
			m.enqueued++
		case engine.EventFetched:
			m.fetched++
			m.current = msg.Event.URL
		case engine.EventRejected:
			m.rejected++
		}
		if m.eventsClosed {
			return m, nil
		}
		return m, waitForEvent(m.events)

	case EngineEventsClosedMsg:
		m.eventsClosed = true
		return m, nil

	case EngineDoneMsg:
		m.done = true
		m.snapshot = msg.Snapshot
		m.err = msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the current dashboard state.
func (m Model) View() string {
	if m.done && m.err != nil {
		return errorStyle.Render("Error: "+m.err.Error()) + "\n"
	}
	if m.done {
		return RenderSummary(m.snapshot)
	}
	return fmt.Sprintf("%s queued %d, fetched %d, rejected %d\n%s\n",
		m.spinner.View(), m.enqueued, m.fetched, m.rejected,
		dimStyle.Render("  "+m.current))
}

// ExitCode returns the process exit code implied by the final snapshot,
// per spec §7's lowest-nonzero-wins rule.
func (m Model) ExitCode() int {
	if m.snapshot.Exit == stats.ExitSuccess {
		return 0
	}
	return int(m.snapshot.Exit)
}

// Snapshot returns the final counters for structured output.
func (m Model) Snapshot() stats.Snapshot {
	return m.snapshot
}
