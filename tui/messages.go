package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lukemcguire/retriever/engine"
	"github.com/lukemcguire/retriever/stats"
)

// EngineEventMsg wraps one engine.Event for the Bubble Tea update loop.
type EngineEventMsg struct {
	Event engine.Event
}

// EngineDoneMsg signals that Engine.Run has returned, carrying the final
// snapshot and any error it returned.
type EngineDoneMsg struct {
	Snapshot stats.Snapshot
	Err      error
}

// EngineEventsClosedMsg signals that the engine's event channel closed,
// which happens when Run returns and stops emitting progress. The final
// snapshot arrives separately via EngineDoneMsg.
type EngineEventsClosedMsg struct{}

// waitForEvent returns a tea.Cmd that reads one event from the engine's
// progress channel, reporting EngineEventsClosedMsg once it closes.
func waitForEvent(ch <-chan engine.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return EngineEventsClosedMsg{}
		}
		return EngineEventMsg{Event: ev}
	}
}
