package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lukemcguire/retriever/engine"
	"github.com/lukemcguire/retriever/stats"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng, err := engine.New(engine.Config{StartURLs: nil, Concurrency: 1})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return eng
}

func TestNewModel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := newTestEngine(t)
	model := NewModel(ctx, cancel, eng)

	if model.ctx != ctx {
		t.Error("expected ctx to be stored in model")
	}
	if model.cancel == nil {
		t.Error("expected cancel to be stored in model")
	}
	if model.eng != eng {
		t.Error("expected engine to be stored in model")
	}
	if model.enqueued != 0 || model.fetched != 0 || model.rejected != 0 {
		t.Error("expected initial counters to be zero")
	}
	if model.done {
		t.Error("expected done to be false initially")
	}
}

func TestInit_ReturnsBatchCmd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := newTestEngine(t)
	model := NewModel(ctx, cancel, eng)
	cmd := model.Init()
	if cmd == nil {
		t.Error("Init() should return a non-nil batch command")
	}
}

func TestUpdate_EngineEventMsg(t *testing.T) {
	eng := newTestEngine(t)
	model := Model{events: eng.Events()}

	updatedModel, cmd := model.Update(EngineEventMsg{Event: engine.Event{Kind: engine.EventFetched, URL: "https://example.com/page"}})
	updated := updatedModel.(Model)

	if updated.fetched != 1 {
		t.Errorf("expected fetched=1, got %d", updated.fetched)
	}
	if updated.current != "https://example.com/page" {
		t.Errorf("expected current URL to be set, got %s", updated.current)
	}
	if cmd == nil {
		t.Error("expected non-nil cmd to re-subscribe to the event channel")
	}
}

func TestUpdate_EngineEventMsg_Enqueued(t *testing.T) {
	model := Model{events: make(chan engine.Event)}
	updatedModel, _ := model.Update(EngineEventMsg{Event: engine.Event{Kind: engine.EventEnqueued}})
	updated := updatedModel.(Model)
	if updated.enqueued != 1 {
		t.Errorf("expected enqueued=1, got %d", updated.enqueued)
	}
}

func TestUpdate_EngineEventMsg_Rejected(t *testing.T) {
	model := Model{events: make(chan engine.Event)}
	updatedModel, _ := model.Update(EngineEventMsg{Event: engine.Event{Kind: engine.EventRejected, Reason: "duplicate"}})
	updated := updatedModel.(Model)
	if updated.rejected != 1 {
		t.Errorf("expected rejected=1, got %d", updated.rejected)
	}
}

func TestUpdate_EngineEventsClosedMsg(t *testing.T) {
	model := Model{}
	updatedModel, cmd := model.Update(EngineEventsClosedMsg{})
	updated := updatedModel.(Model)
	if !updated.eventsClosed {
		t.Error("expected eventsClosed=true")
	}
	if cmd != nil {
		t.Error("expected nil cmd once the event channel has closed")
	}
}

func TestUpdate_EngineDoneMsg(t *testing.T) {
	model := Model{}
	snap := stats.Snapshot{JobsDone: 10, JobsFail: 1}

	updatedModel, _ := model.Update(EngineDoneMsg{Snapshot: snap})
	updated := updatedModel.(Model)

	if !updated.done {
		t.Error("expected done=true after EngineDoneMsg")
	}
	if updated.snapshot.JobsDone != 10 {
		t.Error("expected snapshot to be stored")
	}
}

func TestUpdate_SpinnerTickMsg(t *testing.T) {
	model := Model{}
	updatedModel, _ := model.Update(spinner.TickMsg{})
	_ = updatedModel.(Model) // should not panic
}

func TestUpdate_WindowSizeMsg(t *testing.T) {
	model := Model{}
	updatedModel, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	updated := updatedModel.(Model)

	if updated.width != 120 {
		t.Errorf("expected width=120, got %d", updated.width)
	}
}

func TestView_InProgress(t *testing.T) {
	model := Model{
		enqueued: 5,
		fetched:  3,
		rejected: 1,
		current:  "https://example.com/checking",
	}
	output := model.View()
	if !strings.Contains(output, "fetched 3") {
		t.Errorf("expected fetched count in progress view, got: %s", output)
	}
}

func TestView_DoneWithResult(t *testing.T) {
	model := Model{
		done:     true,
		snapshot: stats.Snapshot{JobsDone: 5, Elapsed: time.Second},
	}
	output := model.View()
	if !strings.Contains(output, "No failed fetches") {
		t.Errorf("expected success message in done view, got: %s", output)
	}
}

func TestView_DoneWithError(t *testing.T) {
	model := Model{
		done: true,
		err:  context.Canceled,
	}
	output := model.View()
	if !strings.Contains(output, "Error") {
		t.Errorf("expected error message in done view, got: %s", output)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		exit stats.ExitCode
		want int
	}{
		{"success", stats.ExitSuccess, 0},
		{"network", stats.ExitNetwork, int(stats.ExitNetwork)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := Model{snapshot: stats.Snapshot{Exit: tt.exit}}
			if got := model.ExitCode(); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRenderSummary_NoFailures(t *testing.T) {
	output := RenderSummary(stats.Snapshot{JobsDone: 10, Elapsed: 2 * time.Second})
	if !containsSubstring(output, "No failed fetches") {
		t.Errorf("expected success message, got: %s", output)
	}
	if !containsSubstring(output, "10") {
		t.Errorf("expected fetch count in output, got: %s", output)
	}
}

func TestRenderSummary_WithFailures(t *testing.T) {
	snap := stats.Snapshot{
		JobsDone: 23,
		JobsFail: 2,
		ByCat: map[stats.ErrorCategory]int{
			stats.CategoryHTTPClient: 1,
			stats.CategoryTransient:  1,
		},
		Elapsed: 3 * time.Second,
	}
	output := RenderSummary(snap)
	if !containsSubstring(output, "HTTP 4xx") {
		t.Errorf("expected category label in output, got: %s", output)
	}
	if !containsSubstring(output, "failed 2") {
		t.Errorf("expected failure count in summary, got: %s", output)
	}
}

// containsSubstring checks for a substring in a string that may contain
// ANSI escape codes.
func containsSubstring(haystack, needle string) bool {
	return len(haystack) > 0 && len(needle) > 0 &&
		strings.Contains(haystack, needle)
}
