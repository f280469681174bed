package tui

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/drivelink/internal/events"
)

func ev(id int64, typ string, data any) events.Event {
	b, _ := json.Marshal(data)
	if data == nil {
		b = []byte("{}")
	}
	return events.Event{ID: id, Type: typ, At: time.Now(), Data: b}
}

func TestReadEvents(t *testing.T) {
	stream := strings.Join([]string{
		"id: 1",
		"event: engine.ready",
		"data: {}",
		"",
		": keep-alive",
		"",
		"id: 2",
		"event: command.started",
		`data: {"id":"abc","kind":"dispatch","command":"click"}`,
		"",
	}, "\n")

	var got []events.Event
	if err := readEvents(strings.NewReader(stream), func(e events.Event) { got = append(got, e) }); err != nil {
		t.Fatalf("readEvents: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].ID != 1 || got[0].Type != events.TypeReady {
		t.Errorf("first event = %+v", got[0])
	}
	if got[1].Type != events.TypeCommandStarted || !strings.Contains(string(got[1].Data), `"command":"click"`) {
		t.Errorf("second event = %+v", got[1])
	}
}

func TestReadEventsFramingVariants(t *testing.T) {
	tests := []struct {
		name     string
		stream   string
		wantIDs  []int64
		wantLast string
	}{
		{"trailing blank line", "id: 1\ndata: {}\n\nid: 2\ndata: {\"a\":1}\n\n", []int64{1, 2}, `{"a":1}`},
		{"ends after data line", "id: 1\ndata: {}\n\nid: 2\ndata: {\"a\":1}", []int64{1, 2}, `{"a":1}`},
		{"multi-line data", "id: 7\ndata: [1,\ndata: 2]\n", []int64{7}, "[1,\n2]"},
		{"comments only", ": keep-alive\n\n", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []events.Event
			if err := readEvents(strings.NewReader(tt.stream), func(e events.Event) { got = append(got, e) }); err != nil {
				t.Fatalf("readEvents: %v", err)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("got %d events, want %d", len(got), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if got[i].ID != id {
					t.Errorf("event %d id = %d, want %d", i, got[i].ID, id)
				}
			}
			if len(got) > 0 && string(got[len(got)-1].Data) != tt.wantLast {
				t.Errorf("last data = %q, want %q", got[len(got)-1].Data, tt.wantLast)
			}
		})
	}
}

func TestTrackerFollowsCommand(t *testing.T) {
	tr := newTracker()
	tr.apply(ev(1, events.TypeConnection, nil))
	tr.apply(ev(2, events.TypeCommandStarted, map[string]string{"id": "c1", "kind": "dispatch", "command": "click"}))
	tr.apply(ev(3, events.TypeRunning, nil))

	cmds := tr.list()
	if len(cmds) != 1 {
		t.Fatalf("tracked %d commands", len(cmds))
	}
	if cmds[0].Status != "running" || cmds[0].Phase != "running" {
		t.Fatalf("unexpected state: %+v", cmds[0])
	}
	if !tr.connected || tr.current != "c1" {
		t.Fatalf("tracker: connected=%v current=%q", tr.connected, tr.current)
	}

	tr.apply(ev(4, events.TypeDebug, map[string]string{"text": "noise"}))
	if cmds[0].Phase != "running" {
		t.Fatalf("debug text changed the phase: %q", cmds[0].Phase)
	}

	tr.apply(ev(5, events.TypeResult, map[string]any{"code": 0, "info": "ok"}))
	tr.apply(ev(6, events.TypeCommandCompleted, map[string]string{"id": "c1", "status": "succeeded"}))
	if cmds[0].Status != "succeeded" || cmds[0].Phase != "result" || cmds[0].Ended.IsZero() {
		t.Fatalf("unexpected final state: %+v", cmds[0])
	}
	if tr.current != "" {
		t.Fatal("current command not cleared")
	}

	// Engine events between commands do not touch finished ones.
	tr.apply(ev(7, events.TypeReady, nil))
	if cmds[0].Phase != "result" {
		t.Fatalf("finished command phase changed to %q", cmds[0].Phase)
	}
}

func TestTrackerNewestFirstAndTrimmed(t *testing.T) {
	tr := newTracker()
	for i := 0; i < maxTracked+5; i++ {
		id := strings.Repeat("x", i+1)
		tr.apply(ev(int64(i), events.TypeCommandStarted, map[string]string{"id": id}))
	}
	list := tr.list()
	if len(list) != maxTracked {
		t.Fatalf("tracked %d, want %d", len(list), maxTracked)
	}
	if len(list[0].ID) != maxTracked+5 {
		t.Fatalf("newest command not first")
	}
}

func TestTrackerShutdownAndMessages(t *testing.T) {
	tr := newTracker()
	tr.apply(ev(1, events.TypeMessage, map[string]string{"text": "hello"}))
	tr.apply(ev(2, events.TypeRemoteShutdown, map[string]int{"cause": 0}))
	if tr.lastMessage != "hello" || !tr.remoteShutdown {
		t.Fatalf("tracker = %+v", tr)
	}
	tr.apply(ev(3, events.TypeCommandCompleted, map[string]string{"id": "unknown"}))
	if len(tr.list()) != 0 {
		t.Fatal("completion for unknown command created a row")
	}
}

func TestModelUpdateAndView(t *testing.T) {
	m := NewMonitor("http://127.0.0.1:8088/", "key")
	if m.apiURL != "http://127.0.0.1:8088" {
		t.Fatalf("apiURL = %q", m.apiURL)
	}

	var model tea.Model = *m
	if v := model.View(); v != "Initializing..." {
		t.Fatalf("view before size = %q", v)
	}

	model, _ = model.Update(tea.WindowSizeMsg{Width: 140, Height: 40})
	model, _ = model.Update(eventMsg(ev(7, events.TypeCommandStarted, map[string]string{"id": "0123456789", "kind": "dispatch", "command": "click"})))
	model, _ = model.Update(healthMsg{Status: "ok", Connected: true, Stage: "dispatched", Busy: true})

	got := model.(Model)
	if got.lastEventID != 7 {
		t.Fatalf("lastEventID = %d", got.lastEventID)
	}
	view := got.View()
	for _, want := range []string{"click", "01234567", "CONNECTED", "dispatched", "command.started"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}

	model, _ = model.Update(sseDisconnectedMsg{})
	if !strings.Contains(model.(Model).View(), "reconnecting") {
		t.Error("disconnect not shown")
	}

	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q should quit")
	}
}
