package tui

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/mattjoyce/drivelink/internal/events"
)

const maxTracked = 100

// CommandState is one command as seen through the event stream.
type CommandState struct {
	ID      string
	Kind    string
	Command string
	Status  string
	Phase   string // last engine phase seen while the command ran
	Error   string
	Started time.Time
	Ended   time.Time
}

func (c *CommandState) Duration(now time.Time) time.Duration {
	if c.Started.IsZero() {
		return 0
	}
	end := c.Ended
	if end.IsZero() {
		end = now
	}
	return end.Sub(c.Started)
}

// tracker folds events into per-command state, newest command first.
type tracker struct {
	commands map[string]*CommandState
	order    []string
	current  string

	connected      bool
	remoteShutdown bool
	lastMessage    string
}

func newTracker() *tracker {
	return &tracker{commands: make(map[string]*CommandState)}
}

func (t *tracker) apply(e events.Event) {
	data := make(map[string]any)
	_ = json.Unmarshal(e.Data, &data)
	str := func(k string) string { s, _ := data[k].(string); return s }

	switch e.Type {
	case events.TypeCommandStarted:
		id := str("id")
		if id == "" {
			return
		}
		c := &CommandState{
			ID:      id,
			Kind:    str("kind"),
			Command: str("command"),
			Status:  "running",
			Phase:   "ready",
			Started: e.At,
		}
		t.commands[id] = c
		t.order = append([]string{id}, t.order...)
		t.current = id
		t.trim()

	case events.TypeCommandCompleted:
		c, ok := t.commands[str("id")]
		if !ok {
			return
		}
		c.Status = str("status")
		c.Error = str("error")
		c.Ended = e.At
		if t.current == c.ID {
			t.current = ""
		}

	case events.TypeConnection:
		t.connected = true
	case events.TypeLocalShutdown:
		t.connected = false
	case events.TypeRemoteShutdown:
		t.remoteShutdown = true
	case events.TypeMessage:
		t.lastMessage = str("text")
	}

	if strings.HasPrefix(e.Type, "engine.") && t.current != "" {
		if c := t.commands[t.current]; c != nil && e.Type != events.TypeDebug {
			c.Phase = strings.TrimPrefix(e.Type, "engine.")
		}
	}
}

func (t *tracker) trim() {
	for len(t.order) > maxTracked {
		last := t.order[len(t.order)-1]
		delete(t.commands, last)
		t.order = t.order[:len(t.order)-1]
	}
}

// list returns commands newest first.
func (t *tracker) list() []*CommandState {
	out := make([]*CommandState, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.commands[id])
	}
	return out
}
