package api

import (
	"fmt"
	"time"

	"github.com/mattjoyce/drivelink/internal/driver"
	"github.com/mattjoyce/drivelink/internal/journal"
	"github.com/mattjoyce/drivelink/internal/message"
)

// TimeoutsRequest overrides the configured waits. Values are Go durations
// such as "30s" or "2m"; empty fields keep the configured value.
type TimeoutsRequest struct {
	Ready    string `json:"ready,omitempty"`
	Running  string `json:"running,omitempty"`
	Result   string `json:"result,omitempty"`
	Shutdown string `json:"shutdown,omitempty"`
}

func (t TimeoutsRequest) parse() (driver.Timeouts, error) {
	var out driver.Timeouts
	fields := []struct {
		name string
		in   string
		dst  *time.Duration
	}{
		{"ready", t.Ready, &out.Ready},
		{"running", t.Running, &out.Running},
		{"result", t.Result, &out.Result},
		{"shutdown", t.Shutdown, &out.Shutdown},
	}
	for _, f := range fields {
		if f.in == "" {
			continue
		}
		d, err := time.ParseDuration(f.in)
		if err != nil || d < 0 {
			return driver.Timeouts{}, fmt.Errorf("timeouts.%s: invalid duration %q", f.name, f.in)
		}
		*f.dst = d
	}
	return out, nil
}

// CommandRequest is the JSON body for POST /command.
type CommandRequest struct {
	Properties *message.Message `json:"properties"`
	Timeouts   TimeoutsRequest  `json:"timeouts,omitempty"`
}

// FileCommandRequest is the JSON body for POST /command/file.
type FileCommandRequest struct {
	Path     string          `json:"path"`
	Timeouts TimeoutsRequest `json:"timeouts,omitempty"`
}

// MessageRequest is the JSON body for POST /message.
type MessageRequest struct {
	Text string `json:"text"`
}

// ShutdownRequest is the optional JSON body for POST /shutdown.
type ShutdownRequest struct {
	Timeouts TimeoutsRequest `json:"timeouts,omitempty"`
}

// CommandListResponse is returned by GET /commands.
type CommandListResponse struct {
	Commands []*journal.Entry `json:"commands"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Connected     bool   `json:"connected"`
	Stage         string `json:"stage"`
	Busy          bool   `json:"busy"`
}
