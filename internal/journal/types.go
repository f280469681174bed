package journal

import (
	"errors"
	"time"

	"github.com/mattjoyce/drivelink/internal/message"
)

// Status is the outcome recorded for a command.
type Status string

const (
	StatusRunning         Status = "running"
	StatusSucceeded       Status = "succeeded"
	StatusTimedOut        Status = "timed_out"
	StatusRemoteException Status = "remote_exception"
	StatusLocalShutdown   Status = "local_shutdown"
	StatusRemoteShutdown  Status = "remote_shutdown"
	StatusSendFailed      Status = "send_failed"
	StatusFailed          Status = "failed"
)

// Terminal reports whether s is a final status.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusTimedOut, StatusRemoteException, StatusLocalShutdown,
		StatusRemoteShutdown, StatusSendFailed, StatusFailed:
		return true
	}
	return false
}

// Kind is the request type a command was sent as.
type Kind string

const (
	KindDispatch     Kind = "dispatch"
	KindDispatchFile Kind = "dispatch_file"
	KindMessage      Kind = "message"
	KindShutdown     Kind = "shutdown"
)

// Entry is one recorded command.
type Entry struct {
	ID             string           `json:"id"`
	Kind           Kind             `json:"kind"`
	Command        string           `json:"command"`
	Target         string           `json:"target,omitempty"`
	Dispatch       *message.Message `json:"dispatch,omitempty"`
	DispatchDigest string           `json:"dispatch_digest,omitempty"`
	Status         Status           `json:"status"`
	Result         *message.Message `json:"result,omitempty"`
	ResultCode     *int             `json:"result_code,omitempty"`
	LastError      *string          `json:"last_error,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
}

// BeginRequest describes a command about to be sent.
type BeginRequest struct {
	Kind     Kind
	Command  string // for dispatch files, the path
	Dispatch *message.Message
}

// CompleteRequest describes how a command ended.
type CompleteRequest struct {
	Status Status
	Result *message.Message
	Err    error
}

var ErrNotFound = errors.New("command not found")
