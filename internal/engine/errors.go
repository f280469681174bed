package engine

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimedOut is returned when the awaited phase did not arrive in time.
	ErrTimedOut = errors.New("timed out")
	// ErrRemoteException is returned when the remote engine reported a failure.
	ErrRemoteException = errors.New("remote exception")
	// ErrLocalShutdown is returned when the controller side shut down.
	ErrLocalShutdown = errors.New("local shutdown")
	// ErrRemoteShutdown is returned when the remote engine shut down.
	ErrRemoteShutdown = errors.New("remote shutdown")
	// ErrSendFailed is returned when the transport refused a request.
	ErrSendFailed = errors.New("transport refused to send")
	// ErrExtensionLimit is returned when a result asks for more timeout
	// extensions than WithMaxTimeoutExtensions allows.
	ErrExtensionLimit = errors.New("timeout extension limit reached")
)

// Phase names the remote phase a wait was blocked on.
type Phase string

const (
	PhaseReady    Phase = "ready"
	PhaseRunning  Phase = "running"
	PhaseResult   Phase = "result"
	PhaseShutdown Phase = "shutdown"
)

// WaitError is returned by the blocking waits. Err is one of ErrTimedOut,
// ErrRemoteException, ErrLocalShutdown, ErrRemoteShutdown or
// ErrExtensionLimit.
type WaitError struct {
	Phase   Phase
	Err     error
	Text    string        // remote exception text
	Cause   int           // shutdown cause
	Timeout time.Duration // for ErrTimedOut
}

func (e *WaitError) Error() string {
	switch {
	case errors.Is(e.Err, ErrTimedOut):
		return fmt.Sprintf("waiting for %s: %v after %s", e.Phase, e.Err, e.Timeout)
	case errors.Is(e.Err, ErrRemoteException):
		return fmt.Sprintf("waiting for %s: %v: %s", e.Phase, e.Err, e.Text)
	case errors.Is(e.Err, ErrLocalShutdown), errors.Is(e.Err, ErrRemoteShutdown):
		return fmt.Sprintf("waiting for %s: %v (cause %d)", e.Phase, e.Err, e.Cause)
	default:
		return fmt.Sprintf("waiting for %s: %v", e.Phase, e.Err)
	}
}

func (e *WaitError) Unwrap() error { return e.Err }

// SendError is returned when the transport refused a request. No remote
// interaction happened.
type SendError struct {
	Op string // dispatch, dispatch_file, message or shutdown
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send %s: %v", e.Op, ErrSendFailed)
}

func (e *SendError) Unwrap() error { return ErrSendFailed }
