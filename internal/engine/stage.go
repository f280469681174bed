package engine

import "errors"

// Stage is where the most recent command stands.
type Stage int

const (
	StageIdle Stage = iota
	StageAwaitingReady
	StageDispatched
	StageAwaitingRunning
	StageAwaitingResult
	StageCompleted
	StageTimedOut
	StageRemoteException
	StageLocalShutdown
	StageRemoteShutdown
)

var stageNames = [...]string{
	StageIdle:            "idle",
	StageAwaitingReady:   "awaiting_ready",
	StageDispatched:      "dispatched",
	StageAwaitingRunning: "awaiting_running",
	StageAwaitingResult:  "awaiting_result",
	StageCompleted:       "completed",
	StageTimedOut:        "timed_out",
	StageRemoteException: "remote_exception",
	StageLocalShutdown:   "local_shutdown",
	StageRemoteShutdown:  "remote_shutdown",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

// Terminal reports whether s ends a command.
func (s Stage) Terminal() bool {
	return s >= StageCompleted
}

// stageFor maps a wait error to the abnormal stage it ends in. Errors that
// are not abort kinds leave the stage unchanged.
func stageFor(err error, current Stage) Stage {
	switch {
	case errors.Is(err, ErrLocalShutdown):
		return StageLocalShutdown
	case errors.Is(err, ErrRemoteShutdown):
		return StageRemoteShutdown
	case errors.Is(err, ErrRemoteException):
		return StageRemoteException
	case errors.Is(err, ErrTimedOut), errors.Is(err, ErrExtensionLimit):
		return StageTimedOut
	default:
		return current
	}
}
