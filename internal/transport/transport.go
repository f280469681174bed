// Package transport connects the engine to a remote automation engine.
//
// A transport sends dispatches, free messages and shutdown requests, and
// invokes exactly one Handler callback per remote event from its own
// goroutine. Send methods report immediate local failure by returning false;
// they never block waiting for the remote side to answer.
package transport

import "github.com/mattjoyce/drivelink/internal/message"

// Shutdown causes reported through OnLocalShutdown and OnRemoteShutdown.
const (
	// CauseNormal is an orderly shutdown requested by the remote side.
	CauseNormal = 0
	// CauseEOF means the remote side closed its stream.
	CauseEOF = 1
	// CauseReadError means the stream failed or carried an invalid frame.
	CauseReadError = 2
	// CauseClosed means the transport was closed locally.
	CauseClosed = 3
)

// Handler receives remote events. The engine implements it.
type Handler interface {
	OnConnection()
	OnReady()
	OnRunning()
	OnResultCode(code int, info string)
	OnResultMessage(msg *message.Message)
	OnFreeMessage(text string)
	OnException(text string)
	OnLocalShutdown(cause int)
	OnRemoteShutdown(cause int)
}
