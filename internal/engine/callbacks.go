package engine

import (
	"github.com/mattjoyce/drivelink/internal/message"
	"github.com/mattjoyce/drivelink/internal/transport"
)

var _ transport.Handler = (*Engine)(nil)

// update mutates the state record under the lock and wakes every waiter.
func (e *Engine) update(fn func(st *state)) {
	e.mu.Lock()
	fn(&e.st)
	e.cond.Broadcast()
	e.mu.Unlock()
}

// OnConnection records that the remote engine connected.
func (e *Engine) OnConnection() {
	e.update(func(st *state) { st.connected = true })
	e.listeners.Connection()
}

// OnReady records that the remote engine can take a dispatch.
func (e *Engine) OnReady() {
	e.update(func(st *state) { st.ready = true })
	e.listeners.Ready()
}

// OnRunning records that the dispatch is executing.
func (e *Engine) OnRunning() {
	e.update(func(st *state) { st.running = true })
	e.listeners.Running()
}

// OnResultCode records a scalar result.
func (e *Engine) OnResultCode(code int, info string) {
	e.update(func(st *state) {
		st.resultCode = code
		st.resultInfo = info
		st.hasInfo = true
		st.result = true
	})
	e.listeners.ResultCode(code, info)
}

// OnResultMessage records a structured result.
func (e *Engine) OnResultMessage(msg *message.Message) {
	stored := msg.Clone()
	e.update(func(st *state) {
		st.resultMessage = stored
		st.result = true
	})
	e.listeners.ResultMessage(msg)
}

// OnFreeMessage records free-form text from the remote side.
func (e *Engine) OnFreeMessage(text string) {
	e.update(func(st *state) {
		st.freeMessage = text
		st.message = true
	})
	e.listeners.FreeMessage(text)
}

// OnException records a remote failure. It aborts every pending wait until
// the next command resets the result state.
func (e *Engine) OnException(text string) {
	e.update(func(st *state) {
		st.exceptionText = text
		st.exception = true
	})
	e.listeners.Exception(text)
}

// OnLocalShutdown records that this side shut down. It is terminal.
func (e *Engine) OnLocalShutdown(cause int) {
	e.update(func(st *state) {
		st.shutdownCause = cause
		st.localShutdown = true
	})
	e.listeners.LocalShutdown(cause)
}

// OnRemoteShutdown records that the remote engine shut down. It is terminal.
func (e *Engine) OnRemoteShutdown(cause int) {
	e.update(func(st *state) {
		st.shutdownCause = cause
		st.remoteShutdown = true
	})
	e.listeners.RemoteShutdown(cause)
}
