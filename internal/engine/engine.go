package engine

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattjoyce/drivelink/internal/listener"
	"github.com/mattjoyce/drivelink/internal/log"
	"github.com/mattjoyce/drivelink/internal/message"
)

// state is the record shared between callers and transport callbacks.
// Every field is guarded by Engine.mu.
type state struct {
	connected      bool
	ready          bool
	running        bool
	result         bool
	message        bool
	exception      bool
	localShutdown  bool
	remoteShutdown bool

	resultCode    int
	resultInfo    string
	hasInfo       bool
	resultMessage *message.Message
	freeMessage   string
	shutdownCause int
	exceptionText string

	stage Stage
}

// Engine is the synchronization core between callers and one transport.
type Engine struct {
	transport     Transport
	listeners     *listener.Registry
	logger        *slog.Logger
	maxExtensions int

	mu   sync.Mutex
	cond *sync.Cond
	st   state
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithListeners uses r instead of a fresh registry.
func WithListeners(r *listener.Registry) Option {
	return func(e *Engine) { e.listeners = r }
}

// WithMaxTimeoutExtensions caps how many changeTimeout extensions one command
// may use. Zero or less means no cap.
func WithMaxTimeoutExtensions(n int) Option {
	return func(e *Engine) { e.maxExtensions = n }
}

// New creates an engine that sends through t. The engine is also the
// transport.Handler that t must report events to.
func New(t Transport, opts ...Option) *Engine {
	e := &Engine{transport: t}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = log.WithComponent("engine")
	}
	if e.listeners == nil {
		e.listeners = listener.NewRegistry(e.logger)
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Listeners returns the registry notified on every event.
func (e *Engine) Listeners() *listener.Registry { return e.listeners }

// AddListener registers l. See package listener for the hooks.
func (e *Engine) AddListener(l listener.Listener) error { return e.listeners.Add(l) }

// RemoveListener unregisters l.
func (e *Engine) RemoveListener(l listener.Listener) { e.listeners.Remove(l) }

// Connected reports whether the remote engine has ever connected.
func (e *Engine) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st.connected
}

// Stage reports where the most recent command stands.
func (e *Engine) Stage() Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st.stage
}

// LastFreeMessage returns the most recent free-form message from the remote
// side since the last command started.
func (e *Engine) LastFreeMessage() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st.freeMessage, e.st.message
}

// ShutdownCause returns the cause of the latest shutdown, local or remote.
func (e *Engine) ShutdownCause() (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st.shutdownCause, e.st.localShutdown || e.st.remoteShutdown
}

func (e *Engine) setStage(s Stage) {
	e.mu.Lock()
	e.st.stage = s
	e.mu.Unlock()
}

// fail records the stage err ends the command in and returns err.
func (e *Engine) fail(err error) error {
	e.mu.Lock()
	e.st.stage = stageFor(err, e.st.stage)
	e.mu.Unlock()
	return err
}

func (e *Engine) wake() {
	e.mu.Lock()
	e.cond.Broadcast()
	e.mu.Unlock()
}

// resetResultState clears everything a previous command left behind.
// ready, connected and the shutdown flags are kept.
func (e *Engine) resetResultState() {
	e.mu.Lock()
	e.st.result = false
	e.st.running = false
	e.st.resultCode = 0
	e.st.resultInfo = ""
	e.st.hasInfo = false
	e.st.resultMessage = nil
	e.st.exception = false
	e.st.exceptionText = ""
	e.st.message = false
	e.st.freeMessage = ""
	e.cond.Broadcast()
	e.mu.Unlock()
}

// abortLocked returns the abort error for phase, if any. Local shutdown wins
// over remote shutdown, which wins over a remote exception.
func (e *Engine) abortLocked(phase Phase) error {
	switch {
	case e.st.localShutdown:
		return &WaitError{Phase: phase, Err: ErrLocalShutdown, Cause: e.st.shutdownCause}
	case e.st.remoteShutdown:
		return &WaitError{Phase: phase, Err: ErrRemoteShutdown, Cause: e.st.shutdownCause}
	case e.st.exception:
		return &WaitError{Phase: phase, Err: ErrRemoteException, Text: e.st.exceptionText}
	}
	return nil
}

// await blocks until done holds, an abort flag is set, or timeout passes.
// A timeout below one second returns nil at once without checking anything.
// done is called with e.mu held; onDone also runs under the lock.
func (e *Engine) await(phase Phase, timeout time.Duration, done func() bool, onDone func()) error {
	if timeout < time.Second {
		return nil
	}

	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, e.wake)
	defer timer.Stop()

	e.mu.Lock()
	defer e.mu.Unlock()
	for {
		if phase == PhaseShutdown && done() {
			return nil
		}
		if err := e.abortLocked(phase); err != nil {
			return err
		}
		if done() {
			if onDone != nil {
				onDone()
			}
			return nil
		}
		if !time.Now().Before(deadline) {
			return &WaitError{Phase: phase, Err: ErrTimedOut, Timeout: timeout}
		}
		e.cond.Wait()
	}
}

// WaitForReady blocks until the remote engine is ready for a dispatch. On
// success the ready signal is consumed: it authorizes exactly one dispatch.
func (e *Engine) WaitForReady(timeout time.Duration) error {
	return e.await(PhaseReady, timeout,
		func() bool { return e.st.ready },
		func() { e.st.ready = false })
}

// WaitForRunning blocks until the dispatch runs remotely. A result arriving
// first also ends the wait.
func (e *Engine) WaitForRunning(timeout time.Duration) error {
	return e.await(PhaseRunning, timeout,
		func() bool { return e.st.running || e.st.result }, nil)
}

// WaitForResult blocks until a result arrives.
func (e *Engine) WaitForResult(timeout time.Duration) error {
	return e.await(PhaseResult, timeout,
		func() bool { return e.st.result }, nil)
}

// WaitForShutdown blocks until either side shuts down. Shutdown is the
// awaited outcome here, so only a remote exception or the deadline fail it.
func (e *Engine) WaitForShutdown(timeout time.Duration) error {
	return e.await(PhaseShutdown, timeout,
		func() bool { return e.st.localShutdown || e.st.remoteShutdown }, nil)
}

// PerformCommand sends msg once the remote engine is ready and returns the
// consolidated result.
func (e *Engine) PerformCommand(msg *message.Message, ready, running, result time.Duration) (*message.Message, error) {
	return e.perform("dispatch", msg.Command(), func() bool {
		return e.transport.SendDispatch(msg)
	}, ready, running, result)
}

// PerformFileCommand asks the remote engine to run the dispatch stored at
// path and returns the consolidated result.
func (e *Engine) PerformFileCommand(path string, ready, running, result time.Duration) (*message.Message, error) {
	return e.perform("dispatch_file", path, func() bool {
		return e.transport.SendDispatchFile(path)
	}, ready, running, result)
}

func (e *Engine) perform(op, what string, send func() bool, ready, running, result time.Duration) (*message.Message, error) {
	e.resetResultState()

	e.setStage(StageAwaitingReady)
	e.listeners.Debug(fmt.Sprintf("waiting for ready: %s", what))
	if err := e.WaitForReady(ready); err != nil {
		return nil, e.fail(err)
	}

	if !send() {
		e.setStage(StageIdle)
		e.logger.Error("transport refused request", "op", op, "command", what)
		return nil, &SendError{Op: op}
	}
	e.setStage(StageDispatched)
	e.listeners.Debug(fmt.Sprintf("dispatched: %s", what))

	e.setStage(StageAwaitingRunning)
	if err := e.WaitForRunning(running); err != nil {
		return nil, e.fail(err)
	}

	e.setStage(StageAwaitingResult)
	res, err := e.awaitResult(what, result)
	if err != nil {
		return nil, e.fail(err)
	}
	e.setStage(StageCompleted)
	return res, nil
}

// awaitResult waits for a result and follows changeTimeout extensions.
func (e *Engine) awaitResult(what string, timeout time.Duration) (*message.Message, error) {
	wait := timeout
	extensions := 0
	for {
		if err := e.WaitForResult(wait); err != nil {
			return nil, err
		}

		res := e.consolidateResult()
		raw, ok := res.Get(message.KeyChangeTimeout)
		if !ok {
			return res, nil
		}

		if e.maxExtensions > 0 && extensions >= e.maxExtensions {
			e.logger.Warn("timeout extension refused", "command", what, "limit", e.maxExtensions)
			return nil, &WaitError{Phase: PhaseResult, Err: ErrExtensionLimit}
		}
		extensions++

		seconds, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || seconds <= 0 {
			e.logger.Warn("malformed changeTimeout, waiting again with the original timeout",
				"command", what, "value", raw)
			wait = timeout
		} else {
			e.logger.Info("timeout extension", "command", what, "seconds", seconds)
			wait = time.Duration(seconds) * time.Second
		}

		e.resetResultState()
		e.listeners.Debug(fmt.Sprintf("result wait extended to %s: %s", wait, what))
	}
}

// consolidateResult builds the Message returned to the caller from the
// current result fields.
func (e *Engine) consolidateResult() *message.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return consolidate(e.st.resultMessage, e.st.resultCode, e.st.resultInfo, e.st.hasInfo)
}

// consolidate starts from the structured result when there is one and only
// fills in keys the remote side did not supply.
func consolidate(base *message.Message, code int, info string, hasInfo bool) *message.Message {
	res := base.Clone()
	if !res.Has(message.KeyIsRemoteResult) {
		res.SetBool(message.KeyIsRemoteResult, true)
	}
	if !res.Has(message.KeyResultCode) {
		res.SetInt(message.KeyResultCode, code)
	}
	if hasInfo && !res.Has(message.KeyResultInfo) {
		res.Set(message.KeyResultInfo, info)
	}
	return res
}

// PerformFreeMessage sends text without waiting for anything.
func (e *Engine) PerformFreeMessage(text string) error {
	if !e.transport.SendFreeMessage(text) {
		e.logger.Error("transport refused request", "op", "message")
		return &SendError{Op: "message"}
	}
	return nil
}

// PerformShutdown asks the remote engine to shut down. It fails only if the
// request could not be sent; problems while waiting for the confirmation
// are logged and ignored.
func (e *Engine) PerformShutdown(ready, running, shutdown time.Duration) error {
	e.resetResultState()

	e.setStage(StageAwaitingReady)
	if err := e.WaitForReady(ready); err != nil {
		return e.fail(err)
	}
	if !e.transport.SendShutdown() {
		e.setStage(StageIdle)
		e.logger.Error("transport refused request", "op", "shutdown")
		return &SendError{Op: "shutdown"}
	}
	e.setStage(StageDispatched)

	if err := e.WaitForRunning(running); err != nil {
		e.logger.Info("shutdown not confirmed as running", "error", err)
	}
	if err := e.WaitForShutdown(shutdown); err != nil {
		e.logger.Info("shutdown not confirmed", "error", err)
	}
	e.setStage(e.shutdownStage())
	return nil
}

func (e *Engine) shutdownStage() Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.st.localShutdown:
		return StageLocalShutdown
	case e.st.remoteShutdown:
		return StageRemoteShutdown
	default:
		return StageCompleted
	}
}
