// Package listener holds the observers notified on every engine phase
// transition.
//
// A listener is any comparable value (typically a pointer) implementing a
// subset of the hook interfaces below. Hooks a listener does not implement
// are never called for it. Delivery iterates a snapshot of the registry and
// runs each hook inside its own recover boundary, so one misbehaving listener
// cannot block the rest or reach engine state.
package listener

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"sync"

	"github.com/mattjoyce/drivelink/internal/message"
)

// Listener is an observer registered with a Registry.
type Listener any

// ErrNotComparable is returned by Add for listeners that cannot be registry
// keys, such as a Funcs value. Register a pointer instead.
var ErrNotComparable = errors.New("listener is not comparable")

// DebugSink receives free-form debug text.
type DebugSink interface {
	OnDebug(text string)
}

// ConnectionObserver is told when the remote engine connects.
type ConnectionObserver interface {
	OnConnection()
}

// ReadyObserver is told when the remote engine can accept a dispatch.
type ReadyObserver interface {
	OnReady()
}

// RunningObserver is told when a dispatch starts executing remotely.
type RunningObserver interface {
	OnRunning()
}

// ResultObserver receives scalar results.
type ResultObserver interface {
	OnResultCode(code int, info string)
}

// ResultMessageObserver receives structured results.
type ResultMessageObserver interface {
	OnResultMessage(msg *message.Message)
}

// FreeMessageObserver receives free-form messages from the remote side.
type FreeMessageObserver interface {
	OnFreeMessage(text string)
}

// ExceptionObserver receives remote exceptions.
type ExceptionObserver interface {
	OnException(text string)
}

// ShutdownObserver is told about local and remote shutdowns.
type ShutdownObserver interface {
	OnLocalShutdown(cause int)
	OnRemoteShutdown(cause int)
}

// Registry is an unordered set of listeners.
type Registry struct {
	mu        sync.RWMutex
	listeners map[Listener]struct{}

	logger *slog.Logger
	stderr io.Writer
}

// NewRegistry creates an empty registry. Debug text with no DebugSink
// registered falls back to logger, and to stderr when logger is nil.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		listeners: make(map[Listener]struct{}),
		logger:    logger,
		stderr:    os.Stderr,
	}
}

// Add registers l. Adding a listener twice, or adding nil, is a no-op.
// Listeners that cannot be compared are refused with ErrNotComparable.
func (r *Registry) Add(l Listener) error {
	if l == nil {
		return nil
	}
	if !hashable(l) {
		if r.logger != nil {
			r.logger.Warn("listener refused", "listener", fmt.Sprintf("%T", l), "error", ErrNotComparable)
		}
		return fmt.Errorf("%w: %T", ErrNotComparable, l)
	}
	r.mu.Lock()
	r.listeners[l] = struct{}{}
	r.mu.Unlock()
	return nil
}

// Remove unregisters l. Removing an absent listener is a no-op.
func (r *Registry) Remove(l Listener) {
	if l == nil || !hashable(l) {
		return
	}
	r.mu.Lock()
	delete(r.listeners, l)
	r.mu.Unlock()
}

// hashable reports whether l can be used as a map key without panicking.
// A struct holding an interface is only hashable if its dynamic values are,
// so the type check is followed by a guarded trial insert.
func hashable(l Listener) (ok bool) {
	if !reflect.TypeOf(l).Comparable() {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	_ = map[Listener]struct{}{l: {}}
	return true
}

// Len returns the number of registered listeners.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

func (r *Registry) snapshot() []Listener {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Listener, 0, len(r.listeners))
	for l := range r.listeners {
		out = append(out, l)
	}
	return out
}

// deliver runs fn for every listener, isolating panics per listener.
func (r *Registry) deliver(hook string, fn func(Listener)) {
	for _, l := range r.snapshot() {
		r.safeCall(hook, l, fn)
	}
}

func (r *Registry) safeCall(hook string, l Listener, fn func(Listener)) {
	defer func() {
		if rec := recover(); rec != nil && r.logger != nil {
			r.logger.Warn("listener panicked", "hook", hook, "listener", fmt.Sprintf("%T", l), "panic", rec)
		}
	}()
	fn(l)
}

// Debug delivers text to every DebugSink. Without any sink the text goes to
// the registry's logger, or to stderr as a last resort. It never fails.
func (r *Registry) Debug(text string) {
	delivered := false
	for _, l := range r.snapshot() {
		if sink, ok := l.(DebugSink); ok {
			delivered = true
			r.safeCall("OnDebug", l, func(Listener) { sink.OnDebug(text) })
		}
	}
	if delivered {
		return
	}
	if r.logger != nil {
		r.logger.Debug(text)
		return
	}
	_, _ = fmt.Fprintln(r.stderr, text)
}

// Connection notifies every ConnectionObserver.
func (r *Registry) Connection() {
	r.deliver("OnConnection", func(l Listener) {
		if o, ok := l.(ConnectionObserver); ok {
			o.OnConnection()
		}
	})
}

// Ready notifies every ReadyObserver.
func (r *Registry) Ready() {
	r.deliver("OnReady", func(l Listener) {
		if o, ok := l.(ReadyObserver); ok {
			o.OnReady()
		}
	})
}

// Running notifies every RunningObserver.
func (r *Registry) Running() {
	r.deliver("OnRunning", func(l Listener) {
		if o, ok := l.(RunningObserver); ok {
			o.OnRunning()
		}
	})
}

// ResultCode notifies every ResultObserver.
func (r *Registry) ResultCode(code int, info string) {
	r.deliver("OnResultCode", func(l Listener) {
		if o, ok := l.(ResultObserver); ok {
			o.OnResultCode(code, info)
		}
	})
}

// ResultMessage notifies every ResultMessageObserver. Each listener gets its
// own copy of msg.
func (r *Registry) ResultMessage(msg *message.Message) {
	r.deliver("OnResultMessage", func(l Listener) {
		if o, ok := l.(ResultMessageObserver); ok {
			o.OnResultMessage(msg.Clone())
		}
	})
}

// FreeMessage notifies every FreeMessageObserver.
func (r *Registry) FreeMessage(text string) {
	r.deliver("OnFreeMessage", func(l Listener) {
		if o, ok := l.(FreeMessageObserver); ok {
			o.OnFreeMessage(text)
		}
	})
}

// Exception notifies every ExceptionObserver.
func (r *Registry) Exception(text string) {
	r.deliver("OnException", func(l Listener) {
		if o, ok := l.(ExceptionObserver); ok {
			o.OnException(text)
		}
	})
}

// LocalShutdown notifies every ShutdownObserver.
func (r *Registry) LocalShutdown(cause int) {
	r.deliver("OnLocalShutdown", func(l Listener) {
		if o, ok := l.(ShutdownObserver); ok {
			o.OnLocalShutdown(cause)
		}
	})
}

// RemoteShutdown notifies every ShutdownObserver.
func (r *Registry) RemoteShutdown(cause int) {
	r.deliver("OnRemoteShutdown", func(l Listener) {
		if o, ok := l.(ShutdownObserver); ok {
			o.OnRemoteShutdown(cause)
		}
	})
}
