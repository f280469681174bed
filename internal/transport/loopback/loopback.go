// Package loopback runs a remote engine behaviour in-process, using channels
// instead of a byte stream. It is used for tests, demos and the "loopback"
// remote mode.
package loopback

import (
	"sync"

	"github.com/mattjoyce/drivelink/internal/message"
	"github.com/mattjoyce/drivelink/internal/remote"
	"github.com/mattjoyce/drivelink/internal/transport"
)

const queueSize = 128

// Loopback connects a controller to a remote.Behavior in the same process.
// Requests run one at a time on a remote goroutine; events reach the handler
// one at a time on a delivery goroutine.
type Loopback struct {
	behavior remote.Behavior

	mu       sync.Mutex
	handler  transport.Handler
	closed   bool
	gone     bool // the behaviour finished its shutdown
	requests chan func(remote.Emitter)
	events   chan func(transport.Handler)
	stop     chan struct{}
	busy     sync.WaitGroup
	drained  chan struct{} // closed when the delivery goroutine exits
}

// New creates a loopback around b.
func New(b remote.Behavior) *Loopback {
	return &Loopback{
		behavior: b,
		requests: make(chan func(remote.Emitter), queueSize),
		events:   make(chan func(transport.Handler), queueSize),
		stop:     make(chan struct{}),
		drained:  make(chan struct{}),
	}
}

// Start begins running the behaviour and delivering its events to h.
// Calling Start more than once has no effect.
func (l *Loopback) Start(h transport.Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handler != nil || l.closed {
		return
	}
	l.handler = h

	l.busy.Add(1)
	go l.deliverLoop(h)
	go l.remoteLoop()
}

func (l *Loopback) remoteLoop() {
	defer l.busy.Done()
	e := &emitter{l: l}
	l.behavior.Start(e)
	for {
		select {
		case <-l.stop:
			return
		case req := <-l.requests:
			req(e)
			if e.shutdown {
				l.mu.Lock()
				l.gone = true
				l.mu.Unlock()
				return
			}
		}
	}
}

func (l *Loopback) deliverLoop(h transport.Handler) {
	defer close(l.drained)
	for {
		select {
		case <-l.stop:
			return
		case ev := <-l.events:
			ev(h)
		}
	}
}

func (l *Loopback) request(fn func(remote.Emitter)) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handler == nil || l.closed || l.gone {
		return false
	}
	select {
	case l.requests <- fn:
		return true
	default:
		return false
	}
}

// SendDispatch implements engine.Transport.
func (l *Loopback) SendDispatch(msg *message.Message) bool {
	msg = msg.Clone()
	return l.request(func(e remote.Emitter) { l.behavior.HandleDispatch(e, msg) })
}

// SendDispatchFile implements engine.Transport.
func (l *Loopback) SendDispatchFile(path string) bool {
	return l.request(func(e remote.Emitter) { l.behavior.HandleDispatchFile(e, path) })
}

// SendFreeMessage implements engine.Transport.
func (l *Loopback) SendFreeMessage(text string) bool {
	return l.request(func(e remote.Emitter) { l.behavior.HandleMessage(e, text) })
}

// SendShutdown implements engine.Transport.
func (l *Loopback) SendShutdown() bool {
	return l.request(func(e remote.Emitter) {
		if l.behavior.HandleShutdown(e) {
			e.(*emitter).shutdown = true
		}
	})
}

// Close stops event delivery, reports a local shutdown to the handler, and
// then waits for the behaviour to finish its current request.
func (l *Loopback) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	h := l.handler
	close(l.stop)
	l.mu.Unlock()

	if h == nil {
		return nil
	}
	<-l.drained
	h.OnLocalShutdown(transport.CauseClosed)
	l.busy.Wait()
	return nil
}

func (l *Loopback) emit(fn func(transport.Handler)) {
	select {
	case l.events <- fn:
	case <-l.stop:
	}
}

type emitter struct {
	l        *Loopback
	shutdown bool
}

func (e *emitter) Connection() { e.l.emit(func(h transport.Handler) { h.OnConnection() }) }
func (e *emitter) Ready()      { e.l.emit(func(h transport.Handler) { h.OnReady() }) }
func (e *emitter) Running()    { e.l.emit(func(h transport.Handler) { h.OnRunning() }) }

func (e *emitter) Result(code int, info string) {
	e.l.emit(func(h transport.Handler) { h.OnResultCode(code, info) })
}

func (e *emitter) ResultMessage(msg *message.Message) {
	msg = msg.Clone()
	e.l.emit(func(h transport.Handler) { h.OnResultMessage(msg) })
}

func (e *emitter) Message(text string) {
	e.l.emit(func(h transport.Handler) { h.OnFreeMessage(text) })
}

func (e *emitter) Exception(text string) {
	e.l.emit(func(h transport.Handler) { h.OnException(text) })
}

func (e *emitter) Shutdown(cause int) {
	e.l.emit(func(h transport.Handler) { h.OnRemoteShutdown(cause) })
}
