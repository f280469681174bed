package listener

import "github.com/mattjoyce/drivelink/internal/message"

// Funcs adapts closures to the observer interfaces. Nil fields are skipped.
// Register a *Funcs; the pointer is what Add and Remove compare.
type Funcs struct {
	Connection     func()
	Ready          func()
	Running        func()
	ResultCode     func(code int, info string)
	ResultMessage  func(msg *message.Message)
	FreeMessage    func(text string)
	Exception      func(text string)
	LocalShutdown  func(cause int)
	RemoteShutdown func(cause int)
}

func (f *Funcs) OnConnection() {
	if f.Connection != nil {
		f.Connection()
	}
}

func (f *Funcs) OnReady() {
	if f.Ready != nil {
		f.Ready()
	}
}

func (f *Funcs) OnRunning() {
	if f.Running != nil {
		f.Running()
	}
}

func (f *Funcs) OnResultCode(code int, info string) {
	if f.ResultCode != nil {
		f.ResultCode(code, info)
	}
}

func (f *Funcs) OnResultMessage(msg *message.Message) {
	if f.ResultMessage != nil {
		f.ResultMessage(msg)
	}
}

func (f *Funcs) OnFreeMessage(text string) {
	if f.FreeMessage != nil {
		f.FreeMessage(text)
	}
}

func (f *Funcs) OnException(text string) {
	if f.Exception != nil {
		f.Exception(text)
	}
}

func (f *Funcs) OnLocalShutdown(cause int) {
	if f.LocalShutdown != nil {
		f.LocalShutdown(cause)
	}
}

func (f *Funcs) OnRemoteShutdown(cause int) {
	if f.RemoteShutdown != nil {
		f.RemoteShutdown(cause)
	}
}

// DebugFunc adapts a function to DebugSink. Register a *DebugFunc.
type DebugFunc func(text string)

func (f *DebugFunc) OnDebug(text string) { (*f)(text) }
