// Package remote is the automation-engine side of the wire protocol. It lets
// a Go program act as the remote engine a controller drives, either over a
// framed stream (Serve) or in-process (see transport/loopback).
package remote

import (
	"errors"
	"fmt"
	"io"

	"github.com/mattjoyce/drivelink/internal/message"
	"github.com/mattjoyce/drivelink/internal/protocol"
)

// Emitter sends events to the controller.
type Emitter interface {
	Connection()
	Ready()
	Running()
	Result(code int, info string)
	ResultMessage(msg *message.Message)
	Message(text string)
	Exception(text string)
	Shutdown(cause int)
}

// Behavior is what a remote engine does with controller requests.
// Handlers run one at a time on the engine's receive goroutine.
type Behavior interface {
	Start(e Emitter)
	HandleDispatch(e Emitter, msg *message.Message)
	HandleDispatchFile(e Emitter, path string)
	HandleMessage(e Emitter, text string)
	// HandleShutdown returns true when the engine should stop serving.
	HandleShutdown(e Emitter) bool
}

// codecEmitter writes events as frames. Write errors are kept for Serve.
type codecEmitter struct {
	codec protocol.Codec
	err   error
}

func (c *codecEmitter) emit(f *protocol.Frame) {
	if c.err != nil {
		return
	}
	c.err = c.codec.Encode(f)
}

func (c *codecEmitter) Connection() { c.emit(protocol.NewFrame(protocol.FrameConnection)) }
func (c *codecEmitter) Ready()      { c.emit(protocol.NewFrame(protocol.FrameReady)) }
func (c *codecEmitter) Running()    { c.emit(protocol.NewFrame(protocol.FrameRunning)) }

func (c *codecEmitter) Result(code int, info string) {
	c.emit(protocol.ResultFrame(code, info))
}

func (c *codecEmitter) ResultMessage(msg *message.Message) {
	c.emit(protocol.ResultMessageFrame(msg))
}

func (c *codecEmitter) Message(text string) {
	f := protocol.NewFrame(protocol.FrameMessage)
	f.Text = text
	c.emit(f)
}

func (c *codecEmitter) Exception(text string) {
	f := protocol.NewFrame(protocol.FrameException)
	f.Text = text
	c.emit(f)
}

func (c *codecEmitter) Shutdown(cause int) {
	f := protocol.NewFrame(protocol.FrameShutdown)
	f.Cause = cause
	c.emit(f)
}

// Serve runs b against a controller on the other end of codec until the
// controller asks for shutdown or closes the stream.
func Serve(codec protocol.Codec, b Behavior) error {
	e := &codecEmitter{codec: codec}
	b.Start(e)

	for e.err == nil {
		var f protocol.Frame
		if err := codec.Decode(&f); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read controller frame: %w", err)
		}

		switch f.Type {
		case protocol.FrameDispatch:
			b.HandleDispatch(e, f.Message())
		case protocol.FrameDispatchFile:
			b.HandleDispatchFile(e, f.Path)
		case protocol.FrameMessage:
			b.HandleMessage(e, f.Text)
		case protocol.FrameShutdown:
			if b.HandleShutdown(e) {
				return e.err
			}
		default:
			return fmt.Errorf("unexpected frame from controller: %s", f.Type)
		}
	}
	return fmt.Errorf("write event frame: %w", e.err)
}
