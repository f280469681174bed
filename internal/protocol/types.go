package protocol

import (
	"fmt"

	"github.com/mattjoyce/drivelink/internal/message"
)

// Version is the only wire protocol version spoken.
const Version = 1

// FrameType names a frame on the wire.
type FrameType string

// Controller → remote engine.
const (
	FrameDispatch     FrameType = "dispatch"
	FrameDispatchFile FrameType = "dispatch_file"
	FrameShutdown     FrameType = "shutdown" // also sent by the remote to confirm or initiate
)

// Remote engine → controller.
const (
	FrameConnection    FrameType = "connection"
	FrameReady         FrameType = "ready"
	FrameRunning       FrameType = "running"
	FrameResult        FrameType = "result"
	FrameResultMessage FrameType = "result_message"
	FrameException     FrameType = "exception"
)

// FrameMessage carries free-form text in either direction.
const FrameMessage FrameType = "message"

// Frame is the envelope for every message on the wire.
type Frame struct {
	Protocol   int                `json:"protocol" cbor:"protocol"`
	Type       FrameType          `json:"type" cbor:"type"`
	Properties []message.Property `json:"properties,omitempty" cbor:"properties,omitempty"`
	Path       string             `json:"path,omitempty" cbor:"path,omitempty"`
	Text       string             `json:"text,omitempty" cbor:"text,omitempty"`
	Code       int                `json:"code,omitempty" cbor:"code,omitempty"`
	Info       *string            `json:"info,omitempty" cbor:"info,omitempty"`
	Cause      int                `json:"cause,omitempty" cbor:"cause,omitempty"`
}

// NewFrame returns a frame of the given type stamped with the protocol version.
func NewFrame(t FrameType) *Frame {
	return &Frame{Protocol: Version, Type: t}
}

// DispatchFrame wraps a dispatch message.
func DispatchFrame(msg *message.Message) *Frame {
	f := NewFrame(FrameDispatch)
	f.Properties = msg.Properties()
	return f
}

// ResultFrame builds a scalar result.
func ResultFrame(code int, info string) *Frame {
	f := NewFrame(FrameResult)
	f.Code = code
	f.Info = &info
	return f
}

// ResultMessageFrame wraps a structured result.
func ResultMessageFrame(msg *message.Message) *Frame {
	f := NewFrame(FrameResultMessage)
	f.Properties = msg.Properties()
	return f
}

// Message returns the frame's properties as a Message.
func (f *Frame) Message() *message.Message {
	return message.FromProperties(f.Properties)
}

// Validate checks the protocol version, the frame type, and the field each
// type requires.
func (f *Frame) Validate() error {
	if f.Protocol != Version {
		return fmt.Errorf("unsupported protocol version: %d", f.Protocol)
	}
	switch f.Type {
	case FrameDispatch, FrameResultMessage:
		if len(f.Properties) == 0 {
			return fmt.Errorf("%s frame has no properties", f.Type)
		}
	case FrameDispatchFile:
		if f.Path == "" {
			return fmt.Errorf("dispatch_file frame has no path")
		}
	case FrameException:
		if f.Text == "" {
			return fmt.Errorf("exception frame has no text")
		}
	case FrameMessage, FrameShutdown, FrameConnection, FrameReady, FrameRunning, FrameResult:
	case "":
		return fmt.Errorf("frame missing required field: type")
	default:
		return fmt.Errorf("unknown frame type: %q", f.Type)
	}
	return nil
}
