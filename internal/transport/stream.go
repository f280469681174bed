package transport

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mattjoyce/drivelink/internal/message"
	"github.com/mattjoyce/drivelink/internal/protocol"
)

// Stream is a transport over a framed byte stream (subprocess pipes, a TCP
// connection). Frames are read on a dedicated goroutine started by Start.
type Stream struct {
	codec  protocol.Codec
	closer io.Closer
	logger *slog.Logger

	mu      sync.Mutex
	handler Handler

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// NewStream wraps codec. closer is closed by Close and may be nil.
func NewStream(codec protocol.Codec, closer io.Closer, logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stream{
		codec:  codec,
		closer: closer,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start launches the read loop delivering events to h. Calling Start more
// than once has no effect.
func (s *Stream) Start(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handler != nil {
		return
	}
	s.handler = h
	go s.readLoop(h)
}

// Done is closed when the read loop exits.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

func (s *Stream) readLoop(h Handler) {
	defer close(s.done)

	for {
		var f protocol.Frame
		if err := s.codec.Decode(&f); err != nil {
			if s.closed.Load() {
				return
			}
			if errors.Is(err, io.EOF) {
				s.logger.Info("remote engine closed the stream")
				h.OnRemoteShutdown(CauseEOF)
				return
			}
			s.logger.Error("failed to read frame", "error", err)
			h.OnRemoteShutdown(CauseReadError)
			return
		}

		s.logger.Debug("frame received", "type", f.Type)
		switch f.Type {
		case protocol.FrameConnection:
			h.OnConnection()
		case protocol.FrameReady:
			h.OnReady()
		case protocol.FrameRunning:
			h.OnRunning()
		case protocol.FrameResult:
			// A scalar result always reports code and info together; a frame
			// without info reports the empty string.
			info := ""
			if f.Info != nil {
				info = *f.Info
			}
			h.OnResultCode(f.Code, info)
		case protocol.FrameResultMessage:
			h.OnResultMessage(f.Message())
		case protocol.FrameMessage:
			h.OnFreeMessage(f.Text)
		case protocol.FrameException:
			h.OnException(f.Text)
		case protocol.FrameShutdown:
			h.OnRemoteShutdown(f.Cause)
			return
		default:
			s.logger.Warn("ignoring frame not meant for the controller", "type", f.Type)
		}
	}
}

func (s *Stream) send(f *protocol.Frame) bool {
	if s.closed.Load() {
		return false
	}
	if err := s.codec.Encode(f); err != nil {
		s.logger.Error("failed to send frame", "type", f.Type, "error", err)
		return false
	}
	return true
}

// SendDispatch sends a dispatch message.
func (s *Stream) SendDispatch(msg *message.Message) bool {
	return s.send(protocol.DispatchFrame(msg))
}

// SendDispatchFile asks the remote side to load a dispatch from path.
func (s *Stream) SendDispatchFile(path string) bool {
	f := protocol.NewFrame(protocol.FrameDispatchFile)
	f.Path = path
	return s.send(f)
}

// SendFreeMessage sends free-form text.
func (s *Stream) SendFreeMessage(text string) bool {
	f := protocol.NewFrame(protocol.FrameMessage)
	f.Text = text
	return s.send(f)
}

// SendShutdown asks the remote side to shut down.
func (s *Stream) SendShutdown() bool {
	return s.send(protocol.NewFrame(protocol.FrameShutdown))
}

// Close stops the transport. The handler given to Start, if any, is told
// about the local shutdown. Close is idempotent.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.closer != nil {
			err = s.closer.Close()
		}
		s.mu.Lock()
		h := s.handler
		s.mu.Unlock()
		if h != nil {
			h.OnLocalShutdown(CauseClosed)
		}
	})
	return err
}
