package transport

import (
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/drivelink/internal/message"
	"github.com/mattjoyce/drivelink/internal/protocol"
)

type recorder struct {
	mu     sync.Mutex
	events []string
	signal chan struct{}
}

func newRecorder() *recorder {
	return &recorder{signal: make(chan struct{}, 64)}
}

func (r *recorder) add(ev string) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.signal <- struct{}{}
}

func (r *recorder) waitFor(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		r.mu.Lock()
		if len(r.events) >= n {
			out := append([]string(nil), r.events...)
			r.mu.Unlock()
			return out
		}
		r.mu.Unlock()
		select {
		case <-r.signal:
		case <-deadline:
			t.Fatalf("timed out waiting for %d events, have %v", n, r.events)
		}
	}
}

func (r *recorder) OnConnection() { r.add("connection") }
func (r *recorder) OnReady()      { r.add("ready") }
func (r *recorder) OnRunning()    { r.add("running") }
func (r *recorder) OnResultCode(code int, info string) {
	r.add(fmt.Sprintf("result:%d:%s", code, info))
}
func (r *recorder) OnResultMessage(msg *message.Message) { r.add("result_message:" + msg.String()) }
func (r *recorder) OnFreeMessage(text string)            { r.add("message:" + text) }
func (r *recorder) OnException(text string)              { r.add("exception:" + text) }
func (r *recorder) OnLocalShutdown(cause int)            { r.add(fmt.Sprintf("local_shutdown:%d", cause)) }
func (r *recorder) OnRemoteShutdown(cause int)           { r.add(fmt.Sprintf("remote_shutdown:%d", cause)) }

// pipePair returns a controller-side stream and the remote ends of its pipes.
func pipePair(t *testing.T, format string) (*Stream, protocol.Codec, *io.PipeWriter, *io.PipeReader) {
	t.Helper()
	toCtlR, toCtlW := io.Pipe()
	toRemoteR, toRemoteW := io.Pipe()

	ctlCodec, err := protocol.NewCodec(format, toCtlR, toRemoteW)
	require.NoError(t, err)
	remoteCodec, err := protocol.NewCodec(format, toRemoteR, toCtlW)
	require.NoError(t, err)

	s := NewStream(ctlCodec, toCtlR, nil)
	t.Cleanup(func() {
		_ = toCtlW.Close()
		_ = toRemoteR.Close()
	})
	return s, remoteCodec, toCtlW, toRemoteR
}

func TestStreamDeliversRemoteEvents(t *testing.T) {
	for _, format := range []string{protocol.FormatJSON, protocol.FormatCBOR} {
		t.Run(format, func(t *testing.T) {
			s, remote, _, _ := pipePair(t, format)
			rec := newRecorder()
			s.Start(rec)

			exc := protocol.NewFrame(protocol.FrameException)
			exc.Text = "no such window"
			msg := protocol.NewFrame(protocol.FrameMessage)
			msg.Text = "hello"
			frames := []*protocol.Frame{
				protocol.NewFrame(protocol.FrameConnection),
				protocol.NewFrame(protocol.FrameReady),
				protocol.NewFrame(protocol.FrameRunning),
				protocol.ResultFrame(0, "pong"),
				protocol.ResultMessageFrame(message.Of("resultCode", "5")),
				msg,
				exc,
				{Protocol: protocol.Version, Type: protocol.FrameShutdown, Cause: 7},
			}
			go func() {
				for _, f := range frames {
					_ = remote.Encode(f)
				}
			}()

			got := rec.waitFor(t, len(frames))
			assert.Equal(t, []string{
				"connection",
				"ready",
				"running",
				"result:0:pong",
				`result_message:{resultCode="5"}`,
				"message:hello",
				"exception:no such window",
				"remote_shutdown:7",
			}, got)

			select {
			case <-s.Done():
			case <-time.After(2 * time.Second):
				t.Fatal("read loop did not stop after remote shutdown")
			}
		})
	}
}

func TestStreamSendsFrames(t *testing.T) {
	s, remote, _, _ := pipePair(t, protocol.FormatJSON)

	received := make(chan protocol.Frame, 4)
	go func() {
		for {
			var f protocol.Frame
			if err := remote.Decode(&f); err != nil {
				return
			}
			received <- f
		}
	}()

	assert.True(t, s.SendDispatch(message.Of("command", "ping")))
	assert.True(t, s.SendDispatchFile("/tmp/cmd.yaml"))
	assert.True(t, s.SendFreeMessage("note"))
	assert.True(t, s.SendShutdown())

	want := []protocol.FrameType{
		protocol.FrameDispatch,
		protocol.FrameDispatchFile,
		protocol.FrameMessage,
		protocol.FrameShutdown,
	}
	for _, typ := range want {
		select {
		case f := <-received:
			assert.Equal(t, typ, f.Type)
		case <-time.After(2 * time.Second):
			t.Fatalf("frame %s not received", typ)
		}
	}
}

func TestStreamRemoteEOF(t *testing.T) {
	s, _, toCtlW, _ := pipePair(t, protocol.FormatJSON)
	rec := newRecorder()
	s.Start(rec)

	require.NoError(t, toCtlW.Close())
	assert.Equal(t, []string{"remote_shutdown:1"}, rec.waitFor(t, 1))
}

func TestStreamResultWithoutInfo(t *testing.T) {
	s, remote, _, _ := pipePair(t, protocol.FormatJSON)
	rec := newRecorder()
	s.Start(rec)

	go func() { _ = remote.Encode(&protocol.Frame{Protocol: protocol.Version, Type: protocol.FrameResult, Code: 3}) }()
	assert.Equal(t, []string{"result:3:"}, rec.waitFor(t, 1))
}

func TestStreamInvalidFrame(t *testing.T) {
	s, _, toCtlW, _ := pipePair(t, protocol.FormatJSON)
	rec := newRecorder()
	s.Start(rec)

	go func() { _, _ = toCtlW.Write([]byte("{\"protocol\":9,\"type\":\"ready\"}\n")) }()
	assert.Equal(t, []string{"remote_shutdown:2"}, rec.waitFor(t, 1))
}

func TestStreamCloseIsLocalShutdown(t *testing.T) {
	s, _, _, _ := pipePair(t, protocol.FormatJSON)
	rec := newRecorder()
	s.Start(rec)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, []string{"local_shutdown:3"}, rec.waitFor(t, 1))
	assert.False(t, s.SendFreeMessage("after close"))

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not stop after close")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Len(t, rec.events, 1, "closing must not also report a remote shutdown")
}
