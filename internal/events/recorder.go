package events

import (
	"github.com/mattjoyce/drivelink/internal/listener"
	"github.com/mattjoyce/drivelink/internal/message"
)

// Recorder is an engine listener that publishes every phase transition to a
// Hub. It does not take debug text: registering a DebugSink stops debug
// output from reaching the logger, so that is opt-in through DebugSink.
type Recorder struct {
	hub *Hub
}

// NewRecorder returns a listener publishing to hub.
func NewRecorder(hub *Hub) *Recorder {
	return &Recorder{hub: hub}
}

// DebugSink returns a separate listener publishing debug text to the hub.
func (r *Recorder) DebugSink() listener.DebugSink {
	return debugRecorder{hub: r.hub}
}

type debugRecorder struct{ hub *Hub }

func (d debugRecorder) OnDebug(text string) {
	d.hub.Publish(TypeDebug, map[string]string{"text": text})
}

func (r *Recorder) OnConnection() { r.hub.Publish(TypeConnection, nil) }
func (r *Recorder) OnReady()      { r.hub.Publish(TypeReady, nil) }
func (r *Recorder) OnRunning()    { r.hub.Publish(TypeRunning, nil) }

func (r *Recorder) OnResultCode(code int, info string) {
	r.hub.Publish(TypeResult, map[string]any{"code": code, "info": info})
}

func (r *Recorder) OnResultMessage(msg *message.Message) {
	r.hub.Publish(TypeResultMessage, map[string]any{"result": msg})
}

func (r *Recorder) OnFreeMessage(text string) {
	r.hub.Publish(TypeMessage, map[string]string{"text": text})
}

func (r *Recorder) OnException(text string) {
	r.hub.Publish(TypeException, map[string]string{"text": text})
}

func (r *Recorder) OnLocalShutdown(cause int) {
	r.hub.Publish(TypeLocalShutdown, map[string]int{"cause": cause})
}

func (r *Recorder) OnRemoteShutdown(cause int) {
	r.hub.Publish(TypeRemoteShutdown, map[string]int{"cause": cause})
}
