package remote

import (
	"strconv"
	"time"

	"github.com/mattjoyce/drivelink/internal/message"
	"github.com/mattjoyce/drivelink/internal/transport"
)

// Echo is a reference remote engine used by the loopback transport, the
// echo-engine plugin and tests. It understands a few demo commands:
//
//	fail        result code from "code" (default 1), info from "text"
//	exception   raises a remote exception with "text"
//	extend      asks for a timeout extension of "seconds" (default 2), then
//	            answers after "delay_ms" (default 200, at least 50). The
//	            controller clears its result state before waiting again, so
//	            an answer sent sooner could be lost.
//	properties  answers with a structured result echoing the dispatch
//	sleep       answers after "ms" milliseconds
//
// Anything else succeeds with the "text" parameter, or the command name, as
// result info. After every command Echo signals ready again.
type Echo struct{}

// minExtendDelayMS is the least time extend leaves the controller to re-enter
// its result wait.
const minExtendDelayMS = 50

func (Echo) Start(e Emitter) {
	e.Connection()
	e.Ready()
}

func (Echo) HandleDispatch(e Emitter, msg *message.Message) {
	e.Running()
	defer e.Ready()

	text := msg.Value("text")
	switch msg.Command() {
	case "fail":
		code, err := msg.Int("code")
		if err != nil {
			code = 1
		}
		e.Result(code, text)
	case "exception":
		if text == "" {
			text = "remote exception"
		}
		e.Exception(text)
	case "extend":
		seconds := intParam(msg, "seconds", 2)
		ext := message.New()
		ext.SetInt(message.KeyChangeTimeout, seconds)
		e.ResultMessage(ext)
		delay := max(intParam(msg, "delay_ms", 200), minExtendDelayMS)
		time.Sleep(time.Duration(delay) * time.Millisecond)
		e.Result(0, "extended")
	case "properties":
		res := msg.Clone()
		res.SetInt(message.KeyResultCode, 0)
		e.ResultMessage(res)
	case "sleep":
		time.Sleep(time.Duration(intParam(msg, "ms", 0)) * time.Millisecond)
		e.Result(0, "slept")
	default:
		if text == "" {
			text = msg.Command()
		}
		e.Result(0, text)
	}
}

func (b Echo) HandleDispatchFile(e Emitter, path string) {
	msg, err := message.LoadYAML(path)
	if err != nil {
		e.Running()
		e.Result(-1, err.Error())
		e.Ready()
		return
	}
	b.HandleDispatch(e, msg)
}

func (Echo) HandleMessage(e Emitter, text string) {
	e.Message("echo: " + text)
}

func (Echo) HandleShutdown(e Emitter) bool {
	e.Running()
	e.Shutdown(transport.CauseNormal)
	return true
}

func intParam(msg *message.Message, key string, def int) int {
	v, ok := msg.Get(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
