package loopback

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/drivelink/internal/message"
	"github.com/mattjoyce/drivelink/internal/remote"
	"github.com/mattjoyce/drivelink/internal/transport"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(ev string) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) waitFor(t *testing.T, n int) []string {
	t.Helper()
	require.Eventually(t, func() bool { return len(r.snapshot()) >= n }, 2*time.Second, 5*time.Millisecond)
	return r.snapshot()
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

var _ transport.Handler = (*recorder)(nil)

func TestLoopbackStartEmitsConnectionAndReady(t *testing.T) {
	lb := New(remote.Echo{})
	rec := &recorder{}
	lb.Start(rec)
	defer lb.Close()

	assert.Equal(t, []string{"connection", "ready"}, rec.waitFor(t, 2))
}

func TestLoopbackDispatch(t *testing.T) {
	lb := New(remote.Echo{})
	rec := &recorder{}
	lb.Start(rec)
	defer lb.Close()
	rec.waitFor(t, 2)

	require.True(t, lb.SendDispatch(message.Of(message.KeyCommand, "ping", "text", "pong")))
	got := rec.waitFor(t, 5)
	assert.Equal(t, []string{"running", "result:0:pong", "ready"}, got[2:5])
}

func TestLoopbackFreeMessage(t *testing.T) {
	lb := New(remote.Echo{})
	rec := &recorder{}
	lb.Start(rec)
	defer lb.Close()
	rec.waitFor(t, 2)

	require.True(t, lb.SendFreeMessage("hi"))
	assert.Equal(t, "message:echo: hi", rec.waitFor(t, 3)[2])
}

func TestLoopbackSendBeforeStart(t *testing.T) {
	lb := New(remote.Echo{})
	assert.False(t, lb.SendDispatch(message.Of(message.KeyCommand, "ping")))
	assert.False(t, lb.SendShutdown())
}

func TestLoopbackShutdownStopsRemote(t *testing.T) {
	lb := New(remote.Echo{})
	rec := &recorder{}
	lb.Start(rec)
	defer lb.Close()
	rec.waitFor(t, 2)

	require.True(t, lb.SendShutdown())
	got := rec.waitFor(t, 4)
	assert.Equal(t, []string{"running", "remote_shutdown:0"}, got[2:4])

	assert.Eventually(t, func() bool { return !lb.SendFreeMessage("late") }, time.Second, 5*time.Millisecond)
}

func TestLoopbackCloseReportsLocalShutdown(t *testing.T) {
	lb := New(remote.Echo{})
	rec := &recorder{}
	lb.Start(rec)
	rec.waitFor(t, 2)

	require.NoError(t, lb.Close())
	require.NoError(t, lb.Close())

	got := rec.snapshot()
	assert.Equal(t, fmt.Sprintf("local_shutdown:%d", transport.CauseClosed), got[len(got)-1])
	assert.Equal(t, 1, countPrefix(got, "local_shutdown"))
	assert.False(t, lb.SendDispatch(message.Of(message.KeyCommand, "ping")))
}

func countPrefix(events []string, prefix string) int {
	n := 0
	for _, ev := range events {
		if len(ev) >= len(prefix) && ev[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}
