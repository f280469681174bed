// Package process runs the remote automation engine as a subprocess and talks
// to it over its stdin/stdout.
package process

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/mattjoyce/drivelink/internal/log"
	"github.com/mattjoyce/drivelink/internal/message"
	"github.com/mattjoyce/drivelink/internal/protocol"
	"github.com/mattjoyce/drivelink/internal/transport"
)

const (
	// maxStderrBytes caps the amount of stderr kept from the remote engine.
	maxStderrBytes = 64 * 1024

	// defaultGracePeriod is the time we wait after SIGTERM before sending SIGKILL.
	defaultGracePeriod = 5 * time.Second
)

// ErrNotStarted is returned when Close or Wait is called before Start.
var ErrNotStarted = errors.New("remote engine process not started")

// Config describes the remote engine process.
type Config struct {
	Command     []string // argv; Command[0] is the executable
	Dir         string
	Env         []string // appended to the current environment
	Codec       string   // protocol.FormatJSON or protocol.FormatCBOR
	GracePeriod time.Duration
}

// Process is a transport backed by a child process.
type Process struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	stream *transport.Stream
	stderr *cappedBuffer
	exited chan error

	closeOnce sync.Once
	closeErr  error
}

// New prepares a Process. Nothing is spawned until Start.
func New(cfg Config) *Process {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = defaultGracePeriod
	}
	return &Process{
		cfg:    cfg,
		logger: log.WithComponent("transport.process"),
		stderr: &cappedBuffer{max: maxStderrBytes},
	}
}

// Start spawns the remote engine and begins delivering its events to h.
func (p *Process) Start(h transport.Handler) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil {
		return fmt.Errorf("remote engine process already started")
	}
	if len(p.cfg.Command) == 0 {
		return fmt.Errorf("remote engine command is empty")
	}

	cmd := exec.Command(p.cfg.Command[0], p.cfg.Command[1:]...)
	cmd.Dir = p.cfg.Dir
	if len(p.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), p.cfg.Env...)
	}
	cmd.Stderr = p.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	codec, err := protocol.NewCodec(p.cfg.Codec, stdout, stdin)
	if err != nil {
		return err
	}

	p.logger.Debug("spawning remote engine", "command", p.cfg.Command)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start process: %w", err)
	}
	p.logger.Info("remote engine started", "pid", cmd.Process.Pid)

	p.cmd = cmd
	p.exited = make(chan error, 1)
	p.stream = transport.NewStream(codec, stdin, p.logger)
	p.stream.Start(h)

	go func() {
		// Wait closes stdout, so it must follow the read loop draining it.
		<-p.stream.Done()
		p.exited <- cmd.Wait()
	}()
	return nil
}

func (p *Process) current() *transport.Stream {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stream
}

// SendDispatch implements engine.Transport.
func (p *Process) SendDispatch(msg *message.Message) bool {
	s := p.current()
	return s != nil && s.SendDispatch(msg)
}

// SendDispatchFile implements engine.Transport.
func (p *Process) SendDispatchFile(path string) bool {
	s := p.current()
	return s != nil && s.SendDispatchFile(path)
}

// SendFreeMessage implements engine.Transport.
func (p *Process) SendFreeMessage(text string) bool {
	s := p.current()
	return s != nil && s.SendFreeMessage(text)
}

// SendShutdown implements engine.Transport.
func (p *Process) SendShutdown() bool {
	s := p.current()
	return s != nil && s.SendShutdown()
}

// Stderr returns what the remote engine wrote to stderr, capped at 64KB.
func (p *Process) Stderr() string {
	return p.stderr.String()
}

// Close closes the remote engine's stdin and waits for it to exit. If it is
// still running after the grace period it gets SIGTERM, and SIGKILL after a
// second grace period. Later calls return the first call's result.
func (p *Process) Close() error {
	p.mu.Lock()
	started := p.cmd != nil
	p.mu.Unlock()
	if !started {
		return ErrNotStarted
	}
	p.closeOnce.Do(func() { p.closeErr = p.shutdown() })
	return p.closeErr
}

func (p *Process) shutdown() error {
	p.mu.Lock()
	cmd, stream, exited := p.cmd, p.stream, p.exited
	p.mu.Unlock()

	_ = stream.Close()

	grace := time.NewTimer(p.cfg.GracePeriod)
	defer grace.Stop()

	select {
	case err := <-exited:
		return exitError(err)
	case <-grace.C:
	}

	p.logger.Warn("remote engine still running, sending SIGTERM")
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		p.logger.Error("failed to send SIGTERM", "error", err)
	}

	grace.Reset(p.cfg.GracePeriod)
	select {
	case err := <-exited:
		p.logger.Info("remote engine exited after SIGTERM")
		return exitError(err)
	case <-grace.C:
	}

	p.logger.Warn("remote engine did not exit after SIGTERM, sending SIGKILL")
	if err := cmd.Process.Kill(); err != nil {
		p.logger.Error("failed to send SIGKILL", "error", err)
	}
	return exitError(<-exited)
}

func exitError(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("remote engine exited with status %d", exitErr.ExitCode())
	}
	return err
}

// cappedBuffer keeps the first max bytes written to it.
type cappedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
