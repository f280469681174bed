// Package driver arbitrates access to the engine for the CLI and the API.
//
// The engine keeps one shared state record and does not serialize callers,
// so the driver allows one command in flight at a time. Every command is
// recorded in the journal and announced on the event hub.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mattjoyce/drivelink/internal/config"
	"github.com/mattjoyce/drivelink/internal/engine"
	"github.com/mattjoyce/drivelink/internal/events"
	"github.com/mattjoyce/drivelink/internal/journal"
	"github.com/mattjoyce/drivelink/internal/listener"
	"github.com/mattjoyce/drivelink/internal/log"
	"github.com/mattjoyce/drivelink/internal/message"
	"github.com/mattjoyce/drivelink/internal/transport"
)

// ErrClosed is returned by operations on a closed driver.
var ErrClosed = errors.New("driver closed")

// Timeouts overrides the configured waits for one command. Zero fields fall
// back to the configured value.
type Timeouts struct {
	Ready    time.Duration
	Running  time.Duration
	Result   time.Duration
	Shutdown time.Duration
}

func (t Timeouts) orDefaults(d config.TimeoutsConfig) Timeouts {
	if t.Ready == 0 {
		t.Ready = d.Ready
	}
	if t.Running == 0 {
		t.Running = d.Running
	}
	if t.Result == 0 {
		t.Result = d.Result
	}
	if t.Shutdown == 0 {
		t.Shutdown = d.Shutdown
	}
	return t
}

// Outcome is what one command produced.
type Outcome struct {
	ID     string           `json:"id"`
	Status journal.Status   `json:"status"`
	Result *message.Message `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// Driver owns the engine, its transport and the command journal writer.
type Driver struct {
	engine   *engine.Engine
	remote   Remote
	journal  *journal.Journal
	hub      *events.Hub
	timeouts config.TimeoutsConfig
	logger   *slog.Logger

	// sem holds one token; whoever holds it may talk to the engine.
	sem       chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Open connects to the remote engine described by cfg and returns a driver
// for it. Commands left running by a previous driver are marked failed and
// entries older than the retention window are pruned. hub may be nil.
func Open(ctx context.Context, cfg *config.Config, j *journal.Journal, hub *events.Hub) (*Driver, error) {
	logger := log.WithComponent("driver")

	if n, err := j.MarkAbandoned(ctx); err != nil {
		return nil, fmt.Errorf("mark abandoned commands: %w", err)
	} else if n > 0 {
		logger.Warn("marked abandoned commands as failed", "count", n)
	}
	if n, err := j.Prune(ctx, cfg.Journal.Retention); err != nil {
		return nil, fmt.Errorf("prune journal: %w", err)
	} else if n > 0 {
		logger.Info("pruned journal", "count", n)
	}

	registry := listener.NewRegistry(log.WithComponent("engine"))
	if hub != nil {
		rec := events.NewRecorder(hub)
		registry.Add(rec)
		registry.Add(rec.DebugSink())
		debugLog := listener.DebugFunc(func(text string) { logger.Debug(text) })
		registry.Add(&debugLog)
	}

	var e *engine.Engine
	r, err := connect(ctx, cfg.Remote, func(t Remote) transport.Handler {
		e = engine.New(t,
			engine.WithListeners(registry),
			engine.WithMaxTimeoutExtensions(cfg.Timeouts.MaxTimeoutExtensions),
		)
		return e
	})
	if err != nil {
		return nil, err
	}
	logger.Info("remote engine connected", "mode", cfg.Remote.Mode)
	return New(e, r, j, hub, cfg.Timeouts), nil
}

// New wraps an engine whose transport r is already started.
func New(e *engine.Engine, r Remote, j *journal.Journal, hub *events.Hub, timeouts config.TimeoutsConfig) *Driver {
	d := &Driver{
		engine:   e,
		remote:   r,
		journal:  j,
		hub:      hub,
		timeouts: timeouts,
		logger:   log.WithComponent("driver"),
		sem:      make(chan struct{}, 1),
		closed:   make(chan struct{}),
	}
	d.sem <- struct{}{}
	return d
}

// Engine exposes the engine for read-only queries such as Stage.
func (d *Driver) Engine() *engine.Engine { return d.engine }

// Status is a point-in-time view of the remote link.
type Status struct {
	Connected bool   `json:"connected"`
	Stage     string `json:"stage"`
	Busy      bool   `json:"busy"`
}

// Status reports whether the remote engine has connected, the stage of the
// latest operation, and whether a command is in flight.
func (d *Driver) Status() Status {
	return Status{
		Connected: d.engine.Connected(),
		Stage:     d.engine.Stage().String(),
		Busy:      len(d.sem) == 0,
	}
}

// acquire waits for the command slot.
func (d *Driver) acquire(ctx context.Context) error {
	select {
	case <-d.closed:
		return ErrClosed
	default:
	}
	select {
	case <-d.sem:
		return nil
	case <-d.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Driver) release() { d.sem <- struct{}{} }

// Send dispatches msg and waits for its result.
func (d *Driver) Send(ctx context.Context, msg *message.Message, t Timeouts) (*Outcome, error) {
	if msg == nil || msg.Command() == "" {
		return nil, fmt.Errorf("dispatch needs a %q property", message.KeyCommand)
	}
	t = t.orDefaults(d.timeouts)
	return d.run(ctx, journal.BeginRequest{Kind: journal.KindDispatch, Command: msg.Command(), Dispatch: msg},
		func() (*message.Message, error) {
			return d.engine.PerformCommand(msg, t.Ready, t.Running, t.Result)
		})
}

// SendFile asks the remote engine to load the dispatch from path and waits
// for its result.
func (d *Driver) SendFile(ctx context.Context, path string, t Timeouts) (*Outcome, error) {
	if path == "" {
		return nil, errors.New("dispatch file path is empty")
	}
	t = t.orDefaults(d.timeouts)
	return d.run(ctx, journal.BeginRequest{Kind: journal.KindDispatchFile, Command: path},
		func() (*message.Message, error) {
			return d.engine.PerformFileCommand(path, t.Ready, t.Running, t.Result)
		})
}

// Message sends free text to the remote engine without waiting for anything.
func (d *Driver) Message(ctx context.Context, text string) (*Outcome, error) {
	return d.run(ctx, journal.BeginRequest{Kind: journal.KindMessage, Command: text},
		func() (*message.Message, error) {
			return nil, d.engine.PerformFreeMessage(text)
		})
}

// Shutdown asks the remote engine to shut down and waits for confirmation.
func (d *Driver) Shutdown(ctx context.Context, t Timeouts) (*Outcome, error) {
	t = t.orDefaults(d.timeouts)
	return d.run(ctx, journal.BeginRequest{Kind: journal.KindShutdown, Command: "shutdown"},
		func() (*message.Message, error) {
			return nil, d.engine.PerformShutdown(t.Ready, t.Running, t.Shutdown)
		})
}

// run journals and announces one engine operation. The returned error is
// non-nil only when the command could not be recorded or started; engine
// failures are reported through Outcome.Status.
func (d *Driver) run(ctx context.Context, req journal.BeginRequest, op func() (*message.Message, error)) (*Outcome, error) {
	if err := d.acquire(ctx); err != nil {
		return nil, err
	}
	defer d.release()

	id, err := d.journal.Begin(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("record command: %w", err)
	}
	logger := log.WithCommand(id, req.Command).With("kind", string(req.Kind))
	logger.Info("command started")
	d.publish(events.TypeCommandStarted, map[string]any{
		"id":      id,
		"kind":    req.Kind,
		"command": req.Command,
	})

	start := time.Now()
	result, opErr := op()
	status := Classify(opErr)
	out := &Outcome{ID: id, Status: status, Result: result}
	if opErr != nil {
		out.Error = opErr.Error()
	}

	// The command already ran; a cancelled request must not lose its record.
	if err := d.journal.Complete(context.WithoutCancel(ctx), id, journal.CompleteRequest{
		Status: status,
		Result: result,
		Err:    opErr,
	}); err != nil {
		logger.Error("failed to record command completion", "error", err)
	}

	attrs := []any{"status", status, "duration", time.Since(start)}
	if opErr != nil {
		logger.Warn("command failed", append(attrs, "error", opErr)...)
	} else {
		logger.Info("command completed", attrs...)
	}
	d.publish(events.TypeCommandCompleted, out)
	return out, nil
}

func (d *Driver) publish(eventType string, data any) {
	if d.hub != nil {
		d.hub.Publish(eventType, data)
	}
}

// Close releases the transport. A command in flight sees a local shutdown.
// Close waits for it to finish before returning.
func (d *Driver) Close() error {
	d.closeOnce.Do(func() {
		close(d.closed)
		d.closeErr = d.remote.Close()
		// Take the slot so no command is still using the engine.
		<-d.sem
		d.logger.Info("driver closed")
	})
	return d.closeErr
}

// Classify maps an engine error to the journal status recorded for it.
func Classify(err error) journal.Status {
	switch {
	case err == nil:
		return journal.StatusSucceeded
	case errors.Is(err, engine.ErrLocalShutdown):
		return journal.StatusLocalShutdown
	case errors.Is(err, engine.ErrRemoteShutdown):
		return journal.StatusRemoteShutdown
	case errors.Is(err, engine.ErrRemoteException):
		return journal.StatusRemoteException
	case errors.Is(err, engine.ErrTimedOut):
		return journal.StatusTimedOut
	case errors.Is(err, engine.ErrSendFailed):
		return journal.StatusSendFailed
	default:
		return journal.StatusFailed
	}
}
