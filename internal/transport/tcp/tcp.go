// Package tcp connects to a remote automation engine over TCP, and lets a Go
// remote engine accept controllers over TCP.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/mattjoyce/drivelink/internal/log"
	"github.com/mattjoyce/drivelink/internal/protocol"
	"github.com/mattjoyce/drivelink/internal/remote"
	"github.com/mattjoyce/drivelink/internal/transport"
)

// Dial connects to the remote engine at addr and returns a Stream speaking
// codecFormat over the connection. Call Start on the result to begin
// receiving events.
func Dial(ctx context.Context, addr, codecFormat string) (*transport.Stream, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect to remote engine: %w", err)
	}

	codec, err := protocol.NewCodec(codecFormat, conn, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create codec: %w", err)
	}

	logger := log.WithComponent("transport.tcp").With("addr", addr)
	logger.Info("connected to remote engine")
	return transport.NewStream(codec, conn, logger), nil
}

// Serve accepts controllers on ln one at a time and runs a fresh behaviour
// from newBehavior for each. It returns when ctx is done or ln fails.
func Serve(ctx context.Context, ln net.Listener, codecFormat string, newBehavior func() remote.Behavior) error {
	logger := log.WithComponent("remote.tcp")

	var (
		mu     sync.Mutex
		active net.Conn
	)
	go func() {
		<-ctx.Done()
		ln.Close()
		mu.Lock()
		if active != nil {
			active.Close()
		}
		mu.Unlock()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept controller: %w", err)
		}

		mu.Lock()
		active = conn
		mu.Unlock()

		logger.Info("controller connected", "remote_addr", conn.RemoteAddr().String())
		codec, err := protocol.NewCodec(codecFormat, conn, conn)
		if err != nil {
			conn.Close()
			return err
		}
		if err := remote.Serve(codec, newBehavior()); err != nil {
			logger.Warn("controller session ended with error", "error", err)
		}
		mu.Lock()
		active = nil
		mu.Unlock()
		conn.Close()
		logger.Info("controller disconnected")
	}
}
