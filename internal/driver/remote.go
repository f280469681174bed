package driver

import (
	"context"
	"fmt"
	"io"

	"github.com/mattjoyce/drivelink/internal/config"
	"github.com/mattjoyce/drivelink/internal/engine"
	"github.com/mattjoyce/drivelink/internal/remote"
	"github.com/mattjoyce/drivelink/internal/transport"
	"github.com/mattjoyce/drivelink/internal/transport/loopback"
	"github.com/mattjoyce/drivelink/internal/transport/process"
	"github.com/mattjoyce/drivelink/internal/transport/tcp"
)

// Remote is a transport the driver owns: the engine sends through it and the
// driver closes it on shutdown.
type Remote interface {
	engine.Transport
	io.Closer
}

// connect builds the transport for cfg.Mode, attaches h and starts event
// delivery. h must be fully set up first: the remote may report connection
// and ready immediately.
func connect(ctx context.Context, cfg config.RemoteConfig, h func(Remote) transport.Handler) (Remote, error) {
	switch cfg.Mode {
	case config.ModeProcess:
		p := process.New(process.Config{
			Command:     cfg.Command,
			Dir:         cfg.Dir,
			Env:         cfg.Env,
			Codec:       cfg.Codec,
			GracePeriod: cfg.GracePeriod,
		})
		if err := p.Start(h(p)); err != nil {
			return nil, fmt.Errorf("start remote engine: %w", err)
		}
		return p, nil

	case config.ModeTCP:
		dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
		s, err := tcp.Dial(dialCtx, cfg.Address, cfg.Codec)
		if err != nil {
			return nil, err
		}
		s.Start(h(s))
		return s, nil

	case config.ModeLoopback:
		lb := loopback.New(remote.Echo{})
		lb.Start(h(lb))
		return lb, nil
	}
	return nil, fmt.Errorf("unknown remote mode %q", cfg.Mode)
}
