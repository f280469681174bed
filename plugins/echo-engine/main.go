// Command echo-engine is a reference remote automation engine. It speaks the
// drivelink wire protocol over stdio (for process mode) or, with --listen,
// accepts controllers over TCP.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattjoyce/drivelink/internal/log"
	"github.com/mattjoyce/drivelink/internal/protocol"
	"github.com/mattjoyce/drivelink/internal/remote"
	"github.com/mattjoyce/drivelink/internal/transport/tcp"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout))
}

func run(args []string, stdin io.Reader, stdout io.Writer) int {
	fs := flag.NewFlagSet("echo-engine", flag.ContinueOnError)
	codec := fs.String("codec", protocol.FormatJSON, "Wire codec: json or cbor")
	listen := fs.String("listen", "", "Accept controllers on this TCP address instead of stdio")
	logLevel := fs.String("log-level", "info", "Log level")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	log.Setup(*logLevel, "text")

	if *listen != "" {
		ln, err := net.Listen("tcp", *listen)
		if err != nil {
			fmt.Fprintf(os.Stderr, "listen: %v\n", err)
			return 1
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		log.Info("echo engine listening", "addr", ln.Addr().String(), "codec", *codec)
		if err := tcp.Serve(ctx, ln, *codec, func() remote.Behavior { return remote.Echo{} }); err != nil {
			fmt.Fprintf(os.Stderr, "serve: %v\n", err)
			return 1
		}
		return 0
	}

	c, err := protocol.NewCodec(*codec, stdin, stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	if err := remote.Serve(c, remote.Echo{}); err != nil {
		fmt.Fprintf(os.Stderr, "serve: %v\n", err)
		return 1
	}
	return 0
}
