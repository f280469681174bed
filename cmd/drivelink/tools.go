package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattjoyce/drivelink/internal/config"
	"github.com/mattjoyce/drivelink/internal/message"
)

func runListNoun(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: drivelink list encode <item>... | drivelink list decode <text>")
		return exitError
	}

	switch args[0] {
	case "encode":
		encoded, err := message.EncodeList(args[1:])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitError
		}
		fmt.Println(encoded)
		return exitOK
	case "decode":
		var text string
		switch len(args) {
		case 1:
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				return exitError
			}
			text = strings.TrimRight(string(data), "\r\n")
		case 2:
			text = args[1]
		default:
			fmt.Fprintln(os.Stderr, "list decode takes one argument (or reads stdin)")
			return exitError
		}
		for _, item := range message.DecodeList(text) {
			fmt.Println(item)
		}
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "Unknown list action: %s\n", args[0])
		return exitError
	}
}

func runConfigNoun(args []string) int {
	if len(args) == 0 || args[0] != "check" {
		fmt.Fprintln(os.Stderr, "Usage: drivelink config check [--config PATH] [--write-checksum] [--expect HASH]")
		return exitError
	}

	fs := flag.NewFlagSet("config check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	writeChecksum := fs.Bool("write-checksum", false, "Record the file's hash in the .checksums manifest")
	expect := fs.String("expect", "", "Fail unless the file's BLAKE3 fingerprint matches")
	if err := fs.Parse(args[1:]); err != nil {
		return exitError
	}

	path := *configPath
	if path == "" {
		discovered, err := config.Discover()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitError
		}
		path = discovered
	}

	if *writeChecksum {
		// Parse, not Load: Load would reject the edit being recorded.
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitError
		}
		if _, err := config.Parse(data); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", path, err)
			return exitError
		}
		if _, err := config.WriteChecksums(path); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitError
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitError
	}
	if *expect != "" {
		if err := config.VerifyFingerprint(cfg.SourcePath, *expect); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitError
		}
	}

	fp, err := config.Fingerprint(cfg.SourcePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitError
	}
	fmt.Printf("config:      %s\n", cfg.SourcePath)
	fmt.Printf("remote:      %s\n", describeRemote(cfg.Remote))
	fmt.Printf("journal:     %s\n", cfg.Journal.Path)
	fmt.Printf("fingerprint: %s\n", fp)
	if *writeChecksum {
		fmt.Println("checksum recorded")
	}
	return exitOK
}

func describeRemote(r config.RemoteConfig) string {
	switch r.Mode {
	case config.ModeProcess:
		return fmt.Sprintf("process %s (%s)", strings.Join(r.Command, " "), r.Codec)
	case config.ModeTCP:
		return fmt.Sprintf("tcp %s (%s)", r.Address, r.Codec)
	default:
		return r.Mode
	}
}
