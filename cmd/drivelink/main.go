package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/mattjoyce/drivelink/internal/config"
	"github.com/mattjoyce/drivelink/internal/journal"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// Exit codes for command outcomes.
const (
	exitOK              = 0
	exitError           = 1
	exitTimedOut        = 2
	exitRemoteException = 3
	exitShutdown        = 4
	exitSendFailed      = 5
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage(os.Stderr)
		return exitError
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "serve":
		return runServe(args)
	case "send":
		return runSend(args)
	case "message":
		return runMessage(args)
	case "shutdown":
		return runShutdown(args)
	case "history":
		return runHistory(args)
	case "monitor":
		return runMonitor(args)
	case "list":
		return runListNoun(args)
	case "config":
		return runConfigNoun(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage(os.Stdout)
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage(os.Stderr)
		return exitError
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `drivelink - controller for a remote test-automation engine

Usage:
  drivelink <command> [flags]

Commands:
  serve                 Connect to the remote engine and serve the HTTP API
  send key=value...     Dispatch a command and wait for its result
  message <text>        Send free text to the remote engine
  shutdown              Ask the remote engine to shut down
  history [id]          Show recorded commands
  monitor               Live terminal monitor of a running server
  list encode|decode    Encode or decode a delimited list
  config check          Validate the configuration and show its fingerprint
  version               Show version information

send, message, shutdown and history talk to a running server when --api is
given, and otherwise connect to the remote engine themselves.

Exit codes for commands:
  0 succeeded, 1 error, 2 timed out, 3 remote exception,
  4 remote or local shutdown, 5 send failed
`)
}

// loadConfig loads path, or the discovered config when path is empty. With
// nothing to discover it falls back to the defaults (loopback remote).
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		discovered, err := config.Discover()
		if errors.Is(err, config.ErrNoConfig) {
			fmt.Fprintln(os.Stderr, "No config found; using defaults (loopback remote engine)")
			return config.Defaults(), nil
		}
		if err != nil {
			return nil, err
		}
		path = discovered
	}
	return config.Load(path)
}

// exitCodeFor maps a journal status to the process exit code.
func exitCodeFor(status journal.Status) int {
	switch status {
	case journal.StatusSucceeded:
		return exitOK
	case journal.StatusTimedOut:
		return exitTimedOut
	case journal.StatusRemoteException:
		return exitRemoteException
	case journal.StatusLocalShutdown, journal.StatusRemoteShutdown:
		return exitShutdown
	case journal.StatusSendFailed:
		return exitSendFailed
	default:
		return exitError
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		return exitError
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: drivelink version [--json]")
		return exitError
	}

	info := currentVersionInfo()
	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return exitError
		}
		fmt.Println(string(data))
		return exitOK
	}

	fmt.Printf("drivelink %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return exitOK
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = readBuildSetting("vcs.revision")
	}
	if commit != "" {
		if len(commit) > 12 {
			commit = commit[:12]
		}
		info.Commit = commit
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = readBuildSetting("vcs.time")
	}
	if t, err := time.Parse(time.RFC3339Nano, built); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}
	return info
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return strings.TrimSpace(setting.Value)
		}
	}
	return ""
}
