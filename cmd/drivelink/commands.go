package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mattjoyce/drivelink/internal/api"
	"github.com/mattjoyce/drivelink/internal/driver"
	"github.com/mattjoyce/drivelink/internal/journal"
	"github.com/mattjoyce/drivelink/internal/log"
	"github.com/mattjoyce/drivelink/internal/message"
	"github.com/mattjoyce/drivelink/internal/storage"
	"github.com/mattjoyce/drivelink/internal/tui"
)

// commonFlags are shared by the commands that reach the remote engine.
type commonFlags struct {
	configPath string
	apiURL     string
	apiKey     string
	jsonOut    bool
	timeouts   driver.Timeouts
}

func addCommonFlags(fs *flag.FlagSet, withTimeouts bool) *commonFlags {
	f := &commonFlags{}
	fs.StringVar(&f.configPath, "config", "", "Path to configuration file")
	fs.StringVar(&f.apiURL, "api", "", "Send through a running server at this URL instead of connecting directly")
	fs.StringVar(&f.apiKey, "api-key", os.Getenv("DRIVELINK_API_KEY"), "API key for --api (default $DRIVELINK_API_KEY or api.api_key)")
	fs.BoolVar(&f.jsonOut, "json", false, "Output as JSON")
	if withTimeouts {
		fs.DurationVar(&f.timeouts.Ready, "ready", 0, "Wait for ready (default from config)")
		fs.DurationVar(&f.timeouts.Running, "running", 0, "Wait for running (default from config)")
		fs.DurationVar(&f.timeouts.Result, "result", 0, "Wait for the result (default from config)")
		fs.DurationVar(&f.timeouts.Shutdown, "shutdown-wait", 0, "Wait for shutdown confirmation (default from config)")
	}
	return f
}

func (f *commonFlags) timeoutsRequest() api.TimeoutsRequest {
	return api.TimeoutsRequest{
		Ready:    durationField(f.timeouts.Ready),
		Running:  durationField(f.timeouts.Running),
		Result:   durationField(f.timeouts.Result),
		Shutdown: durationField(f.timeouts.Shutdown),
	}
}

func (f *commonFlags) client() *apiClient {
	key := f.apiKey
	if key == "" {
		if cfg, err := loadConfig(f.configPath); err == nil {
			key = cfg.API.APIKey
		}
	}
	return newAPIClient(f.apiURL, key)
}

// withSession runs fn against a driver connected for the duration of the call.
func (f *commonFlags) withSession(fn func(ctx context.Context, d *driver.Driver) (*driver.Outcome, error)) (*driver.Outcome, error) {
	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	// One-shot commands keep stderr quiet unless debugging.
	level := cfg.Service.LogLevel
	if level == "info" {
		level = "warn"
	}
	log.Setup(level, cfg.Service.LogFormat)

	ctx := context.Background()
	s, err := openSession(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return fn(ctx, s.driver)
}

// parseProperties turns key=value arguments into a message, keeping order.
func parseProperties(args []string) (*message.Message, error) {
	msg := message.New()
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("argument %q is not key=value", arg)
		}
		msg.Set(key, value)
	}
	return msg, nil
}

func runSend(args []string) int {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	f := addCommonFlags(fs, true)
	file := fs.String("file", "", "Read the dispatch from a local YAML file; key=value arguments override it")
	remoteFile := fs.String("remote-file", "", "Have the remote engine load the dispatch from this path")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: drivelink send [flags] command=<name> [key=value...]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return exitError
	}

	if *remoteFile != "" {
		if fs.NArg() > 0 || *file != "" {
			fmt.Fprintln(os.Stderr, "--remote-file cannot be combined with --file or key=value arguments")
			return exitError
		}
		var out *driver.Outcome
		var err error
		if f.apiURL != "" {
			out, err = f.client().command("/command/file", api.FileCommandRequest{Path: *remoteFile, Timeouts: f.timeoutsRequest()})
		} else {
			out, err = f.withSession(func(ctx context.Context, d *driver.Driver) (*driver.Outcome, error) {
				return d.SendFile(ctx, *remoteFile, f.timeouts)
			})
		}
		return report(out, err, f.jsonOut)
	}

	msg := message.New()
	if *file != "" {
		loaded, err := message.LoadYAML(*file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read dispatch: %v\n", err)
			return exitError
		}
		msg = loaded
	}
	extra, err := parseProperties(fs.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}
	for _, p := range extra.Properties() {
		msg.Set(p.Key, p.Value)
	}
	if msg.Command() == "" {
		fs.Usage()
		return exitError
	}

	var out *driver.Outcome
	if f.apiURL != "" {
		out, err = f.client().command("/command", api.CommandRequest{Properties: msg, Timeouts: f.timeoutsRequest()})
	} else {
		out, err = f.withSession(func(ctx context.Context, d *driver.Driver) (*driver.Outcome, error) {
			return d.Send(ctx, msg, f.timeouts)
		})
	}
	return report(out, err, f.jsonOut)
}

func runMessage(args []string) int {
	fs := flag.NewFlagSet("message", flag.ContinueOnError)
	f := addCommonFlags(fs, false)
	if err := fs.Parse(args); err != nil {
		return exitError
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: drivelink message [flags] <text>")
		return exitError
	}
	text := strings.Join(fs.Args(), " ")

	var out *driver.Outcome
	var err error
	if f.apiURL != "" {
		out, err = f.client().command("/message", api.MessageRequest{Text: text})
	} else {
		out, err = f.withSession(func(ctx context.Context, d *driver.Driver) (*driver.Outcome, error) {
			return d.Message(ctx, text)
		})
	}
	return report(out, err, f.jsonOut)
}

func runShutdown(args []string) int {
	fs := flag.NewFlagSet("shutdown", flag.ContinueOnError)
	f := addCommonFlags(fs, true)
	if err := fs.Parse(args); err != nil {
		return exitError
	}

	var out *driver.Outcome
	var err error
	if f.apiURL != "" {
		out, err = f.client().command("/shutdown", api.ShutdownRequest{Timeouts: f.timeoutsRequest()})
	} else {
		out, err = f.withSession(func(ctx context.Context, d *driver.Driver) (*driver.Outcome, error) {
			return d.Shutdown(ctx, f.timeouts)
		})
	}
	return report(out, err, f.jsonOut)
}

// report prints an outcome and returns the matching exit code.
func report(out *driver.Outcome, err error, jsonOut bool) int {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitError
	}
	if jsonOut {
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
		return exitCodeFor(out.Status)
	}

	fmt.Fprintf(os.Stderr, "command %s: %s\n", out.ID, out.Status)
	if out.Error != "" {
		fmt.Fprintf(os.Stderr, "error: %s\n", out.Error)
	}
	if out.Result != nil {
		for _, p := range out.Result.Properties() {
			fmt.Printf("%s=%s\n", p.Key, p.Value)
		}
	}
	return exitCodeFor(out.Status)
}

func runHistory(args []string) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	f := addCommonFlags(fs, false)
	limit := fs.Int("limit", 20, "Number of commands to show")
	if err := fs.Parse(args); err != nil {
		return exitError
	}
	if fs.NArg() > 1 {
		fmt.Fprintln(os.Stderr, "Usage: drivelink history [flags] [id]")
		return exitError
	}

	var entries []*journal.Entry
	var err error
	switch {
	case f.apiURL != "" && fs.NArg() == 1:
		var e journal.Entry
		err = f.client().get("/commands/"+url.PathEscape(fs.Arg(0)), &e)
		entries = []*journal.Entry{&e}
	case f.apiURL != "":
		var list api.CommandListResponse
		err = f.client().get("/commands?limit="+strconv.Itoa(*limit), &list)
		entries = list.Commands
	default:
		entries, err = localHistory(f.configPath, fs.Arg(0), *limit)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitError
	}

	if f.jsonOut || fs.NArg() == 1 {
		var v any = entries
		if fs.NArg() == 1 {
			v = entries[0]
		}
		data, _ := json.MarshalIndent(v, "", "  ")
		fmt.Println(string(data))
		return exitOK
	}
	printHistory(entries)
	return exitOK
}

// localHistory reads the journal directly. It needs no lock: reads are safe
// while a server holds the journal.
func localHistory(configPath, id string, limit int) ([]*journal.Entry, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.Journal.Path)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	j := journal.New(db)

	if id != "" {
		e, err := j.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return []*journal.Entry{e}, nil
	}
	return j.Recent(ctx, limit)
}

func printHistory(entries []*journal.Entry) {
	if len(entries) == 0 {
		fmt.Println("No commands recorded.")
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tKIND\tSTATUS\tCODE\tCOMMAND")
	for _, e := range entries {
		code := "-"
		if e.ResultCode != nil {
			code = strconv.Itoa(*e.ResultCode)
		}
		command := e.Command
		if e.Target != "" {
			command += " @" + e.Target
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.CreatedAt.Local().Format(time.DateTime), e.Kind, e.Status, code, command)
	}
	_ = tw.Flush()
}

func runMonitor(args []string) int {
	fs := flag.NewFlagSet("monitor", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	apiURL := fs.String("api", "", "Server URL (default from api.listen)")
	apiKey := fs.String("api-key", os.Getenv("DRIVELINK_API_KEY"), "API key (default $DRIVELINK_API_KEY or api.api_key)")
	if err := fs.Parse(args); err != nil {
		return exitError
	}

	if *apiURL == "" || *apiKey == "" {
		cfg, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			return exitError
		}
		if *apiURL == "" {
			*apiURL = cfg.API.Listen
		}
		if *apiKey == "" {
			*apiKey = cfg.API.APIKey
		}
	}

	c := newAPIClient(*apiURL, *apiKey)
	if err := tui.Run(c.base, c.key); err != nil {
		fmt.Fprintf(os.Stderr, "Monitor error: %v\n", err)
		return exitError
	}
	return exitOK
}
