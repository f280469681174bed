package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattjoyce/drivelink/internal/api"
	"github.com/mattjoyce/drivelink/internal/config"
	"github.com/mattjoyce/drivelink/internal/journal"
	"github.com/mattjoyce/drivelink/internal/log"
)

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stdout failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stderr failed: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdoutBytes, _ := io.ReadAll(stdoutR)
	stderrBytes, _ := io.ReadAll(stderrR)

	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdoutBytes), string(stderrBytes)
}

func setVersionMetadataForTest(t *testing.T, v, commit, built string) {
	t.Helper()

	origVersion := version
	origCommit := gitCommit
	origBuildDate := buildDate

	version = v
	gitCommit = commit
	buildDate = built

	t.Cleanup(func() {
		version = origVersion
		gitCommit = origCommit
		buildDate = origBuildDate
	})
}

// writeLoopbackConfig writes a config using the in-process echo engine with
// its journal and lock inside a temp dir.
func writeLoopbackConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	body := "service:\n  log_format: text\n" +
		"remote:\n  mode: loopback\n" +
		"timeouts:\n  ready: 5s\n  running: 5s\n  result: 5s\n  shutdown: 5s\n" +
		"journal:\n  path: " + filepath.Join(dir, "journal.db") + "\n" +
		"api:\n  enabled: false\n"
	path := filepath.Join(dir, "drivelink.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestRunCLIRootVersionFlag(t *testing.T) {
	setVersionMetadataForTest(t, "1.2.3", "abc1234567890", "2026-02-12T11:30:00Z")

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"--version"})
	})
	if code != 0 {
		t.Fatalf("runCLI() code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "drivelink 1.2.3") {
		t.Fatalf("stdout missing semantic version: %s", stdout)
	}
	if !strings.Contains(stdout, "commit: abc123456789") {
		t.Fatalf("stdout missing short commit: %s", stdout)
	}
	if !strings.Contains(stdout, "built_at: 2026-02-12T11:30:00Z") {
		t.Fatalf("stdout missing build time: %s", stdout)
	}
}

func TestRunVersionJSONOutputIncludesMetadata(t *testing.T) {
	setVersionMetadataForTest(t, "2.0.0-rc.1", "aabbccddeeff001122334455", "2026-02-12T11:30:00-05:00")

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runVersion([]string{"--json"})
	})
	if code != 0 {
		t.Fatalf("runVersion() code = %d, stderr: %s", code, stderr)
	}

	var out versionInfo
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("failed to parse version JSON: %v\noutput=%s", err, stdout)
	}
	if out.Commit != "aabbccddeeff" {
		t.Fatalf("commit = %q, want %q", out.Commit, "aabbccddeeff")
	}
	if out.BuildTime != "2026-02-12T16:30:00Z" {
		t.Fatalf("build_time = %q, want %q", out.BuildTime, "2026-02-12T16:30:00Z")
	}
}

func TestRunCLIUnknownCommand(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"frobnicate"})
	})
	if code != exitError {
		t.Fatalf("code = %d, want %d", code, exitError)
	}
	if !strings.Contains(stderr, "Unknown command: frobnicate") || !strings.Contains(stderr, "Exit codes") {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestRunListEncodeDecode(t *testing.T) {
	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"list", "encode", "a;b", "c"})
	})
	if code != 0 {
		t.Fatalf("encode code = %d, stderr: %s", code, stderr)
	}
	if got := strings.TrimSpace(stdout); got != ":a;b:c" {
		t.Fatalf("encoded = %q, want %q", got, ":a;b:c")
	}

	code, stdout, _ = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"list", "decode", ":a;b::c"})
	})
	if code != 0 {
		t.Fatalf("decode code = %d", code)
	}
	if stdout != "a;b\n\nc\n" {
		t.Fatalf("decoded = %q", stdout)
	}

	code, _, _ = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"list", "shuffle"})
	})
	if code != exitError {
		t.Fatalf("unknown action code = %d", code)
	}
}

func TestRunConfigCheck(t *testing.T) {
	path := writeLoopbackConfig(t)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "check", "--config", path})
	})
	if code != 0 {
		t.Fatalf("config check code = %d, stderr: %s", code, stderr)
	}
	fp, err := config.Fingerprint(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "fingerprint: "+fp) || !strings.Contains(stdout, "remote:      loopback") {
		t.Fatalf("stdout = %s", stdout)
	}

	code, _, stderr = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "check", "--config", path, "--expect", strings.Repeat("0", 64)})
	})
	if code != exitError || !strings.Contains(stderr, "hash mismatch") {
		t.Fatalf("expect mismatch: code = %d, stderr = %s", code, stderr)
	}
}

func TestRunConfigCheckWriteChecksumGuardsEdits(t *testing.T) {
	path := writeLoopbackConfig(t)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "check", "--config", path, "--write-checksum"})
	})
	if code != 0 {
		t.Fatalf("write-checksum code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "checksum recorded") {
		t.Fatalf("stdout = %s", stdout)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("lock_path: " + filepath.Join(filepath.Dir(path), "x.lock") + "\n")
	_ = f.Close()

	code, _, stderr = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "check", "--config", path})
	})
	if code != exitError || !strings.Contains(stderr, "config verification failed") {
		t.Fatalf("tampered: code = %d, stderr = %s", code, stderr)
	}

	// Re-recording accepts the edit.
	code, _, stderr = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "check", "--config", path, "--write-checksum"})
	})
	if code != 0 {
		t.Fatalf("re-record code = %d, stderr: %s", code, stderr)
	}
}

func TestRunSendAgainstLoopback(t *testing.T) {
	path := writeLoopbackConfig(t)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"send", "--config", path, "command=hello", "target=login"})
	})
	if code != exitOK {
		t.Fatalf("send code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "resultInfo=hello") {
		t.Fatalf("stdout = %s", stdout)
	}
	if !strings.Contains(stderr, ": succeeded") {
		t.Fatalf("stderr = %s", stderr)
	}

	code, _, stderr = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"send", "--config", path, "command=exception", "text=boom"})
	})
	if code != exitRemoteException {
		t.Fatalf("exception code = %d, want %d", code, exitRemoteException)
	}
	if !strings.Contains(stderr, "boom") {
		t.Fatalf("stderr = %s", stderr)
	}

	code, stdout, stderr = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"history", "--config", path, "--json"})
	})
	if code != exitOK {
		t.Fatalf("history code = %d, stderr: %s", code, stderr)
	}
	var entries []journal.Entry
	if err := json.Unmarshal([]byte(stdout), &entries); err != nil {
		t.Fatalf("history JSON: %v\n%s", err, stdout)
	}
	if len(entries) != 2 || entries[0].Status != journal.StatusRemoteException || entries[1].Target != "login" {
		t.Fatalf("history = %+v", entries)
	}
}

func TestRunSendFromFileWithOverrides(t *testing.T) {
	path := writeLoopbackConfig(t)
	dispatch := filepath.Join(t.TempDir(), "dispatch.yaml")
	if err := os.WriteFile(dispatch, []byte("command: fail\ncode: 7\ntext: from file\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"send", "--config", path, "--file", dispatch, "--json", "text=overridden"})
	})
	if code != exitOK {
		t.Fatalf("code = %d, stderr: %s", code, stderr)
	}
	var out struct {
		Status string            `json:"status"`
		Result map[string]string `json:"result"`
	}
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("send JSON: %v\n%s", err, stdout)
	}
	if out.Status != "succeeded" || out.Result["resultCode"] != "7" || out.Result["resultInfo"] != "overridden" {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestRunSendRejectsBadArguments(t *testing.T) {
	path := writeLoopbackConfig(t)
	for _, args := range [][]string{
		{"send", "--config", path},
		{"send", "--config", path, "target=login"},
		{"send", "--config", path, "command"},
		{"send", "--config", path, "--remote-file", "/tmp/x.yaml", "command=hello"},
	} {
		code, _, _ := captureOutputWithExitCode(t, func() int { return runCLI(args) })
		if code != exitError {
			t.Fatalf("%v: code = %d, want %d", args, code, exitError)
		}
	}
}

func TestRunMessageAndShutdown(t *testing.T) {
	path := writeLoopbackConfig(t)

	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"message", "--config", path, "hello", "there"})
	})
	if code != exitOK {
		t.Fatalf("message code = %d, stderr: %s", code, stderr)
	}

	code, _, stderr = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"shutdown", "--config", path})
	})
	if code != exitOK {
		t.Fatalf("shutdown code = %d, stderr: %s", code, stderr)
	}
}

func TestRunSendThroughAPI(t *testing.T) {
	path := writeLoopbackConfig(t)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	log.Setup("error", "text")

	s, err := openSession(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })

	srv := api.New(api.Config{APIKey: "secret"}, s.driver, s.journal, s.hub, log.WithComponent("api"))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"send", "--api", ts.URL, "--api-key", "secret", "command=hello", "text=via api"})
	})
	if code != exitOK {
		t.Fatalf("code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "resultInfo=via api") {
		t.Fatalf("stdout = %s", stdout)
	}

	code, _, _ = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"send", "--api", ts.URL, "--api-key", "secret", "command=exception"})
	})
	if code != exitRemoteException {
		t.Fatalf("exception code = %d", code)
	}

	code, _, stderr = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"send", "--api", ts.URL, "--api-key", "wrong", "command=hello"})
	})
	if code != exitError {
		t.Fatalf("bad key code = %d, stderr: %s", code, stderr)
	}

	code, stdout, stderr = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"history", "--api", ts.URL, "--api-key", "secret"})
	})
	if code != exitOK {
		t.Fatalf("history code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "remote_exception") || !strings.Contains(stdout, "succeeded") {
		t.Fatalf("history = %s", stdout)
	}
}

func TestParseProperties(t *testing.T) {
	msg, err := parseProperties([]string{"command=type", "text=a=b", "empty="})
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(msg.Keys(), ","); got != "command,text,empty" {
		t.Fatalf("keys = %s", got)
	}
	if msg.Value("text") != "a=b" {
		t.Fatalf("text = %q", msg.Value("text"))
	}
	if _, err := parseProperties([]string{"=x"}); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestExitCodeFor(t *testing.T) {
	cases := map[journal.Status]int{
		journal.StatusSucceeded:       exitOK,
		journal.StatusTimedOut:        exitTimedOut,
		journal.StatusRemoteException: exitRemoteException,
		journal.StatusLocalShutdown:   exitShutdown,
		journal.StatusRemoteShutdown:  exitShutdown,
		journal.StatusSendFailed:      exitSendFailed,
		journal.StatusFailed:          exitError,
	}
	for status, want := range cases {
		if got := exitCodeFor(status); got != want {
			t.Errorf("exitCodeFor(%s) = %d, want %d", status, got, want)
		}
	}
}
