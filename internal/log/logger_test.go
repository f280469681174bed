package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestSetup(t *testing.T) {
	// Reset logger for testing
	logger.Store(nil)
	once = sync.Once{}

	Setup("DEBUG", "text")
	l := logger.Load()
	if l == nil {
		t.Fatal("Logger should not be nil")
	}
	if !l.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected debug level to be enabled")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "info", "text").Info("hello", "k", "v")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("expected text output, got %q", buf.String())
	}

	buf.Reset()
	newLogger(&buf, "info", "json").Info("hello")
	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger.Store(slog.New(slog.NewJSONHandler(&buf, nil)))

	WithComponent("engine").Info("hello")

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}
	if out["component"] != "engine" {
		t.Errorf("Expected component 'engine', got %v", out["component"])
	}
	if out["msg"] != "hello" {
		t.Errorf("Expected msg 'hello', got %v", out["msg"])
	}
}

func TestWithCommand(t *testing.T) {
	var buf bytes.Buffer
	logger.Store(slog.New(slog.NewJSONHandler(&buf, nil)))

	WithCommand("cmd-123", "ping").Info("command msg")

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}
	if out["command_id"] != "cmd-123" {
		t.Errorf("Expected command_id 'cmd-123', got %v", out["command_id"])
	}
	if out["command"] != "ping" {
		t.Errorf("Expected command 'ping', got %v", out["command"])
	}
}

func TestGetConcurrentWithSetup(t *testing.T) {
	logger.Store(nil)
	once = sync.Once{}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if WithComponent("reader") == nil {
				t.Error("WithComponent returned nil")
			}
		}()
		go func() {
			defer wg.Done()
			Setup("info", "json")
		}()
	}
	wg.Wait()
	if logger.Load() == nil {
		t.Fatal("logger not set")
	}
}
