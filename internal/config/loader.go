package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ErrNoConfig is returned by Discover when no config file exists.
var ErrNoConfig = errors.New("no config file found")

// Load reads the YAML config at path, expands ${VAR} references, fills in
// defaults and validates the result.
func Load(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", path, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: check the path or pass --config", absPath)
	}
	if err := VerifyChecksums(absPath); err != nil {
		return nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	cfg.SourcePath = absPath
	return cfg, nil
}

// Parse decodes, defaults and validates config data. Unknown keys are
// rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()

	dec := yaml.NewDecoder(bytes.NewReader([]byte(interpolateEnv(string(data)))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Discover finds the config file to use when none is given. Priority:
// $DRIVELINK_CONFIG, ./drivelink.yaml, ~/.config/drivelink/config.yaml,
// /etc/drivelink/config.yaml.
func Discover() (string, error) {
	var candidates []string
	if p := os.Getenv("DRIVELINK_CONFIG"); p != "" {
		candidates = append(candidates, p)
	}
	candidates = append(candidates, "./drivelink.yaml")
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "drivelink", "config.yaml"))
	}
	candidates = append(candidates, "/etc/drivelink/config.yaml")

	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w (checked: $DRIVELINK_CONFIG, ./drivelink.yaml, ~/.config/drivelink/config.yaml, /etc/drivelink/config.yaml)", ErrNoConfig)
}

// LockFile returns where the single-instance lock lives.
func (c *Config) LockFile() string {
	if c.LockPath != "" {
		return c.LockPath
	}
	if c.Journal.Path == ":memory:" {
		return filepath.Join(os.TempDir(), c.Service.Name+".lock")
	}
	return filepath.Join(filepath.Dir(c.Journal.Path), c.Service.Name+".lock")
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is and caught by validation.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return match
	})
}

func unresolved(field, value string) error {
	if m := envVarPattern.FindStringSubmatch(value); len(m) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, m[1])
	}
	return nil
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}
	if cfg.Service.Name == "" {
		return fmt.Errorf("service.name is required")
	}

	r := cfg.Remote
	switch r.Mode {
	case ModeProcess:
		if len(r.Command) == 0 || r.Command[0] == "" {
			return fmt.Errorf("remote.command is required in process mode")
		}
		for i, arg := range r.Command {
			if err := unresolved(fmt.Sprintf("remote.command[%d]", i), arg); err != nil {
				return err
			}
		}
	case ModeTCP:
		if err := unresolved("remote.address", r.Address); err != nil {
			return err
		}
		if _, _, err := net.SplitHostPort(r.Address); err != nil {
			return fmt.Errorf("remote.address must be host:port in tcp mode (got %q)", r.Address)
		}
	case ModeLoopback:
	default:
		return fmt.Errorf("remote.mode must be one of: process, tcp, loopback (got %q)", r.Mode)
	}
	if r.Codec != "json" && r.Codec != "cbor" {
		return fmt.Errorf("remote.codec must be json or cbor (got %q)", r.Codec)
	}
	if r.DialTimeout <= 0 {
		return fmt.Errorf("remote.dial_timeout must be positive")
	}
	if r.GracePeriod <= 0 {
		return fmt.Errorf("remote.grace_period must be positive")
	}

	t := cfg.Timeouts
	for _, d := range []struct {
		name  string
		value time.Duration
	}{{"ready", t.Ready}, {"running", t.Running}, {"result", t.Result}, {"shutdown", t.Shutdown}} {
		if d.value < 0 {
			return fmt.Errorf("timeouts.%s must not be negative", d.name)
		}
	}
	if t.MaxTimeoutExtensions < 0 {
		return fmt.Errorf("timeouts.max_timeout_extensions must not be negative")
	}

	if cfg.Journal.Path == "" {
		return fmt.Errorf("journal.path is required")
	}
	if cfg.Journal.Retention < 0 {
		return fmt.Errorf("journal.retention must not be negative")
	}

	if cfg.API.Enabled {
		if _, _, err := net.SplitHostPort(cfg.API.Listen); err != nil {
			return fmt.Errorf("api.listen must be host:port (got %q)", cfg.API.Listen)
		}
		if err := unresolved("api.api_key", cfg.API.APIKey); err != nil {
			return err
		}
	}
	if cfg.API.EventBuffer <= 0 {
		return fmt.Errorf("api.event_buffer must be positive")
	}
	return nil
}
