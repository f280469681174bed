package config

import "time"

// Remote engine connection modes.
const (
	ModeProcess  = "process"
	ModeTCP      = "tcp"
	ModeLoopback = "loopback"
)

// Config represents the complete drivelink configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Remote   RemoteConfig   `yaml:"remote"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
	Journal  JournalConfig  `yaml:"journal"`
	API      APIConfig      `yaml:"api"`
	LockPath string         `yaml:"lock_path,omitempty"`

	// SourcePath is the file the config was loaded from, if any.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// RemoteConfig says how to reach the remote automation engine.
type RemoteConfig struct {
	Mode        string        `yaml:"mode"`
	Command     []string      `yaml:"command,omitempty"` // process mode argv
	Dir         string        `yaml:"dir,omitempty"`
	Env         []string      `yaml:"env,omitempty"`
	Address     string        `yaml:"address,omitempty"` // tcp mode host:port
	Codec       string        `yaml:"codec"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	GracePeriod time.Duration `yaml:"grace_period"`
}

// TimeoutsConfig holds the default wait for each phase of a command. A value
// below one second means "do not wait" for that phase.
type TimeoutsConfig struct {
	Ready                time.Duration `yaml:"ready"`
	Running              time.Duration `yaml:"running"`
	Result               time.Duration `yaml:"result"`
	Shutdown             time.Duration `yaml:"shutdown"`
	MaxTimeoutExtensions int           `yaml:"max_timeout_extensions"` // 0 = unbounded
}

// JournalConfig defines command history storage.
type JournalConfig struct {
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Listen      string `yaml:"listen"`
	APIKey      string `yaml:"api_key,omitempty"`
	EventBuffer int    `yaml:"event_buffer"`
}

// Defaults returns a configuration with every default filled in.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "drivelink",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Remote: RemoteConfig{
			Mode:        ModeLoopback,
			Codec:       "json",
			DialTimeout: 5 * time.Second,
			GracePeriod: 5 * time.Second,
		},
		Timeouts: TimeoutsConfig{
			Ready:    30 * time.Second,
			Running:  30 * time.Second,
			Result:   60 * time.Second,
			Shutdown: 10 * time.Second,
		},
		Journal: JournalConfig{
			Path:      "./data/drivelink.db",
			Retention: 30 * 24 * time.Hour,
		},
		API: APIConfig{
			Listen:      "127.0.0.1:8088",
			EventBuffer: 256,
		},
	}
}
