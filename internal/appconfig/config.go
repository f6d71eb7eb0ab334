package appconfig

import (
	"os"
	"path/filepath"
	"time"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int             `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string          `mapstructure:"state_dir" yaml:"state_dir"`
	Server        ServerConfig    `mapstructure:"server" yaml:"server"`
	Reconnect     ReconnectConfig `mapstructure:"reconnect" yaml:"reconnect"`
	Protocol      ProtocolConfig  `mapstructure:"protocol" yaml:"protocol"`
	Persist       PersistConfig   `mapstructure:"persist" yaml:"persist"`
	Render        RenderConfig    `mapstructure:"render" yaml:"render"`
	Logging       LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// ServerConfig configures the optimizer server connection.
type ServerConfig struct {
	Endpoint                string `mapstructure:"endpoint" yaml:"endpoint"`
	HandshakeTimeoutSeconds int    `mapstructure:"handshake_timeout_seconds" yaml:"handshake_timeout_seconds"`
	WriteTimeoutSeconds     int    `mapstructure:"write_timeout_seconds" yaml:"write_timeout_seconds"`
	PingIntervalSeconds     int    `mapstructure:"ping_interval_seconds" yaml:"ping_interval_seconds"`
	ReadLimitBytes          int64  `mapstructure:"read_limit_bytes" yaml:"read_limit_bytes"`
}

// ReconnectConfig shapes the retry delay after a lost connection.
type ReconnectConfig struct {
	InitialIntervalMS int     `mapstructure:"initial_interval_ms" yaml:"initial_interval_ms"`
	MaxIntervalMS     int     `mapstructure:"max_interval_ms" yaml:"max_interval_ms"`
	Multiplier        float64 `mapstructure:"multiplier" yaml:"multiplier"`
	Randomization     float64 `mapstructure:"randomization" yaml:"randomization"`
	UnreachableAfter  int     `mapstructure:"unreachable_after" yaml:"unreachable_after"`
}

// ProtocolConfig toggles wire protocol extensions.
type ProtocolConfig struct {
	JointCompileRun bool `mapstructure:"joint_compile_run" yaml:"joint_compile_run"`
	DropStale       bool `mapstructure:"drop_stale" yaml:"drop_stale"`
}

// PersistConfig controls how often preferences are written.
type PersistConfig struct {
	DraftDebounceMS    int `mapstructure:"draft_debounce_ms" yaml:"draft_debounce_ms"`
	SettingsDebounceMS int `mapstructure:"settings_debounce_ms" yaml:"settings_debounce_ms"`
}

// RenderConfig configures the frame recorder.
type RenderConfig struct {
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`
	// EchoFrames prints one console line per rendered frame.
	EchoFrames bool `mapstructure:"echo_frames" yaml:"echo_frames"`
}

// LoggingConfig controls audit logging behavior.
type LoggingConfig struct {
	DisableAuditTrails bool `mapstructure:"disable_audit_trails" yaml:"disable_audit_trails"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(home, ".penroseide", "state"),
		Server: ServerConfig{
			Endpoint:                "ws://localhost:9160",
			HandshakeTimeoutSeconds: 5,
			WriteTimeoutSeconds:     10,
			PingIntervalSeconds:     30,
			ReadLimitBytes:          32 << 20,
		},
		Reconnect: ReconnectConfig{
			InitialIntervalMS: 250,
			MaxIntervalMS:     5000,
			Multiplier:        2,
			Randomization:     0.5,
			UnreachableAfter:  10,
		},
		Protocol: ProtocolConfig{
			JointCompileRun: false,
			DropStale:       true,
		},
		Persist: PersistConfig{
			DraftDebounceMS:    200,
			SettingsDebounceMS: 0,
		},
		Render: RenderConfig{
			OutputDir: filepath.Join(home, ".penroseide", "frames"),
		},
		Logging: LoggingConfig{
			DisableAuditTrails: false,
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".penroseide", "config.yaml"), nil
}

// HandshakeTimeout returns the dial handshake timeout.
func (c ServerConfig) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutSeconds) * time.Second
}

// WriteTimeout returns the per-frame write deadline.
func (c ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

// PingInterval returns the keepalive interval; zero disables pings.
func (c ServerConfig) PingInterval() time.Duration {
	return time.Duration(c.PingIntervalSeconds) * time.Second
}

// InitialInterval returns the first retry delay.
func (c ReconnectConfig) InitialInterval() time.Duration {
	return time.Duration(c.InitialIntervalMS) * time.Millisecond
}

// MaxInterval returns the retry delay cap.
func (c ReconnectConfig) MaxInterval() time.Duration {
	return time.Duration(c.MaxIntervalMS) * time.Millisecond
}

// DraftDelay returns the draft write debounce.
func (c PersistConfig) DraftDelay() time.Duration {
	return time.Duration(c.DraftDebounceMS) * time.Millisecond
}

// SettingsDelay returns the settings write debounce.
func (c PersistConfig) SettingsDelay() time.Duration {
	return time.Duration(c.SettingsDebounceMS) * time.Millisecond
}
