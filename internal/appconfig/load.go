package appconfig

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("server.endpoint", cfg.Server.Endpoint)
	v.SetDefault("server.handshake_timeout_seconds", cfg.Server.HandshakeTimeoutSeconds)
	v.SetDefault("server.write_timeout_seconds", cfg.Server.WriteTimeoutSeconds)
	v.SetDefault("server.ping_interval_seconds", cfg.Server.PingIntervalSeconds)
	v.SetDefault("server.read_limit_bytes", cfg.Server.ReadLimitBytes)
	v.SetDefault("reconnect.initial_interval_ms", cfg.Reconnect.InitialIntervalMS)
	v.SetDefault("reconnect.max_interval_ms", cfg.Reconnect.MaxIntervalMS)
	v.SetDefault("reconnect.multiplier", cfg.Reconnect.Multiplier)
	v.SetDefault("reconnect.randomization", cfg.Reconnect.Randomization)
	v.SetDefault("reconnect.unreachable_after", cfg.Reconnect.UnreachableAfter)
	v.SetDefault("protocol.joint_compile_run", cfg.Protocol.JointCompileRun)
	v.SetDefault("protocol.drop_stale", cfg.Protocol.DropStale)
	v.SetDefault("persist.draft_debounce_ms", cfg.Persist.DraftDebounceMS)
	v.SetDefault("persist.settings_debounce_ms", cfg.Persist.SettingsDebounceMS)
	v.SetDefault("render.output_dir", cfg.Render.OutputDir)
	v.SetDefault("render.echo_frames", cfg.Render.EchoFrames)
	v.SetDefault("logging.disable_audit_trails", cfg.Logging.DisableAuditTrails)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return Config{}, err
		}
	} else {
		if !v.InConfig("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	endpoint := strings.TrimSpace(cfg.Server.Endpoint)
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "ws" && parsed.Scheme != "wss") {
		return fmt.Errorf("server.endpoint must be a ws:// or wss:// URL, got %q", cfg.Server.Endpoint)
	}
	if cfg.Server.HandshakeTimeoutSeconds < 0 || cfg.Server.WriteTimeoutSeconds < 0 || cfg.Server.PingIntervalSeconds < 0 {
		return fmt.Errorf("server timeouts must not be negative")
	}
	if cfg.Server.ReadLimitBytes < 0 {
		return fmt.Errorf("server.read_limit_bytes must not be negative")
	}
	r := cfg.Reconnect
	if r.InitialIntervalMS < 0 || r.MaxIntervalMS < 0 {
		return fmt.Errorf("reconnect intervals must not be negative")
	}
	if r.MaxIntervalMS < r.InitialIntervalMS {
		return fmt.Errorf("reconnect.max_interval_ms (%d) must be >= reconnect.initial_interval_ms (%d)", r.MaxIntervalMS, r.InitialIntervalMS)
	}
	if r.Multiplier < 1 {
		return fmt.Errorf("reconnect.multiplier must be >= 1, got %v", r.Multiplier)
	}
	if r.Randomization < 0 || r.Randomization > 1 {
		return fmt.Errorf("reconnect.randomization must be within [0, 1], got %v", r.Randomization)
	}
	if r.UnreachableAfter < 0 {
		return fmt.Errorf("reconnect.unreachable_after must not be negative")
	}
	if cfg.Persist.DraftDebounceMS < 0 || cfg.Persist.SettingsDebounceMS < 0 {
		return fmt.Errorf("persist debounce must not be negative")
	}
	if strings.TrimSpace(cfg.StateDir) == "" {
		return fmt.Errorf("state_dir is required")
	}
	if strings.TrimSpace(cfg.Render.OutputDir) == "" {
		return fmt.Errorf("render.output_dir is required")
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.Render.OutputDir = expandEnv(cfg.Render.OutputDir)
	cfg.Server.Endpoint = expandEnv(cfg.Server.Endpoint)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
