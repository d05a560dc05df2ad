// Package config provides YAML-based configuration loading for SiS endpoints.
package config

import (
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"

    "github.com/spf13/viper"
    "gopkg.in/yaml.v3"
)

// Config is the root application configuration. It is loaded once and passed
// to the components that need it.
type Config struct {
    // AppName optional logical name of the endpoint
    AppName string `mapstructure:"app_name" yaml:"app_name"`

    // DataDir base directory for persistent data
    DataDir string `mapstructure:"data_dir" yaml:"data_dir"`

    // Log holds logging configuration
    Log LogConfig `mapstructure:"log" yaml:"log"`

    // Transports list the listeners of a server and the dial targets of a client
    Transports []TransportConfig `mapstructure:"transports" yaml:"transports"`

    // Net holds dialing options
    Net NetConfig `mapstructure:"net" yaml:"net"`

    // Protocol tunes message encoding and correlation
    Protocol ProtocolConfig `mapstructure:"protocol" yaml:"protocol"`

    // Upload tunes the file upload exchange
    Upload UploadConfig `mapstructure:"upload" yaml:"upload"`
}

// LogConfig defines logger settings.
type LogConfig struct {
    // Level: debug, info, warn, error
    Level string `mapstructure:"level" yaml:"level"`
    // Format: console or json
    Format string `mapstructure:"format" yaml:"format"`
    // Outputs: list of outputs: stdout, stderr, or file paths
    Outputs []string `mapstructure:"outputs" yaml:"outputs"`

    // Rotation controls file rotation when writing to files
    Rotation RotationConfig `mapstructure:"rotation" yaml:"rotation"`
    // Development toggles development-friendly logging options
    Development bool `mapstructure:"development" yaml:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
    Enable     bool   `mapstructure:"enable" yaml:"enable"`
    Filename   string `mapstructure:"filename" yaml:"filename"`
    MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
    MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
    MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
    Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
    return &Config{
        AppName: "sis-node",
        DataDir: "./data",
        Log: LogConfig{
            Level:       "info",
            Format:      "console",
            Outputs:     []string{"stdout"},
            Development: true,
            Rotation: RotationConfig{
                Enable:     false,
                Filename:   "logs/sis.log",
                MaxSizeMB:  50,
                MaxBackups: 3,
                MaxAgeDays: 28,
                Compress:   true,
            },
        },
        Transports: []TransportConfig{
            {
                Kind:   "tcp",
                Listen: []string{":7788"},
                Dial:   []DialConfig{{Address: "127.0.0.1:7788"}},
            },
        },
        Net:      NetConfig{DialBackoffInitialMS: 500, DialBackoffMaxMS: 30000, DialBackoffJitterMS: 100, DialAttempts: 5},
        Protocol: ProtocolConfig{Format: "cbor", RequestTimeoutMS: 30000, MaxFrameBytes: 1 << 24, InboxSize: 256},
        Upload: UploadConfig{
            Dir:            "uploads",
            ChunkBytes:     64 * 1024,
            MaxFileBytes:   1 << 30,
            MaxSessions:    64,
            IdleTimeoutMS:  120000,
            TombstoneTTLMS: 600000,
        },
    }
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// Environment variables use the prefix SIS and `.`/`-` are replaced with `_`.
// Example: SIS_LOG_LEVEL=debug
func Load(path string) (*Config, error) {
    cfg := Default()

    v := viper.New()
    v.SetConfigType("yaml")
    v.SetEnvPrefix("SIS")
    v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
    v.AutomaticEnv()

    // seed defaults for viper so env-only configs work
    v.SetDefault("app_name", cfg.AppName)
    v.SetDefault("data_dir", cfg.DataDir)
    v.SetDefault("log.level", cfg.Log.Level)
    v.SetDefault("log.format", cfg.Log.Format)
    v.SetDefault("log.outputs", cfg.Log.Outputs)
    v.SetDefault("log.development", cfg.Log.Development)
    v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
    v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
    v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
    v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
    v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
    v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
    v.SetDefault("transports", cfg.Transports)
    v.SetDefault("net.dial_backoff_initial_ms", cfg.Net.DialBackoffInitialMS)
    v.SetDefault("net.dial_backoff_max_ms", cfg.Net.DialBackoffMaxMS)
    v.SetDefault("net.dial_backoff_jitter_ms", cfg.Net.DialBackoffJitterMS)
    v.SetDefault("net.dial_attempts", cfg.Net.DialAttempts)
    v.SetDefault("protocol.format", cfg.Protocol.Format)
    v.SetDefault("protocol.request_timeout_ms", cfg.Protocol.RequestTimeoutMS)
    v.SetDefault("protocol.max_frame_bytes", cfg.Protocol.MaxFrameBytes)
    v.SetDefault("protocol.inbox_size", cfg.Protocol.InboxSize)
    v.SetDefault("upload.dir", cfg.Upload.Dir)
    v.SetDefault("upload.chunk_bytes", cfg.Upload.ChunkBytes)
    v.SetDefault("upload.max_file_bytes", cfg.Upload.MaxFileBytes)
    v.SetDefault("upload.max_sessions", cfg.Upload.MaxSessions)
    v.SetDefault("upload.idle_timeout_ms", cfg.Upload.IdleTimeoutMS)
    v.SetDefault("upload.tombstone_ttl_ms", cfg.Upload.TombstoneTTLMS)
    v.SetDefault("upload.rate_bytes_per_sec", cfg.Upload.RateBytesPerSec)

    // Choose config file
    if path == "" {
        if envPath := os.Getenv("SIS_CONFIG"); envPath != "" {
            path = envPath
        }
    }

    if path != "" {
        v.SetConfigFile(path)
    } else {
        v.SetConfigName("sis")
        v.AddConfigPath(".")
        v.AddConfigPath("./configs")
        if home, err := os.UserHomeDir(); err == nil {
            v.AddConfigPath(filepath.Join(home, ".sis"))
        }
    }

    // Read config file if present; if not found, continue with defaults/env
    if err := v.ReadInConfig(); err != nil {
        var viperConfigFileNotFound viper.ConfigFileNotFoundError
        if !errors.As(err, &viperConfigFileNotFound) {
            return nil, fmt.Errorf("read config: %w", err)
        }
    }

    if err := v.Unmarshal(cfg); err != nil {
        return nil, fmt.Errorf("decode config: %w", err)
    }

    if err := cfg.validate(); err != nil {
        return nil, err
    }
    return cfg, nil
}

func (c *Config) validate() error {
    lvl := strings.ToLower(strings.TrimSpace(c.Log.Level))
    switch lvl {
    case "debug", "info", "warn", "warning", "error":
    default:
        return fmt.Errorf("invalid log.level: %q", c.Log.Level)
    }

    if c.Log.Format == "" {
        c.Log.Format = "console"
    }
    if len(c.Log.Outputs) == 0 {
        c.Log.Outputs = []string{"stdout"}
    }
    for i := range c.Transports {
        c.Transports[i].Kind = strings.ToLower(strings.TrimSpace(c.Transports[i].Kind))
        if c.Transports[i].Kind == "" {
            return fmt.Errorf("transports[%d]: kind is required", i)
        }
    }
    if err := c.Protocol.validate(); err != nil {
        return err
    }
    return c.Upload.validate()
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
    cfg, err := Load(path)
    if err != nil {
        panic(err)
    }
    return cfg
}

// Save writes cfg as YAML to path, creating parent directories.
func Save(cfg *Config, path string) error {
    b, err := Marshal(cfg)
    if err != nil {
        return err
    }
    if dir := filepath.Dir(path); dir != "" {
        if err := os.MkdirAll(dir, 0o755); err != nil {
            return fmt.Errorf("create config dir: %w", err)
        }
    }
    if err := os.WriteFile(path, b, 0o644); err != nil {
        return fmt.Errorf("write config: %w", err)
    }
    return nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
    b, err := yaml.Marshal(cfg)
    if err != nil {
        return nil, fmt.Errorf("encode config: %w", err)
    }
    return b, nil
}
