package config

import (
    "fmt"
    "path/filepath"
    "time"
)

// NetConfig contains dialing options.
type NetConfig struct {
    DialBackoffInitialMS int `mapstructure:"dial_backoff_initial_ms" yaml:"dial_backoff_initial_ms"`
    DialBackoffMaxMS     int `mapstructure:"dial_backoff_max_ms" yaml:"dial_backoff_max_ms"`
    DialBackoffJitterMS  int `mapstructure:"dial_backoff_jitter_ms" yaml:"dial_backoff_jitter_ms"`
    // DialAttempts bounds connection attempts; 0 retries until cancelled.
    DialAttempts int `mapstructure:"dial_attempts" yaml:"dial_attempts"`
}

// ProtocolConfig tunes message handling.
type ProtocolConfig struct {
    // Format of outgoing payloads: cbor or json
    Format           string `mapstructure:"format" yaml:"format"`
    RequestTimeoutMS int    `mapstructure:"request_timeout_ms" yaml:"request_timeout_ms"`
    MaxFrameBytes    int    `mapstructure:"max_frame_bytes" yaml:"max_frame_bytes"`
    // InboxSize bounds queued envelopes per connection
    InboxSize int `mapstructure:"inbox_size" yaml:"inbox_size"`
}

// RequestTimeout returns the default request deadline.
func (p ProtocolConfig) RequestTimeout() time.Duration {
    return time.Duration(p.RequestTimeoutMS) * time.Millisecond
}

func (p *ProtocolConfig) validate() error {
    switch p.Format {
    case "", "cbor", "json":
    default:
        return fmt.Errorf("invalid protocol.format: %q", p.Format)
    }
    if p.RequestTimeoutMS < 0 {
        return fmt.Errorf("invalid protocol.request_timeout_ms: %d", p.RequestTimeoutMS)
    }
    if p.MaxFrameBytes < 0 {
        return fmt.Errorf("invalid protocol.max_frame_bytes: %d", p.MaxFrameBytes)
    }
    if p.InboxSize <= 0 {
        p.InboxSize = 256
    }
    return nil
}

// UploadConfig tunes the upload exchange on both sides.
type UploadConfig struct {
    // Dir receives completed uploads; relative paths are under data_dir
    Dir             string `mapstructure:"dir" yaml:"dir"`
    ChunkBytes      int    `mapstructure:"chunk_bytes" yaml:"chunk_bytes"`
    MaxFileBytes    int64  `mapstructure:"max_file_bytes" yaml:"max_file_bytes"`
    MaxSessions     int    `mapstructure:"max_sessions" yaml:"max_sessions"`
    IdleTimeoutMS   int    `mapstructure:"idle_timeout_ms" yaml:"idle_timeout_ms"`
    TombstoneTTLMS  int    `mapstructure:"tombstone_ttl_ms" yaml:"tombstone_ttl_ms"`
    RateBytesPerSec int64  `mapstructure:"rate_bytes_per_sec" yaml:"rate_bytes_per_sec"`
}

func (u UploadConfig) IdleTimeout() time.Duration {
    return time.Duration(u.IdleTimeoutMS) * time.Millisecond
}

func (u UploadConfig) TombstoneTTL() time.Duration {
    return time.Duration(u.TombstoneTTLMS) * time.Millisecond
}

func (u *UploadConfig) validate() error {
    if u.ChunkBytes < 0 || u.MaxFileBytes < 0 || u.MaxSessions < 0 || u.RateBytesPerSec < 0 {
        return fmt.Errorf("invalid upload settings: negative value")
    }
    return nil
}

// UploadDir resolves Upload.Dir against DataDir.
func (c *Config) UploadDir() string {
    if c.Upload.Dir == "" || filepath.IsAbs(c.Upload.Dir) {
        return c.Upload.Dir
    }
    return filepath.Join(c.DataDir, c.Upload.Dir)
}
