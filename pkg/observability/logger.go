// Package observability contains logging setup.
package observability

import (
    "os"
    "path/filepath"
    "strings"

    "go.uber.org/zap"
    "go.uber.org/zap/zapcore"
    "gopkg.in/natefinch/lumberjack.v2"

    "github.com/autcn/SiS.Communcation-sub001/pkg/config"
)

// SetupLogger builds a zap.Logger from c, installs it as the global logger and
// redirects the stdlib log package. The caller should defer logger.Sync().
func SetupLogger(c config.LogConfig) (*zap.Logger, error) {
    level := zap.NewAtomicLevelAt(ParseLevel(c.Level))
    encoder := newEncoder(c)

    var cores []zapcore.Core
    for _, out := range c.Outputs {
        cores = append(cores, zapcore.NewCore(encoder, writerFor(out, c), level))
    }

    opts := []zap.Option{
        zap.AddCaller(),
        zap.AddStacktrace(zap.ErrorLevel),
    }
    if c.Development {
        opts = append(opts, zap.Development())
    }

    logger := zap.New(zapcore.NewTee(cores...), opts...)
    zap.ReplaceGlobals(logger)
    _, _ = zap.RedirectStdLogAt(logger, zap.InfoLevel)
    return logger, nil
}

// ParseLevel maps a config level name to a zap level; unknown names yield info.
func ParseLevel(s string) zapcore.Level {
    switch strings.ToLower(strings.TrimSpace(s)) {
    case "debug":
        return zap.DebugLevel
    case "warn", "warning":
        return zap.WarnLevel
    case "error":
        return zap.ErrorLevel
    default:
        return zap.InfoLevel
    }
}

func newEncoder(c config.LogConfig) zapcore.Encoder {
    var encCfg zapcore.EncoderConfig
    if c.Development {
        encCfg = zap.NewDevelopmentEncoderConfig()
        encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
    } else {
        encCfg = zap.NewProductionEncoderConfig()
        encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
    }
    if strings.EqualFold(c.Format, "json") {
        // color codes do not belong in structured output
        encCfg.EncodeLevel = zapcore.LowercaseLevelEncoder
        return zapcore.NewJSONEncoder(encCfg)
    }
    return zapcore.NewConsoleEncoder(encCfg)
}

func writerFor(out string, c config.LogConfig) zapcore.WriteSyncer {
    switch strings.ToLower(out) {
    case "stdout":
        return zapcore.AddSync(os.Stdout)
    case "stderr":
        return zapcore.AddSync(os.Stderr)
    }
    if c.Rotation.Enable {
        name := out
        if strings.TrimSpace(c.Rotation.Filename) != "" {
            name = c.Rotation.Filename
        }
        return zapcore.AddSync(&lumberjack.Logger{
            Filename:   name,
            MaxSize:    atLeast(c.Rotation.MaxSizeMB, 10),
            MaxBackups: atLeast(c.Rotation.MaxBackups, 1),
            MaxAge:     atLeast(c.Rotation.MaxAgeDays, 7),
            Compress:   c.Rotation.Compress,
        })
    }
    if dir := filepath.Dir(out); dir != "." {
        _ = os.MkdirAll(dir, 0o755)
    }
    f, err := os.OpenFile(out, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
    if err != nil {
        return zapcore.AddSync(os.Stderr)
    }
    return zapcore.AddSync(f)
}

func atLeast(v, floor int) int {
    if v < floor {
        return floor
    }
    return v
}
