// Package logger builds the zap loggers used by memhub commands.
package logger

import (
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a debug-level console logger writing to w.
func New(w io.Writer) *zap.Logger {
	return zap.New(zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig()),
		zapcore.Lock(zapcore.AddSync(w)),
		zapcore.DebugLevel,
	))
}

func encoderConfig() zapcore.EncoderConfig {
	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = func(ts time.Time, encoder zapcore.PrimitiveArrayEncoder) {
		encoder.AppendString(ts.UTC().Format(time.RFC3339))
	}
	config.EncodeDuration = func(d time.Duration, encoder zapcore.PrimitiveArrayEncoder) {
		encoder.AppendString(d.String())
	}
	return config
}

// Config selects the log format and minimum level.
type Config struct {
	Format string        `mapstructure:"format"`
	Level  zapcore.Level `mapstructure:"level"`
}

// NewConfig returns the default configuration.
func NewConfig() Config {
	return Config{Format: "auto", Level: zapcore.InfoLevel}
}

// New builds a logger writing to w. Format "auto" selects console output.
func (c Config) New(w io.Writer) (*zap.Logger, error) {
	var encoder zapcore.Encoder
	switch c.Format {
	case "", "auto", "console":
		encoder = zapcore.NewConsoleEncoder(encoderConfig())
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig())
	default:
		return nil, fmt.Errorf("unknown log format: %q", c.Format)
	}
	return zap.New(zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(w)), c.Level)), nil
}

// ParseLevel parses a level name; the empty string selects info.
func ParseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return l, err
	}
	return l, nil
}
