// Package logger provides the structured logging facade used across watchpost.
package logger

import (
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field is a single structured logging attribute.
type Field = zap.Field

// LogLevel controls the minimum severity that is written.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Output formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Logger is the logging interface handed to every component.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
	Sync() error
}

// Field constructors.
var (
	String  = zap.String
	Int     = zap.Int
	Int64   = zap.Int64
	Uint64  = zap.Uint64
	Float64 = zap.Float64
	Bool    = zap.Bool
	Any     = zap.Any
	Time    = zap.Time
)

// Error attaches err under the "error" key.
func Error(err error) Field {
	return zap.Error(err)
}

// Duration attaches d in human-readable form.
func Duration(key string, d time.Duration) Field {
	return zap.Stringer(key, d)
}

type zapLogger struct {
	z *zap.Logger
}

// NewZapLogger builds a Logger that writes to w in the given format.
// Unknown levels fall back to info, unknown formats to JSON.
func NewZapLogger(w io.Writer, level LogLevel, format string) Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if strings.EqualFold(format, FormatConsole) {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(w), zap.NewAtomicLevelAt(parseLevel(level)))
	return &zapLogger{z: zap.New(core)}
}

// NewNop returns a Logger that discards everything.
func NewNop() Logger {
	return &zapLogger{z: zap.NewNop()}
}

// Wrap adapts an existing zap logger.
func Wrap(z *zap.Logger) Logger {
	if z == nil {
		return NewNop()
	}
	return &zapLogger{z: z}
}

func parseLevel(level LogLevel) zapcore.Level {
	switch LogLevel(strings.ToLower(string(level))) {
	case LogLevelDebug:
		return zapcore.DebugLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	case LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func (l *zapLogger) Debug(msg string, fields ...Field) { l.z.Debug(msg, fields...) }
func (l *zapLogger) Info(msg string, fields ...Field)  { l.z.Info(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...Field) { l.z.Error(msg, fields...) }

func (l *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{z: l.z.With(fields...)}
}

func (l *zapLogger) Sync() error {
	return l.z.Sync()
}
