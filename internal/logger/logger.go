package logger

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is a wrapper around zap.Logger to provide a consistent interface
type Logger struct {
	*zap.Logger
}

// With creates a new Logger with additional fields
func (l *Logger) With(fields ...zapcore.Field) *Logger {
	return &Logger{
		Logger: l.Logger.With(fields...),
	}
}

// Component adds a component field to the logger
func (l *Logger) Component(component string) *Logger {
	return &Logger{
		Logger: l.Logger.With(zap.String("component", component)),
	}
}

// Options tune where the logger writes. Zero values fall back to the
// LOG_LEVEL, LOG_FORMAT and LOG_FILE environment variables.
type Options struct {
	Level  string
	Format string
	// File, when set, tees every entry into a size-rotated file.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// New creates a new logger based on the environment configuration
func New() *Logger {
	return NewWithOptions(Options{})
}

func NewWithOptions(opts Options) *Logger {
	if opts.Level == "" {
		opts.Level = os.Getenv("LOG_LEVEL")
	}
	if opts.Format == "" {
		opts.Format = os.Getenv("LOG_FORMAT")
	}
	if opts.File == "" {
		opts.File = os.Getenv("LOG_FILE")
	}
	level := parseLevel(opts.Level)

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "time"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeDuration = zapcore.StringDurationEncoder
	encoderCfg.CallerKey = "caller"
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var encoder zapcore.Encoder
	switch strings.ToLower(opts.Format) {
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	default:
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), level),
	}

	// The file sink is always JSON so it can be shipped as-is.
	if opts.File != "" {
		if opts.MaxSizeMB <= 0 {
			opts.MaxSizeMB = 100
		}
		if opts.MaxBackups <= 0 {
			opts.MaxBackups = 5
		}
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderCfg),
			zapcore.AddSync(rotator),
			level,
		))
	}

	zapLogger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))

	return &Logger{
		Logger: zapLogger,
	}
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Field creation helpers
func String(key, val string) zapcore.Field {
	return zap.String(key, val)
}

func Strings(key string, val []string) zapcore.Field {
	return zap.Strings(key, val)
}

func Int(key string, val int) zapcore.Field {
	return zap.Int(key, val)
}

func Int32(key string, val int32) zapcore.Field {
	return zap.Int32(key, val)
}

func Float64(key string, val float64) zapcore.Field {
	return zap.Float64(key, val)
}

func Bool(key string, val bool) zapcore.Field {
	return zap.Bool(key, val)
}

func Error(err error) zapcore.Field {
	return zap.Error(err)
}

func Any(key string, val interface{}) zapcore.Field {
	return zap.Any(key, val)
}

func Int64(key string, val int64) zapcore.Field {
	return zap.Int64(key, val)
}

func Duration(key string, val time.Duration) zapcore.Field {
	return zap.Duration(key, val)
}

func Stringer(key string, val interface{ String() string }) zapcore.Field {
	return zap.Stringer(key, val)
}
