package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap logger
type Logger struct {
	*zap.Logger
}

// wrapperSkip reports the caller of the Logger methods instead of logger.go.
var wrapperSkip = zap.AddCallerSkip(1)

// Options controls how the underlying zap logger is built
type Options struct {
	Level  string // debug, info, warn, error
	Format string // json or console
}

// NewLogger creates a new logger instance with production defaults
func NewLogger() *Logger {
	return New(Options{Level: "info", Format: "json"})
}

// New builds a logger from the logging section of the config
func New(opts Options) *Logger {
	config := zap.NewProductionConfig()
	if opts.Format == "console" {
		config.Encoding = "console"
	}
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.StacktraceKey = "" // Disable stacktrace by default

	level, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(level)

	logger, err := config.Build(wrapperSkip)
	if err != nil {
		panic(err)
	}

	return &Logger{
		Logger: logger,
	}
}

// NewNop returns a logger that discards everything, used by tests and tools
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Info logs a message at info level
func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.Logger.Info(msg, fields...)
}

// Error logs a message at error level
func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.Logger.Error(msg, fields...)
}

// Fatal logs a message at fatal level and then calls os.Exit(1)
func (l *Logger) Fatal(msg string, fields ...zap.Field) {
	l.Logger.Fatal(msg, fields...)
}

// With creates a child logger and adds structured context to it
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{
		Logger: l.Logger.With(fields...),
	}
}

// Zap returns the underlying logger without the wrapper's caller skip, for
// packages that log through *zap.Logger directly.
func (l *Logger) Zap() *zap.Logger {
	return l.Logger.WithOptions(zap.AddCallerSkip(-1))
}

// Sync flushes any buffered log entries
func (l *Logger) Sync() error {
	return l.Logger.Sync()
}
