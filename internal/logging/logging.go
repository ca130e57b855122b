package logging

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	sugar *zap.SugaredLogger
	once  sync.Once
)

// Logger is the structured logging interface used across the project. Keep
// it small and focused on key/value structured events.
type Logger interface {
	Infow(msg string, keysAndValues ...interface{})
	Debugw(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
	Sync() error
}

// noopLogger does nothing. It is the default so logging calls are safe
// before Init is invoked (and during tests that never call Init).
type noopLogger struct{}

func (noopLogger) Infow(msg string, keysAndValues ...interface{})  {}
func (noopLogger) Debugw(msg string, keysAndValues ...interface{}) {}
func (noopLogger) Warnw(msg string, keysAndValues ...interface{})  {}
func (noopLogger) Errorw(msg string, keysAndValues ...interface{}) {}
func (noopLogger) Sync() error                                     { return nil }

var current Logger = noopLogger{}

// Init initializes the global sugared logger based on LOG_LEVEL and
// redirects the standard library logger into zap. It's safe to call
// multiple times.
func Init() *zap.SugaredLogger {
	once.Do(func() {
		level := strings.ToLower(os.Getenv("LOG_LEVEL"))
		cfg := zap.Config{
			Encoding:         "json",
			EncoderConfig:    zap.NewProductionEncoderConfig(),
			OutputPaths:      []string{"stdout"},
			ErrorOutputPaths: []string{"stderr"},
		}
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.CallerKey = "caller"
		lvl := zap.InfoLevel
		switch level {
		case "debug":
			lvl = zap.DebugLevel
		case "warn":
			lvl = zap.WarnLevel
		case "error":
			lvl = zap.ErrorLevel
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)

		logger, _ := cfg.Build(zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
		// Redirect standard library logs into zap so all logs are unified.
		_ = zap.RedirectStdLog(logger)
		sugar = logger.Sugar()
		current = sugar
	})
	return sugar
}

// Sugar returns the initialized sugared logger (nil if Init was not called).
func Sugar() *zap.SugaredLogger { return sugar }

// SetLogger replaces the package-level logger. Pass nil to restore the
// logger initialized by Init (if any). Useful for tests.
func SetLogger(l Logger) {
	if l == nil {
		if sugar != nil {
			current = sugar
		} else {
			current = noopLogger{}
		}
		return
	}
	current = l
}

func Infow(msg string, keysAndValues ...interface{})  { current.Infow(msg, keysAndValues...) }
func Debugw(msg string, keysAndValues ...interface{}) { current.Debugw(msg, keysAndValues...) }
func Warnw(msg string, keysAndValues ...interface{})  { current.Warnw(msg, keysAndValues...) }
func Errorw(msg string, keysAndValues ...interface{}) { current.Errorw(msg, keysAndValues...) }

// Sync flushes any buffered logs.
func Sync() error { return current.Sync() }
