package logging

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/psantana5/dockerapp/internal/config"
)

type contextKey string

const loggerKey = contextKey("logger")

var (
	mu           sync.RWMutex
	globalLogger *zap.SugaredLogger
)

// Init builds the process-wide logger. Development mode always logs at debug
// level with a console encoder regardless of the configured level.
func Init(cfg config.LoggingConfig, development bool) *zap.SugaredLogger {
	writeSyncer := zapcore.AddSync(os.Stdout)

	var fallbackErr error
	if cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			fallbackErr = err
		} else {
			rotator := &lumberjack.Logger{
				Filename:   cfg.Path,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   cfg.Compress,
			}
			writeSyncer = zapcore.NewMultiWriteSyncer(writeSyncer, zapcore.AddSync(rotator))
		}
	}

	var encoderConfig zapcore.EncoderConfig
	if development {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
	}
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.JSON && !development {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	level := ParseLevel(cfg.Level)
	if development {
		level = zapcore.DebugLevel
	}

	opts := []zap.Option{zap.AddCaller()}
	if development {
		opts = append(opts, zap.Development())
	}

	logger := zap.New(zapcore.NewCore(encoder, writeSyncer, level), opts...).Sugar()
	if fallbackErr != nil {
		logger.Warnf("Failed to create log directory, logging to stdout only: %v", fallbackErr)
	}

	mu.Lock()
	globalLogger = logger
	mu.Unlock()

	return logger
}

// ParseLevel maps a level name to a zap level. Unknown names mean info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Sync flushes any buffered log entries.
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if globalLogger != nil {
		return globalLogger.Sync()
	}
	return nil
}

// Get returns the logger from ctx, the global logger, or a development
// logger if Init was never called.
func Get(ctx context.Context) *zap.SugaredLogger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey).(*zap.SugaredLogger); ok {
			return logger
		}
	}

	mu.RLock()
	logger := globalLogger
	mu.RUnlock()
	if logger != nil {
		return logger
	}

	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewExample().Sugar()
	}
	return l.Sugar()
}

// WithContext adds logger to ctx.
func WithContext(ctx context.Context, logger *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}
