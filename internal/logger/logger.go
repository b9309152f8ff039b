package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap logger with request-scoped helpers.
type Logger struct {
	Logger *zap.Logger
}

type ctxKey string

// RequestIDKey is the context key under which the request id middleware stores its value.
const RequestIDKey ctxKey = "request_id"

// New builds a logger for the given mode ("production" or anything else for development).
func New(mode string) *Logger {
	var config zap.Config
	if mode == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zapLogger, err := config.Build()
	if err != nil {
		panic(err)
	}
	return &Logger{Logger: zapLogger}
}

// NewNop returns a logger that discards everything. Used by tests.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// WithContext returns a zap logger annotated with the request id carried by ctx.
func (l *Logger) WithContext(ctx context.Context) *zap.Logger {
	if l == nil || l.Logger == nil {
		return zap.NewNop()
	}
	if ctx == nil {
		return l.Logger
	}
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		return l.Logger.With(zap.String(string(RequestIDKey), requestID))
	}
	return l.Logger
}

// Sync flushes buffered entries.
func (l *Logger) Sync() {
	if l == nil || l.Logger == nil {
		return
	}
	_ = l.Logger.Sync()
}
