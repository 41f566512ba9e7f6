package logger

import (
	"context"
	"fmt"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the application logger. Ctx(ctx) adds trace and span ids when
// the context carries a span.
type Logger struct {
	*otelzap.Logger
	ServiceName string
}

func New(serviceName, level string) (*Logger, error) {
	lvl, err := zapcore.ParseLevel(level)

	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(lvl)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.TimeKey = "timestamp"
	config.InitialFields = map[string]interface{}{"service": serviceName}

	zapLogger, err := config.Build()

	if err != nil {
		return nil, fmt.Errorf("failed to create zap logger: %w", err)
	}

	return &Logger{
		Logger:      otelzap.New(zapLogger, otelzap.WithMinLevel(lvl)),
		ServiceName: serviceName,
	}, nil
}

func NewNop() *Logger {
	return &Logger{
		Logger:      otelzap.New(zap.NewNop()),
		ServiceName: "test",
	}
}

func (l *Logger) Sync() error {
	return l.Logger.Sync()
}

func (l *Logger) ErrorWithTrace(ctx context.Context, msg string, err error, fields ...zap.Field) {
	l.Ctx(ctx).Error(msg, append(fields, zap.Error(err))...)
}
