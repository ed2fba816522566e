package common

import (
	"fmt"

	"github.com/samber/do/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LoggerService struct {
	Logger *zap.Logger
}

func NewLoggerService(i do.Injector) (*LoggerService, error) {
	level := do.MustInvokeNamed[string](i, "log-level")

	logger, err := NewLogger(level)
	if err != nil {
		return nil, err
	}

	return &LoggerService{
		Logger: logger,
	}, nil
}

func NewLogger(level string) (*zap.Logger, error) {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(parsed)
	config.Encoding = "console"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return logger, nil
}

func (s *LoggerService) Shutdown() error {
	// stderr sync fails on some terminals; nothing useful to report.
	_ = s.Logger.Sync()

	return nil
}
