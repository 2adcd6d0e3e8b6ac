package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger - логгер с парами ключ/значение, которым пользуются все слои сервиса
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	With(keysAndValues ...any) Logger
	Sync() error
}

// Config содержит настройки логгера
type Config struct {
	Level      string `mapstructure:"level" validate:"required,oneof=debug info warn error fatal"`
	Encoding   string `mapstructure:"encoding" validate:"required,oneof=json console"`
	OutputPath string `mapstructure:"output_path"`
}

type zapLogger struct {
	sugar *zap.SugaredLogger
}

// New создает логгер с заданными настройками
func New(cfg Config) (Logger, error) {
	// Преобразовываем строковый уровень логирования в zapcore.Level
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	outputPaths := []string{"stdout"}
	if cfg.OutputPath != "" {
		outputPaths = append(outputPaths, cfg.OutputPath)
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       false,
		Encoding:          cfg.Encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputPaths,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     false,
		DisableStacktrace: level > zapcore.DebugLevel,
	}

	log, err := zapConfig.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return &zapLogger{sugar: log.Sugar()}, nil
}

// NewDevelopment логгер для локального запуска
func NewDevelopment() Logger {
	log, err := New(Config{Level: "debug", Encoding: "console"})
	if err != nil {
		return NewNop()
	}
	return log
}

// NewNop возвращает логгер, который ничего не пишет. Используется в тестах.
func NewNop() Logger {
	return &zapLogger{sugar: zap.NewNop().Sugar()}
}

// FromZap оборачивает уже существующий *zap.Logger
func FromZap(l *zap.Logger) Logger {
	return &zapLogger{sugar: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (l *zapLogger) Debug(msg string, keysAndValues ...any) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l *zapLogger) Info(msg string, keysAndValues ...any) {
	l.sugar.Infow(msg, keysAndValues...)
}

func (l *zapLogger) Warn(msg string, keysAndValues ...any) {
	l.sugar.Warnw(msg, keysAndValues...)
}

func (l *zapLogger) Error(msg string, keysAndValues ...any) {
	l.sugar.Errorw(msg, keysAndValues...)
}

// With создает новый логгер с дополнительными полями
func (l *zapLogger) With(keysAndValues ...any) Logger {
	return &zapLogger{sugar: l.sugar.With(keysAndValues...)}
}

// Sync сбрасывает записи из буфера логгера
func (l *zapLogger) Sync() error {
	return l.sugar.Sync()
}
