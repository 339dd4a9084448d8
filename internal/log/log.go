package log

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger       *zap.Logger
	sugared      *zap.SugaredLogger
	initOnce     sync.Once
	fileRotation *lumberjack.Logger
)

type Config struct {
	Level      string
	Filename   string // empty disables the JSON file sink
	MaxSize    int    // megabytes
	MaxBackups int
	MaxAge     int // days
}

// Init builds the process logger. Later calls are no-ops.
func Init(cfg *Config) {
	initOnce.Do(func() {
		logger = build(cfg)
		sugared = logger.WithOptions(zap.AddCallerSkip(1)).Sugar()
	})
}

func build(cfg *Config) *zap.Logger {
	level := new(zapcore.Level)
	if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
		*level = zapcore.InfoLevel
	}

	consoleCore := zapcore.NewCore(getEncoder(false), zapcore.AddSync(os.Stdout), level)
	core := consoleCore
	if cfg.Filename != "" {
		maxBackups := cfg.MaxBackups
		// keep 10 backups if not set to avoid running out of disk space
		if maxBackups == 0 {
			maxBackups = 10
		}
		fileRotation = &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize,
			MaxBackups: maxBackups,
			MaxAge:     cfg.MaxAge,
		}
		fileCore := zapcore.NewCore(getEncoder(true), zapcore.AddSync(fileRotation), level)
		core = zapcore.NewTee(consoleCore, fileCore)
	}

	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zap.DPanicLevel))
}

func getEncoder(jsonFormat bool) zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	if jsonFormat {
		return zapcore.NewJSONEncoder(encoderConfig)
	}
	return zapcore.NewConsoleEncoder(encoderConfig)
}

// Logger returns the structured logger, falling back to a no-op logger
// when Init was never called (tests).
func Logger() *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func SugaredLogger() *zap.SugaredLogger {
	if sugared == nil {
		return zap.NewNop().Sugar()
	}
	return sugared
}

// Sync flushes buffered entries and closes the rotation file.
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
	if fileRotation != nil {
		_ = fileRotation.Close()
	}
}

func Debugf(format string, args ...interface{}) {
	SugaredLogger().Debugf(format, args...)
}

func Infof(format string, args ...interface{}) {
	SugaredLogger().Infof(format, args...)
}

func Info(args ...interface{}) {
	SugaredLogger().Info(args...)
}

func Warnf(format string, args ...interface{}) {
	SugaredLogger().Warnf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	SugaredLogger().Errorf(format, args...)
}

func Error(args ...interface{}) {
	SugaredLogger().Error(args...)
}

func Fatalf(format string, args ...interface{}) {
	SugaredLogger().Fatalf(format, args...)
}

// Infow logs with key/value pairs.
func Infow(msg string, keysAndValues ...interface{}) {
	SugaredLogger().Infow(msg, keysAndValues...)
}

func Warnw(msg string, keysAndValues ...interface{}) {
	SugaredLogger().Warnw(msg, keysAndValues...)
}

func Errorw(msg string, keysAndValues ...interface{}) {
	SugaredLogger().Errorw(msg, keysAndValues...)
}
