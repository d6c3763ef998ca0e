package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

func (l Level) zap() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	case LevelFatal:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

type Logger struct {
	base  *zap.Logger
	sugar *zap.SugaredLogger
}

func New(filePath string, level Level, includeStdout bool) (*Logger, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.ConsoleSeparator = " "
	encoder := zapcore.NewConsoleEncoder(encCfg)

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.AddSync(f), level.zap()),
	}

	// Write to Stdout for Docker/CLI if enabled AND level is Info or higher
	// This prevents Debug spam from breaking the progress bar
	if includeStdout {
		stdoutLevel := max(level, LevelInfo)
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), stdoutLevel.zap()))
	}

	return fromZap(zap.New(zapcore.NewTee(cores...))), nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return fromZap(zap.NewNop())
}

func fromZap(z *zap.Logger) *Logger {
	return &Logger{base: z, sugar: z.Sugar()}
}

func ParseLevel(lvl string) Level {
	switch strings.ToLower(lvl) {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l *Logger) Debug(f string, v ...any) { l.sugar.Debugf(f, v...) }
func (l *Logger) Info(f string, v ...any)  { l.sugar.Infof(f, v...) }
func (l *Logger) Warn(f string, v ...any)  { l.sugar.Warnf(f, v...) }
func (l *Logger) Error(f string, v ...any) { l.sugar.Errorf(f, v...) }
func (l *Logger) Fatal(f string, v ...any) { l.sugar.Fatalf(f, v...) }

// With returns a child logger that tags every line with key=value.
func (l *Logger) With(key string, value any) *Logger {
	return fromZap(l.base.With(zap.Any(key, value)))
}

// Group logs a titled block of related lines as a single entry.
func (l *Logger) Group(title string, lines ...string) {
	l.base.Info(title, zap.Strings("lines", lines))
}

// Zap exposes the underlying logger for libraries that take one.
func (l *Logger) Zap() *zap.Logger { return l.base }

func (l *Logger) Sync() error { return l.base.Sync() }

func (l *Logger) Write(p []byte) (n int, err error) {
	// Echo and other libraries often include a newline at the end
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		l.Info("%s", msg)
	}
	return len(p), nil
}
