// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package commons

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the application-wide structured logger. The leveled methods
// (Debug/Info/Warn/Error/Fatal) take a message followed by alternating
// key/value pairs; the ...f variants are printf-style; the ...w variants are
// explicit key-value forms.
type Logger interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
	Fatal(args ...interface{})

	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})

	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})

	Sync() error
}

// Option configures NewApplicationLogger.
type Option func(*loggerOptions)

type loggerOptions struct {
	name  string
	path  string
	level string
}

// Name sets the logger/service name attached to every entry.
func Name(name string) Option {
	return func(o *loggerOptions) { o.name = name }
}

// Path enables rotated file output under the given directory. When empty,
// entries go to stderr only.
func Path(path string) Option {
	return func(o *loggerOptions) { o.path = path }
}

// Level sets the minimum log level ("debug", "info", "warn", "error").
func Level(level string) Option {
	return func(o *loggerOptions) { o.level = level }
}

// File rotation limits for the lumberjack sink.
const (
	logMaxSizeMB   = 100
	logMaxBackups  = 5
	logMaxAgeDays  = 28
	logCompressOld = true
)

// applicationLogger adapts a zap sugared logger to the Logger interface.
type applicationLogger struct {
	sugar *zap.SugaredLogger
}

// NewApplicationLogger builds the standard application logger: console
// encoding on stderr, plus a size-rotated file (lumberjack) when Path is set.
func NewApplicationLogger(opts ...Option) (Logger, error) {
	o := loggerOptions{
		name:  "streamhub",
		level: "info",
	}
	for _, opt := range opts {
		opt(&o)
	}

	level, err := parseLevel(o.level)
	if err != nil {
		return nil, err
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderCfg),
			zapcore.Lock(os.Stderr),
			level,
		),
	}

	if o.path != "" {
		if err := os.MkdirAll(o.path, 0o755); err != nil {
			return nil, fmt.Errorf("could not create log directory: %w", err)
		}
		fileSink := &lumberjack.Logger{
			Filename:   filepath.Join(o.path, o.name+".log"),
			MaxSize:    logMaxSizeMB,
			MaxBackups: logMaxBackups,
			MaxAge:     logMaxAgeDays,
			Compress:   logCompressOld,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderCfg),
			zapcore.AddSync(fileSink),
			level,
		))
	}

	zl := zap.New(zapcore.NewTee(cores...)).Named(o.name)
	return &applicationLogger{sugar: zl.Sugar()}, nil
}

func parseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "fatal":
		return zapcore.FatalLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// message splits the leading message from trailing key/value pairs.
func message(args []interface{}) (string, []interface{}) {
	if len(args) == 0 {
		return "", nil
	}
	return fmt.Sprint(args[0]), args[1:]
}

func (l *applicationLogger) Debug(args ...interface{}) {
	msg, kv := message(args)
	l.sugar.Debugw(msg, kv...)
}

func (l *applicationLogger) Info(args ...interface{}) {
	msg, kv := message(args)
	l.sugar.Infow(msg, kv...)
}

func (l *applicationLogger) Warn(args ...interface{}) {
	msg, kv := message(args)
	l.sugar.Warnw(msg, kv...)
}

func (l *applicationLogger) Error(args ...interface{}) {
	msg, kv := message(args)
	l.sugar.Errorw(msg, kv...)
}

func (l *applicationLogger) Fatal(args ...interface{}) {
	msg, kv := message(args)
	l.sugar.Fatalw(msg, kv...)
}

func (l *applicationLogger) Debugf(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

func (l *applicationLogger) Infof(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

func (l *applicationLogger) Warnf(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

func (l *applicationLogger) Errorf(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

func (l *applicationLogger) Fatalf(format string, args ...interface{}) {
	l.sugar.Fatalf(format, args...)
}

func (l *applicationLogger) Debugw(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l *applicationLogger) Infow(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

func (l *applicationLogger) Warnw(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}

func (l *applicationLogger) Errorw(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}

func (l *applicationLogger) Sync() error {
	return l.sugar.Sync()
}
