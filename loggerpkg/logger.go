// Package loggerpkg provides the shared zap logger of the catalogue operator.
// Packages obtain a named sugared logger once, at package level, and log through it.
package loggerpkg

import (
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger      *zap.Logger
	sugarLogger *zap.SugaredLogger
)

// init builds the logger from RUN_MODE and LOG_OUTPUT.
// RUN_MODE=dev switches to debug level with caller information; anything else logs at info.
// LOG_OUTPUT selects the zap encoding ("console" or "json").
func init() {
	logLevel := zap.DebugLevel
	disableCaller := false
	if runMode := os.Getenv("RUN_MODE"); runMode != "dev" {
		logLevel = zap.InfoLevel
		disableCaller = true
	}

	logOutput := "console"
	if envLogOutput := os.Getenv("LOG_OUTPUT"); envLogOutput != "" {
		logOutput = envLogOutput
	}

	levelEncoder := zapcore.CapitalColorLevelEncoder
	if logOutput == "json" {
		levelEncoder = zapcore.CapitalLevelEncoder
	}

	cfg := zap.Config{
		Development:       !disableCaller,
		DisableStacktrace: disableCaller,
		Encoding:          logOutput,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     disableCaller,
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:     "message",
			LevelKey:       "level",
			TimeKey:        "time",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    "function",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    levelEncoder,
			EncodeTime:     zapcore.RFC3339TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   shortPathCallerEncoder,
		},
		Level: zap.NewAtomicLevelAt(logLevel),
	}
	var err error
	logger, err = cfg.Build()
	if err != nil {
		panic("Failed to build logger: " + err.Error())
	}
	sugarLogger = logger.Sugar()
}

// GetLogger returns the root sugared logger.
func GetLogger() *zap.SugaredLogger {
	return sugarLogger
}

// GetNamedLogger returns a sugared logger scoped to name, e.g. GetNamedLogger("reconciler").
func GetNamedLogger(name string) *zap.SugaredLogger {
	return sugarLogger.Named(name)
}

// Sync flushes buffered log entries. Call it before the process exits.
func Sync() {
	_ = logger.Sync()
}

// shortPathCallerEncoder prints "package/file.go:line" instead of the full import path,
// so "github.com/uri-tech/catalogue-operator/internal/reconciler/reconciler.go:51"
// becomes "reconciler/reconciler.go:51".
func shortPathCallerEncoder(caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
	if !caller.Defined {
		enc.AppendString("undefined")
		return
	}

	segments := strings.Split(caller.FullPath(), "/")
	if len(segments) > 1 {
		enc.AppendString(segments[len(segments)-2] + "/" + segments[len(segments)-1])
		return
	}
	enc.AppendString(caller.File + ":" + strconv.Itoa(caller.Line))
}
