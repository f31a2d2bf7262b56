// Package observability holds the process-wide zap loggers. CLI verbs
// log human-readable output to stderr; the daemon logs structured JSON,
// optionally to a rotated file.
package observability

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// CLILogger is the logger for command-line verbs. It defaults to a nop
// logger until InitCLILogger runs so package init order never matters.
var CLILogger = zap.NewNop()

// Logger is the daemon logger. Nop until InitDaemonLogger runs.
var Logger = zap.NewNop()

// FileSink configures rotated log files for the daemon.
type FileSink struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func parseLevel(level string) zapcore.Level {
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

// InitCLILogger configures CLILogger for interactive use: console
// encoding on stderr, or JSON when jsonFormat is set.
func InitCLILogger(level string, jsonFormat bool) {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	enc := zapcore.NewConsoleEncoder(encCfg)
	if jsonFormat {
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), parseLevel(level))
	CLILogger = zap.New(core)
}

// InitDaemonLogger configures Logger for long-running daemon use:
// JSON encoding, stderr plus an optional rotated file sink.
func InitDaemonLogger(level, format string, sink *FileSink) *zap.Logger {
	var enc zapcore.Encoder
	switch strings.ToLower(format) {
	case "console":
		encCfg := zap.NewDevelopmentEncoderConfig()
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}

	lvl := parseLevel(level)
	ws := zapcore.Lock(os.Stderr)
	if sink != nil && sink.Path != "" {
		rotated := zapcore.AddSync(&lumberjack.Logger{
			Filename:   sink.Path,
			MaxSize:    sink.MaxSizeMB,
			MaxBackups: sink.MaxBackups,
			MaxAge:     sink.MaxAgeDays,
		})
		ws = zapcore.NewMultiWriteSyncer(ws, rotated)
	}

	Logger = zap.New(zapcore.NewCore(enc, ws, lvl))
	return Logger
}

// Sync flushes buffered log entries. Called on process exit.
func Sync() {
	_ = CLILogger.Sync()
	_ = Logger.Sync()
}
