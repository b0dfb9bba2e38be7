package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// MaxLogSize is the size above which the log file is emptied at startup.
const MaxLogSize int64 = 1 << 30

type Logger struct {
	*zap.SugaredLogger
}

type Options struct {
	// Verbose lowers the console threshold from warn to debug.
	Verbose bool
	// File is the append-only log file; empty disables file output.
	File string
}

func New(opts Options) (*Logger, error) {
	if opts.File != "" {
		logDir := filepath.Dir(opts.File)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		if _, err := TruncateOversized(opts.File, MaxLogSize); err != nil {
			return nil, fmt.Errorf("failed to truncate log file: %w", err)
		}
	}

	consoleLevel := zapcore.WarnLevel
	if opts.Verbose {
		consoleLevel = zapcore.DebugLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)
	fileEncoder := zapcore.NewJSONEncoder(encoderConfig)

	consoleWriter := zapcore.AddSync(os.Stdout)

	var core zapcore.Core
	if opts.File != "" {
		fileWriter := zapcore.AddSync(rotatingFile(opts.File))
		core = zapcore.NewTee(
			zapcore.NewCore(consoleEncoder, consoleWriter, consoleLevel),
			zapcore.NewCore(fileEncoder, fileWriter, zapcore.DebugLevel),
		)
	} else {
		core = zapcore.NewCore(consoleEncoder, consoleWriter, consoleLevel)
	}

	zapLogger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return &Logger{zapLogger.Sugar()}, nil
}

// rotatingFile caps a long-running process's log at MaxLogSize. Past it the
// file is renamed to <name>-<timestamp>.<ext> and only that one rotated file
// is kept.
func rotatingFile(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    int(MaxLogSize >> 20),
		MaxBackups: 1,
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zap.NewNop().Sugar()}
}

// TruncateOversized empties path when it is larger than limit. A missing
// file is not an error.
func TruncateOversized(path string, limit int64) (bool, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if info.Size() <= limit {
		return false, nil
	}
	if err := os.Truncate(path, 0); err != nil {
		return false, err
	}
	return true, nil
}

// DebugWriter exposes the logger as an io.Writer at debug level, one entry
// per written line. Used for protocol traces.
func (l *Logger) DebugWriter(name string) io.Writer {
	std, err := zap.NewStdLogAt(l.Desugar().Named(name), zapcore.DebugLevel)
	if err != nil {
		return io.Discard
	}
	return std.Writer()
}

func (l *Logger) Close() {
	_ = l.Sync()
}
