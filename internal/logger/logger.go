package logger

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Environment variables to configure the log file path and level.
const (
	envLogPath  = "UNISHARE_SW_LOG"
	envLogLevel = "UNISHARE_SW_LOG_LEVEL"
)

var (
	mu      sync.RWMutex
	std     = fallback()
	logFile *os.File
)

// fallback writes warnings and errors to stderr until Init is called.
func fallback() *zap.SugaredLogger {
	enc := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stderr), zapcore.WarnLevel)
	return zap.New(core).Sugar()
}

// InitFromEnv initializes the logger using UNISHARE_SW_LOG or a default path.
func InitFromEnv() error {
	path := os.Getenv(envLogPath)
	if path == "" {
		// Default to the directory where the executable is located
		if exePath, err := os.Executable(); err == nil {
			path = filepath.Join(filepath.Dir(exePath), "unishare-sw.log")
		} else {
			path = "./unishare-sw.log"
		}
	}
	return Init(path, parseLevel(os.Getenv(envLogLevel)))
}

// Init initializes the logger to append to the provided file path.
// It creates parent directories if needed. Calling it again is a no-op.
func Init(path string, level zapcore.Level) error {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		return nil
	}
	if err := ensureParentDir(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(f), level)
	logFile = f
	std = zap.New(core).Sugar()
	return nil
}

// Close flushes and closes the underlying log file, if open.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	_ = std.Sync()
	err := logFile.Close()
	logFile = nil
	std = fallback()
	return err
}

func parseLevel(s string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil || s == "" {
		return zapcore.InfoLevel
	}
	return lvl
}

func get() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return std
}

// Debugf logs verbose diagnostics.
func Debugf(format string, args ...any) { get().Debugf(format, args...) }

// Infof logs informational messages.
func Infof(format string, args ...any) { get().Infof(format, args...) }

// Warnf logs warnings.
func Warnf(format string, args ...any) { get().Warnf(format, args...) }

// Errorf logs errors.
func Errorf(format string, args ...any) { get().Errorf(format, args...) }

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
