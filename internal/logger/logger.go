package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// Environment variable to configure log file path.
const envLogPath = "WEBCACHE_LOG"

var (
	mu            sync.Mutex
	std           = zerolog.Nop()
	logFile       *os.File
	isInitialized bool
)

// InitFromEnv initializes the logger using WEBCACHE_LOG or a default path.
func InitFromEnv() error {
	return Init(PathFromEnv())
}

// PathFromEnv returns WEBCACHE_LOG, or webcache-mcp.log next to the executable.
func PathFromEnv() string {
	if path := os.Getenv(envLogPath); path != "" {
		return path
	}
	if exePath, err := os.Executable(); err == nil {
		return filepath.Join(filepath.Dir(exePath), "webcache-mcp.log")
	}
	return "./webcache-mcp.log"
}

// Init initializes the logger to write JSON lines to the provided file path.
// It creates parent directories if needed and opens the file in append mode.
func Init(path string) error {
	mu.Lock()
	defer mu.Unlock()
	if isInitialized {
		return nil
	}
	if err := ensureParentDir(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	logFile = f
	setOutput(f)
	return nil
}

// InitWriter points the logger at w instead of a file.
func InitWriter(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	setOutput(w)
}

func setOutput(w io.Writer) {
	std = zerolog.New(w).With().Timestamp().Logger()
	isInitialized = true
}

// SetLevel parses a zerolog level name ("debug", "info", ...).
func SetLevel(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// Close closes the underlying log file, if open.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	std = zerolog.Nop()
	isInitialized = false
	if logFile != nil {
		err := logFile.Close()
		logFile = nil
		return err
	}
	return nil
}

// L returns the structured logger.
func L() *zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	l := std
	return &l
}

// Printf logs a formatted message at info level.
func Printf(format string, args ...any) { Infof(format, args...) }

func Debugf(format string, args ...any) { L().Debug().Msgf(format, args...) }

// Infof logs informational messages.
func Infof(format string, args ...any) { L().Info().Msgf(format, args...) }

// Warnf logs warnings.
func Warnf(format string, args ...any) { L().Warn().Msgf(format, args...) }

// Errorf logs errors.
func Errorf(format string, args ...any) { L().Error().Msgf(format, args...) }

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
