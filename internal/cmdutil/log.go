package cmdutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fjl/midisds/sds"
)

// ParseLevel parses a log level name: error, warn, info, debug or trace.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "error":
		return slog.LevelError, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "trace":
		return sds.LevelTrace, nil
	default:
		return 0, fmt.Errorf("invalid log level %q", name)
	}
}

// NewLogger creates a text logger writing to w.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		AddSource:   level <= slog.LevelDebug,
		ReplaceAttr: replaceLevel,
	})
	return slog.New(h)
}

// SetupLogging installs the process-wide logger. It is called once at
// startup, before any transfer begins.
func SetupLogging(level string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	slog.SetDefault(NewLogger(os.Stderr, lvl))
	return nil
}

func replaceLevel(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey && len(groups) == 0 {
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl <= sds.LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}

// Fatal logs msg at error level and exits with ExitUsage.
func Fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(ExitUsage)
}
