// Package rbhlog is a small leveled logger in the style of the teacher's
// fs/log.go: a LogLevel enum from Emergency down to Debug, package-level
// Errorf/Warnf/Infof/Debugf helpers, and structured key=value formatting via
// LogValue. The level is set with SetLevel; no CLI driver in this module
// sets it from a command-line flag.
package rbhlog

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// LogLevel ranks log severity, most urgent first, matching syslog's scale.
type LogLevel int

// Log levels.
const (
	LogLevelEmergency LogLevel = iota
	LogLevelAlert
	LogLevelCritical
	LogLevelError
	LogLevelWarning
	LogLevelNotice
	LogLevelInfo
	LogLevelDebug
)

var levelNames = [...]string{
	LogLevelEmergency: "EMERGENCY",
	LogLevelAlert:     "ALERT",
	LogLevelCritical:  "CRITICAL",
	LogLevelError:     "ERROR",
	LogLevelWarning:   "WARNING",
	LogLevelNotice:    "NOTICE",
	LogLevelInfo:      "INFO",
	LogLevelDebug:     "DEBUG",
}

func (l LogLevel) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLogLevel maps a level name (case-insensitive) back to a LogLevel.
func ParseLogLevel(s string) (LogLevel, error) {
	s = strings.ToUpper(s)
	for l, name := range levelNames {
		if name == s {
			return LogLevel(l), nil
		}
	}
	return 0, fmt.Errorf("rbhlog: unknown level %q", s)
}

var currentLevel = LogLevelNotice

// SetLevel sets the package-wide log level; messages above it are dropped.
func SetLevel(l LogLevel) { currentLevel = l }

// Level returns the current package-wide log level.
func Level() LogLevel { return currentLevel }

var std = log.New(os.Stderr, "", log.LstdFlags)

func logf(l LogLevel, format string, args ...any) {
	if l > currentLevel {
		return
	}
	std.Printf("%-8s: %s", l, fmt.Sprintf(format, args...))
}

// Errorf logs at LogLevelError.
func Errorf(format string, args ...any) { logf(LogLevelError, format, args...) }

// Warnf logs at LogLevelWarning — the level skip_error downgrades fatal
// per-entry errors to.
func Warnf(format string, args ...any) { logf(LogLevelWarning, format, args...) }

// Infof logs at LogLevelInfo.
func Infof(format string, args ...any) { logf(LogLevelInfo, format, args...) }

// Debugf logs at LogLevelDebug.
func Debugf(format string, args ...any) { logf(LogLevelDebug, format, args...) }

// LogValueItem formats one key=value pair for structured logging, hiding
// the value entirely when constructed via LogValueHide (used for anything
// that shouldn't land in a log line, e.g. a value still borrowed from a
// scratch arena).
type LogValueItem struct {
	key    string
	value  any
	hidden bool
}

// LogValue builds a visible key=value log item.
func LogValue(key string, value any) LogValueItem {
	return LogValueItem{key: key, value: value}
}

// LogValueHide builds a key=value log item whose value never renders.
func LogValueHide(key string, value any) LogValueItem {
	return LogValueItem{key: key, value: value, hidden: true}
}

// String renders "value" (or empty, if hidden) the way %v would.
func (l LogValueItem) String() string {
	if l.hidden {
		return ""
	}
	return fmt.Sprint(l.value)
}
