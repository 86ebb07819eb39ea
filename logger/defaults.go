package logger

import (
	"fmt"
	"log"
	"regexp"
	"sync/atomic"
)

// urlRegex matches absolute URLs so they can be redacted from log lines
// when safe-mode is enabled. Origin URLs routinely end up in error
// messages, and operators running this proxy in front of paid upstreams
// don't always want them sitting in shared logs.
var urlRegex = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9+.-]*:\/\/[a-zA-Z0-9+%/.\-:_?&=#@+]+`)

func cleanString(text string) string {
	return urlRegex.ReplaceAllString(text, "[redacted url]")
}

// DefaultLogger is the standard-library-backed Logger. Debug and safe
// mode are atomic flags set at construction time (see NewDefault) and
// changeable at runtime via SetDebug/SetSafe; they are never read from
// the environment.
type DefaultLogger struct {
	debug atomic.Bool
	safe  atomic.Bool
}

// Default is a ready-to-use logger with debug and safe mode both off;
// callers that need config-driven behavior should use NewDefault instead.
var Default = NewDefault(false, false)

// NewDefault constructs a DefaultLogger with the given debug/safe flags.
func NewDefault(debug, safe bool) *DefaultLogger {
	l := &DefaultLogger{}
	l.debug.Store(debug)
	l.safe.Store(safe)
	return l
}

// SetDebug toggles debug-level output at runtime.
func (l *DefaultLogger) SetDebug(enabled bool) {
	l.debug.Store(enabled)
}

// SetSafe toggles URL-redacting output at runtime.
func (l *DefaultLogger) SetSafe(enabled bool) {
	l.safe.Store(enabled)
}

func (l *DefaultLogger) safeString(s string) string {
	if l.safe.Load() {
		return cleanString(s)
	}
	return s
}

func (l *DefaultLogger) Log(format string) {
	log.Println(l.safeString(fmt.Sprintf("[INFO] %s", format)))
}

func (l *DefaultLogger) Logf(format string, v ...any) {
	log.Println(l.safeString(fmt.Sprintf("[INFO] %s", fmt.Sprintf(format, v...))))
}

func (l *DefaultLogger) Debug(format string) {
	if l.debug.Load() {
		log.Println(l.safeString(fmt.Sprintf("[DEBUG] %s", format)))
	}
}

func (l *DefaultLogger) Debugf(format string, v ...any) {
	if l.debug.Load() {
		log.Println(l.safeString(fmt.Sprintf("[DEBUG] %s", fmt.Sprintf(format, v...))))
	}
}

func (l *DefaultLogger) Error(format string) {
	log.Println(l.safeString(fmt.Sprintf("[ERROR] %s", format)))
}

func (l *DefaultLogger) Errorf(format string, v ...any) {
	log.Println(l.safeString(fmt.Sprintf("[ERROR] %s", fmt.Sprintf(format, v...))))
}

func (l *DefaultLogger) Warn(format string) {
	log.Println(l.safeString(fmt.Sprintf("[WARN] %s", format)))
}

func (l *DefaultLogger) Warnf(format string, v ...any) {
	log.Println(l.safeString(fmt.Sprintf("[WARN] %s", fmt.Sprintf(format, v...))))
}

func (l *DefaultLogger) Fatal(format string) {
	log.Fatal(l.safeString(fmt.Sprintf("[FATAL] %s", format)))
}

func (l *DefaultLogger) Fatalf(format string, v ...any) {
	log.Fatal(l.safeString(fmt.Sprintf("[FATAL] %s", fmt.Sprintf(format, v...))))
}
