// Package testing holds helpers shared by the package tests.
package testing

import (
	"fmt"
	"strings"
	"sync"

	"github.com/bitrise-io/go-utils/v2/log"
)

// Level names a recorded log call.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelDone  Level = "done"
	LevelPrint Level = "print"
)

// Entry is one recorded log line.
type Entry struct {
	Level   Level
	Message string
}

// Logger records formatted log calls and forwards them to a real logger.
type Logger struct {
	log.Logger

	mu      sync.Mutex
	entries []Entry
}

// NewLogger returns a recording logger that forwards to log.NewLogger().
func NewLogger() *Logger {
	return &Logger{Logger: log.NewLogger()}
}

func (l *Logger) record(level Level, format string, v []interface{}) {
	l.mu.Lock()
	l.entries = append(l.entries, Entry{Level: level, Message: fmt.Sprintf(format, v...)})
	l.mu.Unlock()
}

// Debugf ...
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.record(LevelDebug, format, v)
	l.Logger.Debugf(format, v...)
}

// Infof ...
func (l *Logger) Infof(format string, v ...interface{}) {
	l.record(LevelInfo, format, v)
	l.Logger.Infof(format, v...)
}

// Warnf ...
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.record(LevelWarn, format, v)
	l.Logger.Warnf(format, v...)
}

// Errorf ...
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.record(LevelError, format, v)
	l.Logger.Errorf(format, v...)
}

// Donef ...
func (l *Logger) Donef(format string, v ...interface{}) {
	l.record(LevelDone, format, v)
	l.Logger.Donef(format, v...)
}

// Printf ...
func (l *Logger) Printf(format string, v ...interface{}) {
	l.record(LevelPrint, format, v)
	l.Logger.Printf(format, v...)
}

// Messages returns the recorded messages of the given level in call order.
func (l *Logger) Messages(level Level) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []string
	for _, e := range l.entries {
		if e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}

// Contains reports whether a message of the given level contains substr.
func (l *Logger) Contains(level Level, substr string) bool {
	for _, m := range l.Messages(level) {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}
