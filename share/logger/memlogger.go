package logger

import (
	"fmt"
	"sync"
)

type memEntry struct {
	level LogLevel
	msg   string
}

// MemLogger keeps messages in memory while the configured logger does not exist yet.
// Flush replays them in the order they were logged.
type MemLogger struct {
	mu      sync.Mutex
	entries []memEntry
}

func NewMemLogger() *MemLogger {
	return &MemLogger{}
}

func (ml *MemLogger) add(level LogLevel, f string, args ...interface{}) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	ml.entries = append(ml.entries, memEntry{level: level, msg: fmt.Sprintf(f, args...)})
}

func (ml *MemLogger) Debugf(f string, args ...interface{}) {
	ml.add(LogLevelDebug, f, args...)
}

func (ml *MemLogger) Infof(f string, args ...interface{}) {
	ml.add(LogLevelInfo, f, args...)
}

func (ml *MemLogger) Errorf(f string, args ...interface{}) {
	ml.add(LogLevelError, f, args...)
}

func (ml *MemLogger) Len() int {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	return len(ml.entries)
}

func (ml *MemLogger) Flush(l *Logger) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	for _, e := range ml.entries {
		l.Logf(e.level, "%s", e.msg)
	}
	ml.entries = nil
}
