package monitoring

import (
	"log"
	"sync"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// OnceLogger emits a message at most once per key. Ingest uses it to warn
// about a malformed or missing field once per input file rather than once per
// row.
type OnceLogger struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewOnceLogger returns an empty OnceLogger.
func NewOnceLogger() *OnceLogger {
	return &OnceLogger{seen: make(map[string]struct{})}
}

// Warnf logs through Logf the first time key is seen and reports whether the
// message was emitted.
func (o *OnceLogger) Warnf(key, format string, v ...interface{}) bool {
	o.mu.Lock()
	if _, ok := o.seen[key]; ok {
		o.mu.Unlock()
		return false
	}
	o.seen[key] = struct{}{}
	o.mu.Unlock()

	Logf(format, v...)
	return true
}

// Count returns how many distinct keys have been warned about.
func (o *OnceLogger) Count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.seen)
}
