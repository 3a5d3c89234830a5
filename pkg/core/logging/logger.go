// ============================================================================
// grpc-sample - gRPC Go Samples
// ============================================================================
//
// Package:     logging
// Description: Structured key/value logger shared by all samples
// Author:      Mike Stoffels with Claude
// Created:     2025-12-06
// License:     MIT
// ============================================================================

package logging

import (
	"io"
	"os"
	"sync"
	"time"
)

// Sink receives every entry that passes the level filter, in addition to
// the formatted output.
type Sink interface {
	Write(entry *Entry) error
	Close() error
}

// core is shared by all loggers so Configure takes effect on loggers that
// were created in package-level vars before main ran.
type core struct {
	mu        sync.RWMutex
	writeMu   sync.Mutex
	level     Level
	formatter Formatter
	output    io.Writer
	sinks     []Sink
	now       func() time.Time
}

var std = &core{
	level:     LevelInfo,
	formatter: formatterFor(FormatJSON),
	output:    os.Stderr,
	now:       time.Now,
}

// Logger is a named logger carrying persistent fields
type Logger struct {
	core   *core
	name   string
	fields Fields
}

// New creates a named logger backed by the shared configuration
func New(name string) *Logger {
	return &Logger{core: std, name: name}
}

// NewWithOutput creates a logger with its own configuration, writing to w.
// Mostly useful in tests.
func NewWithOutput(name string, w io.Writer, level Level, format Format) *Logger {
	return &Logger{
		core: &core{
			level:     level,
			formatter: formatterFor(format),
			output:    w,
			now:       time.Now,
		},
		name: name,
	}
}

// Name returns the logger name
func (l *Logger) Name() string {
	return l.name
}

// Named returns a child logger whose name is "<parent>.<name>"
func (l *Logger) Named(name string) *Logger {
	child := l.clone()
	if l.name != "" {
		child.name = l.name + "." + name
	} else {
		child.name = name
	}
	return child
}

// With returns a logger that adds the key/value pairs to every entry
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	child := l.clone()
	for k, v := range toFields(keysAndValues...) {
		child.fields[k] = v
	}
	return child
}

// WithField returns a logger that adds one field to every entry
func (l *Logger) WithField(key string, value interface{}) *Logger {
	child := l.clone()
	child.fields[key] = value
	return child
}

// WithFields returns a logger that adds fields to every entry
func (l *Logger) WithFields(fields Fields) *Logger {
	child := l.clone()
	for k, v := range fields {
		child.fields[k] = v
	}
	return child
}

func (l *Logger) clone() *Logger {
	fields := make(Fields, len(l.fields))
	for k, v := range l.fields {
		fields[k] = v
	}
	return &Logger{core: l.core, name: l.name, fields: fields}
}

// Trace logs a trace message
func (l *Logger) Trace(msg string, keysAndValues ...interface{}) {
	l.log(LevelTrace, msg, keysAndValues)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.log(LevelDebug, msg, keysAndValues)
}

// Info logs an info message
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.log(LevelInfo, msg, keysAndValues)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.log(LevelWarn, msg, keysAndValues)
}

// Error logs an error message
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.log(LevelError, msg, keysAndValues)
}

// Fatal logs a fatal message and exits the program
func (l *Logger) Fatal(msg string, keysAndValues ...interface{}) {
	l.log(LevelFatal, msg, keysAndValues)
	os.Exit(1)
}

// Enabled reports whether entries at level would be written
func (l *Logger) Enabled(level Level) bool {
	l.core.mu.RLock()
	defer l.core.mu.RUnlock()
	return level >= l.core.level
}

func (l *Logger) log(level Level, msg string, keysAndValues []interface{}) {
	c := l.core
	c.mu.RLock()
	if level < c.level {
		c.mu.RUnlock()
		return
	}
	formatter, output, sinks, now := c.formatter, c.output, c.sinks, c.now
	c.mu.RUnlock()

	entry := &Entry{
		Timestamp: now(),
		Level:     level,
		Message:   msg,
		Logger:    l.name,
		Fields:    make(Fields, len(l.fields)+len(keysAndValues)/2),
	}
	for k, v := range l.fields {
		entry.Fields[k] = v
	}
	for k, v := range toFields(keysAndValues...) {
		entry.Fields[k] = v
	}

	if formatted, err := formatter.Format(entry); err == nil {
		c.writeMu.Lock()
		output.Write(formatted)
		c.writeMu.Unlock()
	}
	for _, s := range sinks {
		s.Write(entry)
	}
}

// toFields converts key-value pairs to Fields. A trailing key without a
// value is kept under "!BADKEY".
func toFields(keysAndValues ...interface{}) Fields {
	if len(keysAndValues) == 0 {
		return nil
	}

	fields := make(Fields, len(keysAndValues)/2+1)
	for i := 0; i < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if i+1 >= len(keysAndValues) {
			fields["!BADKEY"] = keysAndValues[i]
			break
		}
		if !ok {
			continue
		}
		fields[key] = keysAndValues[i+1]
	}
	return fields
}
