package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents the severity level of a log message.
type Level int

// Log levels
const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name ("debug", "info", ...) to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	}
	return InfoLevel, fmt.Errorf("log: unknown level %q", s)
}

// Field is a structured key/value pair attached to a log entry.
type Field struct {
	Key   string
	Value interface{}
}

// F builds a Field from an arbitrary value.
func F(key string, value interface{}) Field { return Field{Key: key, Value: value} }

// Str builds a string Field.
func Str(key, value string) Field { return Field{Key: key, Value: value} }

// Int builds an integer Field.
func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Int64 builds an int64 Field.
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

// Dur builds a duration Field.
func Dur(key string, value time.Duration) Field { return Field{Key: key, Value: value.String()} }

// Err builds an error Field.
func Err(err error) Field { return Field{Key: "error", Value: err} }

// Component tags log entries with the emitting component name.
func Component(name string) Field { return Field{Key: "component", Value: name} }

// Logger is the logging interface passed to quill components.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a child logger with the fields attached to every entry.
	With(fields ...Field) Logger

	// SetLevel sets the minimum level emitted.
	SetLevel(level Level)
}

// Entry is a single formatted log record.
type Entry struct {
	Level     Level
	Message   string
	Fields    []Field
	Timestamp time.Time
}

// Formatter renders an Entry to bytes.
type Formatter interface {
	Format(e *Entry) []byte
}

// Option configures a logger.
type Option func(*baseLogger)

// WithLevel sets the minimum log level.
func WithLevel(level Level) Option {
	return func(l *baseLogger) { l.level = level }
}

// WithFormatter sets the entry formatter.
func WithFormatter(f Formatter) Option {
	return func(l *baseLogger) { l.formatter = f }
}

// WithWriter sets the output writer. Defaults to stderr.
func WithWriter(w io.Writer) Option {
	return func(l *baseLogger) { l.out = w }
}

type baseLogger struct {
	mu        *sync.Mutex
	level     Level
	fields    []Field
	formatter Formatter
	out       io.Writer
}

// New creates a logger. With no options it logs text at info level to stderr.
func New(options ...Option) Logger {
	l := &baseLogger{
		mu:        &sync.Mutex{},
		level:     InfoLevel,
		formatter: &TextFormatter{},
		out:       os.Stderr,
	}
	for _, o := range options {
		o(l)
	}
	return l
}

func (l *baseLogger) log(level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}
	e := &Entry{
		Level:     level,
		Message:   msg,
		Fields:    append(append([]Field(nil), l.fields...), fields...),
		Timestamp: time.Now(),
	}
	b := l.formatter.Format(e)
	l.mu.Lock()
	_, _ = l.out.Write(b)
	l.mu.Unlock()
}

func (l *baseLogger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields) }
func (l *baseLogger) Info(msg string, fields ...Field)  { l.log(InfoLevel, msg, fields) }
func (l *baseLogger) Warn(msg string, fields ...Field)  { l.log(WarnLevel, msg, fields) }
func (l *baseLogger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields) }

func (l *baseLogger) With(fields ...Field) Logger {
	child := *l
	child.fields = append(append([]Field(nil), l.fields...), fields...)
	return &child
}

func (l *baseLogger) SetLevel(level Level) { l.level = level }

// RedirectStdLog routes the standard library's global logger (used by Pebble
// internals, among others) through the given Logger at info level.
func RedirectStdLog(logger Logger) {
	stdlog.SetFlags(0)
	stdlog.SetOutput(stdWriter{logger: logger})
}

type stdWriter struct {
	logger Logger
}

func (w stdWriter) Write(p []byte) (int, error) {
	w.logger.Info(strings.TrimRight(string(p), "\n"), Str("source", "stdlog"))
	return len(p), nil
}
