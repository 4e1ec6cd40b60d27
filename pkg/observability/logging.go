package observability

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel parses a log level string, defaulting to INFO.
func ParseLogLevel(level string) LogLevel {
	switch level {
	case "DEBUG", "debug":
		return DEBUG
	case "WARN", "warn", "WARNING", "warning":
		return WARN
	case "ERROR", "error":
		return ERROR
	default:
		return INFO
	}
}

// Logger provides leveled, structured logging. Engine entry points take a
// *Logger explicitly; a nil *Logger is safe and silent, so hot paths never
// pay for logging that is not wanted.
type Logger struct {
	level      LogLevel
	output     io.Writer
	fields     map[string]interface{}
	timeFormat string
}

// NewLogger creates a new logger writing to output (stdout if nil).
func NewLogger(level LogLevel, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	return &Logger{
		level:      level,
		output:     output,
		timeFormat: time.RFC3339,
	}
}

// NewDefaultLogger creates an INFO logger on stdout.
func NewDefaultLogger() *Logger {
	return NewLogger(INFO, os.Stdout)
}

// WithFields returns a logger that attaches fields to every entry.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	if l == nil {
		return nil
	}
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{
		level:      l.level,
		output:     l.output,
		fields:     merged,
		timeFormat: l.timeFormat,
	}
}

// WithField returns a logger with one additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(DEBUG, msg, fields...)
}

// Info logs an info message
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(INFO, msg, fields...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(WARN, msg, fields...)
}

// Error logs an error message
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(ERROR, msg, fields...)
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log(DEBUG, fmt.Sprintf(format, args...))
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(INFO, fmt.Sprintf(format, args...))
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log(ERROR, fmt.Sprintf(format, args...))
}

func (l *Logger) log(level LogLevel, msg string, extraFields ...map[string]interface{}) {
	if l == nil || level < l.level {
		return
	}

	all := make(map[string]interface{}, len(l.fields))
	for k, v := range l.fields {
		all[k] = v
	}
	for _, fields := range extraFields {
		for k, v := range fields {
			all[k] = v
		}
	}

	entry := fmt.Sprintf("[%s] %s: %s", time.Now().Format(l.timeFormat), level.String(), msg)
	if len(all) > 0 {
		keys := make([]string, 0, len(all))
		for k := range all {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		entry += " |"
		for _, k := range keys {
			entry += fmt.Sprintf(" %s=%v", k, all[k])
		}
	}
	fmt.Fprintln(l.output, entry)
}

// LogOperation logs the start, duration and outcome of an operation.
func (l *Logger) LogOperation(operation string, fn func() error) error {
	start := time.Now()
	l.Debug("starting " + operation)

	err := fn()

	duration := time.Since(start)
	if err != nil {
		l.Error(operation+" failed", map[string]interface{}{
			"duration": duration,
			"error":    err.Error(),
		})
	} else {
		l.Info(operation+" completed", map[string]interface{}{
			"duration": duration,
		})
	}
	return err
}
