// Package logging provides simple level-gated logging for CORTEX, with
// chainable context for the run/plugin/adapter identifiers that appear
// in nearly every log line a harness run produces.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Logger wraps stdlib log with level support and a persistent set of
// structured fields (run_id, plugin_name, ...) carried by With* calls.
type Logger struct {
	logger  *log.Logger
	level   LogLevel
	format  string
	noColor bool
	fields  []any
	mu      *sync.Mutex
}

var (
	defaultLogger *Logger
	mu            sync.RWMutex
)

// LogLevel represents the available log levels
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"debug", "info", "warn", "error"}
var levelColors = [...]string{"\x1b[36m", "\x1b[32m", "\x1b[33m", "\x1b[31m"} // cyan/green/yellow/red

// Config holds logging configuration.
type Config struct {
	Level LogLevel
	// Output defaults to os.Stderr when nil.
	Output io.Writer
	// Format is "text" (default) or "json".
	Format string
	// NoColor disables ANSI level coloring in text mode.
	NoColor bool
	// Sync, when true, flushes Output after every line if it exposes a
	// Sync() error method (as *os.File does).
	Sync bool
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Output: os.Stderr,
		Format: "text",
	}
}

// NewLogger creates a new logger
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	output := config.Output
	if output == nil {
		output = os.Stderr
	}
	format := config.Format
	if format == "" {
		format = "text"
	}

	var flags int
	if format == "text" {
		flags = log.LstdFlags
	}

	l := &Logger{
		logger:  log.New(output, "", flags),
		level:   config.Level,
		format:  format,
		noColor: config.NoColor,
		mu:      &sync.Mutex{},
	}
	if config.Sync {
		l.logger.SetOutput(&syncWriter{w: output})
	}
	return l
}

// syncWriter flushes the underlying writer's Sync() method, if present,
// after every Write. Used when a caller wants each log line durable
// before the call returns (e.g. before a process exit).
type syncWriter struct {
	w io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	if err != nil {
		return n, err
	}
	if syncer, ok := s.w.(interface{ Sync() error }); ok {
		_ = syncer.Sync()
	}
	return n, nil
}

// Default returns the default logger, creating it if necessary
func Default() *Logger {
	mu.RLock()
	if defaultLogger != nil {
		defer mu.RUnlock()
		return defaultLogger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault sets the default logger
func SetDefault(logger *Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = logger
}

// With returns a child logger that prepends fields (alternating
// key/value) to every subsequent log call, in addition to this
// logger's own persisted fields.
func (l *Logger) With(fields ...any) *Logger {
	child := *l
	child.fields = append(append([]any{}, l.fields...), fields...)
	return &child
}

// WithRun scopes subsequent log lines to one benchmark run.
func (l *Logger) WithRun(runID string) *Logger {
	return l.With("run_id", runID)
}

// WithPlugin scopes subsequent log lines to one plugin under test.
func (l *Logger) WithPlugin(pluginName string) *Logger {
	return l.With("plugin_name", pluginName)
}

// WithAdapter scopes subsequent log lines to one adapter identity.
func (l *Logger) WithAdapter(adapterName string) *Logger {
	return l.With("adapter_name", adapterName)
}

// WithWindow attaches a window index, typically used around per-window
// scheduler/telemetry log lines.
func (l *Logger) WithWindow(windowIndex uint64) *Logger {
	return l.With("window_index", windowIndex)
}

// WithError attaches err as a field rather than interpolating it into
// msg, so structured (json format) output keeps it queryable.
func (l *Logger) WithError(err error) *Logger {
	return l.With("error", err)
}

// formatArgs converts key-value pairs to a string
func formatArgs(args []any) string {
	if len(args) == 0 {
		return ""
	}
	var result string
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			if result != "" {
				result += " "
			}
			result += fmt.Sprintf("%v=%v", args[i], args[i+1])
		}
	}
	if result != "" {
		return " " + result
	}
	return ""
}

func (l *Logger) log(level LogLevel, prefix, msg string, args ...any) {
	if level < l.level {
		return
	}
	allArgs := append(append([]any{}, l.fields...), args...)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.format == "json" {
		l.logger.Print(l.jsonLine(level, msg, allArgs))
		return
	}

	color, reset := "", ""
	if !l.noColor {
		color, reset = levelColors[level], "\x1b[0m"
	}
	l.logger.Printf("%s%s%s%s%s", color, prefix, reset, msg, formatArgs(allArgs))
}

func (l *Logger) jsonLine(level LogLevel, msg string, args []any) string {
	entry := make(map[string]any, 2+len(args)/2)
	entry["level"] = levelNames[level]
	entry["msg"] = msg
	for i := 0; i+1 < len(args); i += 2 {
		key := fmt.Sprintf("%v", args[i])
		entry[key] = args[i+1]
	}
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Sprintf(`{"level":%q,"msg":%q,"marshal_error":%q}`, levelNames[level], msg, err.Error())
	}
	return string(b)
}

func (l *Logger) Debug(msg string, args ...any) {
	l.log(LevelDebug, "[DEBUG] ", msg, args...)
}

func (l *Logger) Info(msg string, args ...any) {
	l.log(LevelInfo, "[INFO] ", msg, args...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.log(LevelWarn, "[WARN] ", msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	l.log(LevelError, "[ERROR] ", msg, args...)
}

// Printf-style logging
func (l *Logger) Debugf(format string, args ...any) {
	l.log(LevelDebug, "[DEBUG] ", fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...any) {
	l.log(LevelInfo, "[INFO] ", fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...any) {
	l.log(LevelWarn, "[WARN] ", fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	l.log(LevelError, "[ERROR] ", fmt.Sprintf(format, args...))
}

// Printf for compatibility
func (l *Logger) Printf(format string, args ...any) {
	l.Infof(format, args...)
}

// Global convenience functions
func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}
