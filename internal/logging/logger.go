package logging

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// Logger wraps slog.Logger with credential sanitization and domain field
// helpers.
type Logger struct {
	*slog.Logger
	sanitizer *Sanitizer
	level     *slog.LevelVar
}

// Config configures the logger.
type Config struct {
	Level     string
	Format    string // auto, text, json
	Output    io.Writer
	AddSource bool
	NoColor   bool
}

// DefaultConfig returns the default logger configuration. Output defaults
// to stderr: stdout belongs to the MCP JSON-RPC stream and must stay
// clean.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "auto",
		Output: os.Stderr,
	}
}

// New creates a new logger.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	level := new(slog.LevelVar)
	level.Set(parseLevel(cfg.Level))
	sanitizer := NewSanitizer()

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(cfg.Output, &slog.HandlerOptions{
			Level:     level,
			AddSource: cfg.AddSource,
		})
	case "text":
		handler = slog.NewTextHandler(cfg.Output, &slog.HandlerOptions{
			Level:     level,
			AddSource: cfg.AddSource,
		})
	default: // auto
		if isTerminal(cfg.Output) {
			handler = NewPrettyHandler(cfg.Output, level, cfg.NoColor || noColorEnv())
		} else {
			handler = slog.NewJSONHandler(cfg.Output, &slog.HandlerOptions{
				Level:     level,
				AddSource: cfg.AddSource,
			})
		}
	}

	handler = NewSanitizingHandler(handler, sanitizer)

	return &Logger{
		Logger:    slog.New(handler),
		sanitizer: sanitizer,
		level:     level,
	}
}

// NewNop creates a no-op logger for testing.
func NewNop() *Logger {
	return &Logger{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		sanitizer: NewSanitizer(),
		level:     new(slog.LevelVar),
	}
}

// SetLevel adjusts the minimum level at runtime. Derived loggers created
// with With/WithTask/etc. share the same level and pick up the change.
func (l *Logger) SetLevel(level string) {
	if l.level == nil {
		return
	}
	l.level.Set(parseLevel(level))
}

// Level returns the current minimum level.
func (l *Logger) Level() slog.Level {
	if l.level == nil {
		return slog.LevelInfo
	}
	return l.level.Level()
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}

func noColorEnv() bool {
	_, set := os.LookupEnv("NO_COLOR")
	return set
}

// WithTask returns a logger with task context.
func (l *Logger) WithTask(taskID string) *Logger {
	return &Logger{
		Logger:    l.Logger.With("task_id", taskID),
		sanitizer: l.sanitizer,
		level:     l.level,
	}
}

// WithWorkspace returns a logger with workspace context.
func (l *Logger) WithWorkspace(workspaceID string) *Logger {
	return &Logger{
		Logger:    l.Logger.With("workspace_id", workspaceID),
		sanitizer: l.sanitizer,
		level:     l.level,
	}
}

// WithOperation returns a logger with operation context.
func (l *Logger) WithOperation(op string) *Logger {
	return &Logger{
		Logger:    l.Logger.With("operation", op),
		sanitizer: l.sanitizer,
		level:     l.level,
	}
}

// WithComponent returns a logger tagged with a component name.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		Logger:    l.Logger.With("component", name),
		sanitizer: l.sanitizer,
		level:     l.level,
	}
}

// With returns a logger with custom fields.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger:    l.Logger.With(args...),
		sanitizer: l.sanitizer,
		level:     l.level,
	}
}

// Sanitizer returns the sanitizer used by this logger.
func (l *Logger) Sanitizer() *Sanitizer {
	return l.sanitizer
}

// Sanitize sanitizes a string using the logger's sanitizer.
func (l *Logger) Sanitize(input string) string {
	return l.sanitizer.Sanitize(input)
}
