// Package logger wraps zerolog with fields carried on context.Context, so a
// request's id, actor and warehouse follow it into every engine call.
package logger

import (
	"context"
	"io"
	"os"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

type Options struct {
	ServiceName string
	Level       zerolog.Level
	// Format is FormatJSON (default) or FormatConsole for local runs.
	Format string
	// WarnStack attaches a stack trace to warnings as well as errors.
	WarnStack bool
	// Fields are stamped on every entry, e.g. env and instance id.
	Fields map[string]string
	Output io.Writer
}

type Logger struct {
	base      zerolog.Logger
	warnStack bool
}

type ctxKey struct{}

func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if strings.EqualFold(opts.Format, FormatConsole) {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}
	level := opts.Level
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	builder := zerolog.New(out).Level(level).With().Timestamp().Str("service", opts.ServiceName)
	keys := make([]string, 0, len(opts.Fields))
	for key := range opts.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		builder = builder.Str(key, opts.Fields[key])
	}
	return &Logger{base: builder.Logger(), warnStack: opts.WarnStack}
}

// ParseLevel maps a config string onto a zerolog level. Unknown or empty
// values fall back to info.
func ParseLevel(value string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func (l *Logger) from(ctx context.Context) zerolog.Logger {
	if ctx != nil {
		if entry, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
			return entry
		}
	}
	return l.base
}

// WithField returns a child context whose entries carry key. The parent
// context is untouched.
func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	return context.WithValue(ctx, ctxKey{}, l.from(ctx).With().Interface(key, value).Logger())
}

func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	if len(fields) == 0 {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, l.from(ctx).With().Fields(fields).Logger())
}

// WithCorrelationID tags the HTTP call. request_id is left to transfer
// request ids.
func (l *Logger) WithCorrelationID(ctx context.Context, id string) context.Context {
	return l.WithField(ctx, "correlation_id", id)
}

func (l *Logger) WithWarehouseID(ctx context.Context, warehouseID string) context.Context {
	return l.WithField(ctx, "warehouse_id", warehouseID)
}

func (l *Logger) Debug(ctx context.Context, msg string) {
	entry := l.from(ctx)
	entry.Debug().Msg(msg)
}

func (l *Logger) Info(ctx context.Context, msg string) {
	entry := l.from(ctx)
	entry.Info().Msg(msg)
}

func (l *Logger) Warn(ctx context.Context, msg string) {
	entry := l.from(ctx)
	event := entry.Warn()
	if l.warnStack {
		event = event.Str("stack", stack())
	}
	event.Msg(msg)
}

// Error always carries a stack trace.
func (l *Logger) Error(ctx context.Context, msg string, err error) {
	entry := l.from(ctx)
	entry.Error().Err(err).Str("stack", stack()).Msg(msg)
}

func stack() string {
	return strings.TrimSpace(string(debug.Stack()))
}
