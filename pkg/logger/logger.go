package logger

import (
	"context"
	"io"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"

	pkgerrors "github.com/hopl-labs/hopl-backend/pkg/errors"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Options configures the structured logger. An empty Format falls back to
// the LOG_FORMAT environment variable and then to JSON.
type Options struct {
	ServiceName string
	Level       zerolog.Level
	WarnStack   bool
	Format      string
	Output      io.Writer
}

// Logger writes zerolog entries enriched with fields carried on the context.
type Logger struct {
	root      zerolog.Logger
	warnStack bool
}

type entryKey struct{}

func New(opts Options) *Logger {
	if opts.Level == zerolog.NoLevel {
		opts.Level = zerolog.InfoLevel
	}
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if opts.Format == "" {
		opts.Format = os.Getenv("LOG_FORMAT")
	}
	if opts.Format == FormatConsole {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	root := zerolog.New(out).Level(opts.Level).With().
		Timestamp().
		Str("service", opts.ServiceName).
		Logger()
	return &Logger{root: root, warnStack: opts.WarnStack}
}

// ParseLevel maps a level name onto zerolog, defaulting to info.
func ParseLevel(value string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func (l *Logger) entry(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if e, ok := ctx.Value(entryKey{}).(*zerolog.Logger); ok {
			return e
		}
	}
	return &l.root
}

func (l *Logger) with(ctx context.Context, build func(zerolog.Context) zerolog.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	child := build(l.entry(ctx).With()).Logger()
	return context.WithValue(ctx, entryKey{}, &child)
}

func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context {
		return c.Interface(key, value)
	})
}

func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context {
		return c.Fields(fields)
	})
}

func (l *Logger) WithRequestID(ctx context.Context, requestID string) context.Context {
	return l.WithField(ctx, "request_id", requestID)
}

func (l *Logger) WithUserID(ctx context.Context, userID string) context.Context {
	return l.WithField(ctx, "user_id", userID)
}

func (l *Logger) WithScanID(ctx context.Context, scanID string) context.Context {
	return l.WithField(ctx, "scan_id", scanID)
}

func (l *Logger) WithAttemptID(ctx context.Context, attemptID string) context.Context {
	return l.WithField(ctx, "attempt_id", attemptID)
}

func (l *Logger) Debug(ctx context.Context, msg string) {
	l.entry(ctx).Debug().Msg(msg)
}

func (l *Logger) Info(ctx context.Context, msg string) {
	l.entry(ctx).Info().Msg(msg)
}

func (l *Logger) Warn(ctx context.Context, msg string) {
	ev := l.entry(ctx).Warn()
	if l.warnStack {
		ev.Str("stack", stackTrace())
	}
	ev.Msg(msg)
}

// Error logs err with a stack trace. Typed errors also carry their code;
// client-class codes (4xx) skip the stack since they are expected outcomes.
func (l *Logger) Error(ctx context.Context, msg string, err error) {
	ev := l.entry(ctx).Error()
	withStack := true
	if err != nil {
		ev.Err(err)
		if typed := pkgerrors.As(err); typed != nil {
			ev.Str("error_code", string(typed.Code()))
			withStack = pkgerrors.MetadataFor(typed.Code()).HTTPStatus >= http.StatusInternalServerError
		}
	}
	if withStack {
		ev.Str("stack", stackTrace())
	}
	ev.Msg(msg)
}

func stackTrace() string {
	return strings.TrimSpace(string(debug.Stack()))
}
