// Package logging builds the process-wide structured logger.
//
// Records are written by zap and exposed to the rest of the code base through
// log/slog, so packages only ever call slog.Info, slog.Debug and friends.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Option configures the handler returned by NewHandler
type Option func(*options)

type options struct {
	level   slog.Leveler
	writer  io.Writer
	console bool
}

// WithLevel sets the minimum level that is written
func WithLevel(level slog.Leveler) Option {
	return func(o *options) {
		o.level = level
	}
}

// WithWriter sets the destination of log records. Defaults to stderr.
func WithWriter(w io.Writer) Option {
	return func(o *options) {
		o.writer = w
	}
}

// WithConsoleEncoding switches from JSON to zap's human readable console encoding
func WithConsoleEncoding(console bool) Option {
	return func(o *options) {
		o.console = console
	}
}

// NewHandler creates an slog.Handler backed by a zap core.
// OpenTelemetry trace_id and span_id are added to every record logged with a span in its context.
func NewHandler(opts ...Option) slog.Handler {
	o := &options{
		level:  slog.LevelInfo,
		writer: os.Stderr,
	}
	for _, opt := range opts {
		opt(o)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	encCfg.EncodeLevel = encodeLevel

	var enc zapcore.Encoder
	if o.console {
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	// The zap core accepts everything down to slog's debug level; filtering
	// happens in the slog handler so warn/error thresholds behave as expected.
	core := zapcore.NewCore(enc, zapcore.AddSync(o.writer), zapcore.Level(slog.LevelDebug))
	base := logr.ToSlogHandler(zapr.NewLogger(zap.New(core)))

	return &handler{Handler: base, level: o.level}
}

// New creates a logger using NewHandler
func New(opts ...Option) *slog.Logger {
	return slog.New(NewHandler(opts...))
}

// ParseLevel converts a textual level to an slog.Level.
// The second return value is false when the text is not a known level, in which case info is returned.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// encodeLevel writes slog's debug levels, which zap sees as levels below
// zapcore.DebugLevel, as plain "debug".
func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if l < zapcore.DebugLevel {
		enc.AppendString("debug")
		return
	}
	zapcore.LowercaseLevelEncoder(l, enc)
}

type handler struct {
	slog.Handler
	level slog.Leveler
}

func (h *handler) Enabled(ctx context.Context, l slog.Level) bool {
	return l >= h.level.Level() && h.Handler.Enabled(ctx, l)
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		r.AddAttrs(
			slog.String("trace_id", span.SpanContext().TraceID().String()),
			slog.String("span_id", span.SpanContext().SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &handler{Handler: h.Handler.WithAttrs(attrs), level: h.level}
}

func (h *handler) WithGroup(name string) slog.Handler {
	return &handler{Handler: h.Handler.WithGroup(name), level: h.level}
}
