package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/catalog-aggregator/internal/logging"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var records []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec), "line: %s", line)
		records = append(records, rec)
	}
	return records
}

func TestNew_WritesJSONRecords(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := logging.New(logging.WithWriter(&buf))

	logger.Info("aggregation finished", "resolved", 3, "source", "https://example.com")

	records := decodeLines(t, &buf)
	require.Len(t, records, 1)
	assert.Equal(t, "aggregation finished", records[0]["msg"])
	assert.Equal(t, "info", records[0]["level"])
	assert.EqualValues(t, 3, records[0]["resolved"])
	assert.Equal(t, "https://example.com", records[0]["source"])
}

func TestNew_LevelFiltering(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		level    slog.Level
		expected []string
	}{
		{
			name:     "debug level writes everything",
			level:    slog.LevelDebug,
			expected: []string{"debug message", "info message", "warn message", "error message"},
		},
		{
			name:     "info level drops debug",
			level:    slog.LevelInfo,
			expected: []string{"info message", "warn message", "error message"},
		},
		{
			name:     "warn level keeps warnings and errors",
			level:    slog.LevelWarn,
			expected: []string{"warn message", "error message"},
		},
		{
			name:     "error level only writes errors",
			level:    slog.LevelError,
			expected: []string{"error message"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := logging.New(logging.WithWriter(&buf), logging.WithLevel(tt.level))

			logger.Debug("debug message")
			logger.Info("info message")
			logger.Warn("warn message")
			logger.Error("error message")

			var got []string
			for _, rec := range decodeLines(t, &buf) {
				got = append(got, rec["msg"].(string))
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNew_DebugRecordsAreLabelledDebug(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := logging.New(logging.WithWriter(&buf), logging.WithLevel(slog.LevelDebug))

	logger.Debug("suffix candidate failed")

	records := decodeLines(t, &buf)
	require.Len(t, records, 1)
	assert.Equal(t, "debug", records[0]["level"])
}

func TestNew_InjectsTraceContext(t *testing.T) {
	t.Parallel()

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	var buf bytes.Buffer
	logger := logging.New(logging.WithWriter(&buf))
	logger.InfoContext(ctx, "with span")
	logger.Info("without span")

	records := decodeLines(t, &buf)
	require.Len(t, records, 2)
	assert.Equal(t, traceID.String(), records[0]["trace_id"])
	assert.Equal(t, spanID.String(), records[0]["span_id"])
	assert.NotContains(t, records[1], "trace_id")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input  string
		want   slog.Level
		wantOK bool
	}{
		{input: "debug", want: slog.LevelDebug, wantOK: true},
		{input: "DEBUG", want: slog.LevelDebug, wantOK: true},
		{input: "", want: slog.LevelInfo, wantOK: true},
		{input: "info", want: slog.LevelInfo, wantOK: true},
		{input: "warning", want: slog.LevelWarn, wantOK: true},
		{input: " warn ", want: slog.LevelWarn, wantOK: true},
		{input: "error", want: slog.LevelError, wantOK: true},
		{input: "verbose", want: slog.LevelInfo, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got, ok := logging.ParseLevel(tt.input)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}
