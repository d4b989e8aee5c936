package logger

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
)

func TestInit(t *testing.T) {
	for _, prod := range []bool{true, false} {
		logger, sync := Init("btcpulse-test", slog.LevelInfo, prod)
		if logger == nil {
			t.Fatal("expected non-nil logger")
		}
		if sync == nil {
			t.Fatal("expected sync func")
		}
		if logger.Enabled(context.Background(), slog.LevelDebug) {
			t.Error("debug should be disabled at info level")
		}
		if !logger.Enabled(context.Background(), slog.LevelWarn) {
			t.Error("warn should be enabled at info level")
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{" warn ", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestZapLevel(t *testing.T) {
	tests := map[slog.Level]zapcore.Level{
		slog.LevelDebug: zapcore.DebugLevel,
		slog.LevelInfo:  zapcore.InfoLevel,
		slog.LevelWarn:  zapcore.WarnLevel,
		slog.LevelError: zapcore.ErrorLevel,
	}
	for in, want := range tests {
		if got := zapLevel(in); got != want {
			t.Errorf("zapLevel(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestTraceID_RoundTrip(t *testing.T) {
	ctx := context.Background()

	if tid := TraceID(ctx); tid != "" {
		t.Errorf("expected empty trace id, got %q", tid)
	}

	ctx = WithTraceID(ctx, "run-123")
	if tid := TraceID(ctx); tid != "run-123" {
		t.Errorf("expected 'run-123', got %q", tid)
	}
}

func TestGenerateTraceID(t *testing.T) {
	ts := time.Date(2025, 4, 1, 10, 30, 0, 123456789, time.UTC)
	tid := GenerateTraceID("poll", ts)

	if !strings.HasPrefix(tid, "poll-") {
		t.Errorf("expected trace id to start with 'poll-', got %s", tid)
	}
	if !strings.Contains(tid, "123456789") {
		t.Errorf("expected trace id to contain nanoseconds, got %s", tid)
	}
}

func TestLogWithTrace(t *testing.T) {
	ctx := context.Background()

	if attrs := LogWithTrace(ctx); attrs != nil {
		t.Errorf("expected nil attrs when no trace id, got %v", attrs)
	}

	ctx = WithTraceID(ctx, "abc-123")
	attrs := LogWithTrace(ctx)
	if len(attrs) != 1 {
		t.Fatalf("expected one attr, got %v", attrs)
	}
	if a, ok := attrs[0].(slog.Attr); !ok || a.Value.String() != "abc-123" {
		t.Errorf("unexpected attr %v", attrs[0])
	}
}
