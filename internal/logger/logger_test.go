package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"", slog.LevelInfo, false},
		{" INFO ", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoggerWritesFields(t *testing.T) {
	buf := new(bytes.Buffer)
	log, err := New(buf, "info")
	if err != nil {
		t.Fatal(err)
	}

	log.Named("matcher").Info(context.Background(), "match accepted",
		String("identity", "alice"), Float64("score", 0.91), Int("candidates", 3), Error(errors.New("none")))

	out := buf.String()
	for _, want := range []string{"match accepted", "component=matcher", "identity=alice", "score=0.91", "candidates=3", "error=none"} {
		if !strings.Contains(out, want) {
			t.Errorf("Missing %q in %q", want, out)
		}
	}
	if strings.Contains(out, "source=") {
		t.Errorf("Source should only be attached at debug level: %q", out)
	}
}

func TestLoggerLevelFilters(t *testing.T) {
	buf := new(bytes.Buffer)
	log, err := New(buf, "warn")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	log.Debug(ctx, "hidden")
	log.Info(ctx, "hidden too")
	log.Warn(ctx, "shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Errorf("Lower levels leaked: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("Warn missing: %q", buf.String())
	}
}

func TestDebugAddsSource(t *testing.T) {
	buf := new(bytes.Buffer)
	log, _ := New(buf, "debug")
	log.Debug(context.Background(), "probe")
	if !strings.Contains(buf.String(), "logger_test.go:") {
		t.Errorf("Expected caller location in %q", buf.String())
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(new(bytes.Buffer), "loud"); err == nil {
		t.Error("Expected error for unknown level")
	}
}

func TestNop(t *testing.T) {
	log := Nop()
	log.Error(context.Background(), "dropped", String("k", "v"))
	if log.Named("x") == nil {
		t.Error("Named on Nop returned nil")
	}
}
