package log

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestInfoProducesLogfmtWithTimestamp(t *testing.T) {
	buf := new(bytes.Buffer)
	original := Logger()
	ReplaceLogger(slog.New(newHandler(buf)))
	t.Cleanup(func() {
		ReplaceLogger(original)
	})

	Info(context.Background(), "hello", "user", "test")

	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatalf("expected log output, got empty string")
	}
	if !strings.Contains(line, "ts=") {
		t.Fatalf("expected timestamp field in log line, got %q", line)
	}
	if !strings.Contains(line, "level=info") {
		t.Fatalf("expected level field in log line, got %q", line)
	}
	if !strings.Contains(line, "msg=hello") {
		t.Fatalf("expected message field in log line, got %q", line)
	}
	if !strings.Contains(line, "user=test") {
		t.Fatalf("expected structured field in log line, got %q", line)
	}
}

func TestSetLevelFiltersDebug(t *testing.T) {
	buf := new(bytes.Buffer)
	original := Logger()
	ReplaceLogger(slog.New(newHandler(buf)))
	t.Cleanup(func() {
		ReplaceLogger(original)
		_ = SetLevel("info")
	})

	if err := SetLevel("warn"); err != nil {
		t.Fatalf("SetLevel returned error: %v", err)
	}
	Debug(context.Background(), "hidden")
	Info(context.Background(), "hidden too")
	Warn(context.Background(), "dataset stale", "dataset", "additives")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("expected debug and info lines to be filtered, got %q", out)
	}
	if !strings.Contains(out, "level=warn") || !strings.Contains(out, "dataset=additives") {
		t.Fatalf("expected warn line, got %q", out)
	}
}

func TestSetLevelRejectsUnknown(t *testing.T) {
	if err := SetLevel("verbose"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestJSONHandlerRenamesKeys(t *testing.T) {
	buf := new(bytes.Buffer)
	original := Logger()
	ReplaceLogger(slog.New(newFormatHandler(buf, "json")))
	t.Cleanup(func() {
		ReplaceLogger(original)
	})

	Error(context.Background(), "fetch failed", "status", 500)

	line := buf.String()
	for _, want := range []string{`"ts":`, `"level":"error"`, `"msg":"fetch failed"`, `"status":500`} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %s in %q", want, line)
		}
	}
}

func TestConfigureRejectsUnknownFormat(t *testing.T) {
	original := Logger()
	t.Cleanup(func() {
		ReplaceLogger(original)
		_ = SetLevel("info")
	})

	if err := Configure("info", "xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestConfigureWriterUsesDestination(t *testing.T) {
	buf := new(bytes.Buffer)
	original := Logger()
	t.Cleanup(func() {
		ReplaceLogger(original)
		_ = SetLevel("info")
	})

	if err := ConfigureWriter(buf, "error", "json"); err != nil {
		t.Fatalf("ConfigureWriter returned error: %v", err)
	}
	Warn(context.Background(), "filtered")
	Error(context.Background(), "kept")

	out := buf.String()
	if strings.Contains(out, "filtered") || !strings.Contains(out, `"msg":"kept"`) {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestWithAttrsAddsContextFields(t *testing.T) {
	buf := new(bytes.Buffer)
	original := Logger()
	ReplaceLogger(slog.New(newHandler(buf)))
	t.Cleanup(func() {
		ReplaceLogger(original)
	})

	ctx := WithAttrs(context.Background(), "requestID", "req-1")
	ctx = WithAttrs(ctx, "checkID", "chk-9")
	Info(ctx, "dataset fetched", "dataset", "additives")
	Info(context.Background(), "plain")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	for _, want := range []string{"dataset=additives", "requestID=req-1", "checkID=chk-9"} {
		if !strings.Contains(lines[0], want) {
			t.Fatalf("expected %q in %q", want, lines[0])
		}
	}
	if strings.Contains(lines[1], "checkID") {
		t.Fatalf("expected no context fields on plain line, got %q", lines[1])
	}
}
