package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestDefault(t *testing.T) {
	t.Parallel()
	log := Default()
	if log == nil {
		t.Fatal("Default() returned nil")
	}
	log.Debug("debug message")
}

func TestJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)
	log.Info("hello", "key", "value")

	output := buf.String()
	if !strings.Contains(output, `"msg":"hello"`) {
		t.Fatalf("expected msg in output, got: %s", output)
	}
	if !strings.Contains(output, `"key":"value"`) {
		t.Fatalf("expected key=value in JSON output, got: %s", output)
	}
}

func TestJSONLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelWarn)
	log.Info("should not appear")

	if buf.Len() > 0 {
		t.Fatalf("expected no output for info at warn level, got: %s", buf.String())
	}
	log.Warn("should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Fatalf("expected warn message in output, got: %s", buf.String())
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	for _, format := range []string{"", "pretty", "JSON", "text"} {
		var buf bytes.Buffer
		log, err := Open(format, &buf, slog.LevelInfo)
		if err != nil {
			t.Fatalf("Open(%q): %v", format, err)
		}
		log.Info("opened")
		if !strings.Contains(buf.String(), "opened") {
			t.Fatalf("Open(%q) wrote %q", format, buf.String())
		}
	}
	if _, err := Open("xml", &bytes.Buffer{}, slog.LevelInfo); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestDiscard(t *testing.T) {
	t.Parallel()
	// must not panic and must accept derived loggers
	Discard().With("k", "v").WithGroup("g").Error("dropped")
}

func TestForRankJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	ForRank(JSON(&buf, slog.LevelInfo), 2, 5).Info("multiply done")

	output := buf.String()
	if !strings.Contains(output, `"rank":2`) || !strings.Contains(output, `"size":5`) {
		t.Fatalf("expected rank and size fields, got: %s", output)
	}
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)

	FromContext(WithContext(context.Background(), log)).Info("roundtrip test")
	if !strings.Contains(buf.String(), "roundtrip test") {
		t.Fatalf("expected message via context logger, got: %s", buf.String())
	}
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext with no logger returned nil")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected slog.Level
		wantErr  bool
	}{
		{"debug", slog.LevelDebug, false},
		{"DEBUG", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{" error ", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tc := range tests {
		result, err := ParseLevel(tc.input)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseLevel(%q): err = %v, wantErr %v", tc.input, err, tc.wantErr)
		}
		if result != tc.expected {
			t.Errorf("ParseLevel(%q): expected %v, got %v", tc.input, tc.expected, result)
		}
	}
}

func newPlain(buf *bytes.Buffer) *PrettyHandler {
	return NewPrettyHandler(buf, &PrettyOptions{NoColor: true})
}

func TestPrettyHandlerEnabled(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, &PrettyOptions{HandlerOptions: slog.HandlerOptions{Level: slog.LevelWarn}})

	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("expected info to be disabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("expected error to be enabled at warn level")
	}
}

func TestPrettyNoColor(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	slog.New(newPlain(&buf)).Info("plain", "n", 64)

	output := buf.String()
	if strings.Contains(output, "\033[") {
		t.Fatalf("expected no escapes, got: %q", output)
	}
	if !strings.Contains(output, "INFO  plain n=64\n") {
		t.Fatalf("unexpected layout: %q", output)
	}
}

func TestPrettyRankTag(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := New(newPlain(&buf))
	ForRank(log, 3, 4).Info("gathered", "elapsed", "1.2s")

	output := buf.String()
	if !strings.Contains(output, "[r3] gathered size=4 elapsed=1.2s") {
		t.Fatalf("expected rank tag before message, got: %q", output)
	}
	if strings.Contains(output, "rank=") {
		t.Fatalf("rank should not repeat as an attribute: %q", output)
	}
}

func TestPrettyHandlerGroups(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := newPlain(&buf)

	slog.New(h.WithGroup("a").WithGroup("b")).Info("nested", "key", "val")
	if !strings.Contains(buf.String(), "a.b.key=val") {
		t.Fatalf("expected 'a.b.key=val' in output, got: %s", buf.String())
	}
	if h.WithGroup("") != slog.Handler(h) {
		t.Fatal("WithGroup empty string should return same handler")
	}
}

func TestPrettyQuoting(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	slog.New(newPlain(&buf)).Info("test", "msg", "hello world", "key", "simple")

	output := buf.String()
	if !strings.Contains(output, `msg="hello world"`) {
		t.Fatalf("expected quoted string with spaces, got: %s", output)
	}
	if !strings.Contains(output, "key=simple") {
		t.Fatalf("expected unquoted simple string, got: %s", output)
	}
}

func TestPrettyConcurrentLinesIntact(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	root := New(newPlain(&buf))

	var wg sync.WaitGroup
	for rank := range 4 {
		log := ForRank(root, rank, 4)
		wg.Go(func() {
			for range 50 {
				log.Info("tick")
			}
		})
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 200 {
		t.Fatalf("expected 200 lines, got %d", len(lines))
	}
	for _, line := range lines {
		if !strings.HasSuffix(line, "tick size=4") {
			t.Fatalf("interleaved line: %q", line)
		}
	}
}
