package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestSlogHandlerFormatsAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(LevelInfo, &buf, "http")
	s := slog.New(NewSlogHandler(l)).With("addr", "127.0.0.1:9001").WithGroup("conn")

	s.Debug("hidden")
	s.Warn("closed", "reason", "peer reset", slog.Group("bytes", "in", 3, "out", 0))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug record written at info level: %q", out)
	}
	want := `[WARN] [http] closed addr=127.0.0.1:9001 conn.reason="peer reset" conn.bytes.in=3 conn.bytes.out=0`
	if !strings.Contains(out, want) {
		t.Errorf("output %q does not contain %q", out, want)
	}
}

func TestErrorLogWritesWarnings(t *testing.T) {
	var buf bytes.Buffer
	ErrorLog(NewWriter(LevelWarn, &buf, "ws")).Printf("http: TLS handshake error from %s", "1.2.3.4")

	if !strings.Contains(buf.String(), "[WARN] [ws] http: TLS handshake error from 1.2.3.4") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestSlogHandlerNilLogger(t *testing.T) {
	s := slog.New(NewSlogHandler(nil))
	s.Error("dropped")
}
