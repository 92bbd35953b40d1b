package logger

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LogLevelDebug},
		{"INFO", LogLevelInfo},
		{"warning", LogLevelWarning},
		{"1", LogLevelError},
		{" none ", LogLevelNone},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil {
			t.Fatalf("ParseLevel(%q) failed: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("Expected error for unknown level")
	}
}

func TestTaggedOutputRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(log.New(&buf, "", 0), LogLevelInfo).WithTag("button")

	l.Debugf("hidden")
	l.Infof("pressed %d", 1)
	l.Warnf("coalesced")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Debug output leaked at info level: %q", out)
	}
	if !strings.Contains(out, "[button] pressed 1") {
		t.Errorf("Missing tagged info line: %q", out)
	}
	if !strings.Contains(out, "[button] WARN: coalesced") {
		t.Errorf("Missing tagged warning line: %q", out)
	}
}

func TestNilLoggerDiscards(t *testing.T) {
	l := NewLogger(nil, LogLevelDebug)
	l.Debugf("nothing to see")
	l.Errorf("still nothing")
}
