package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "warn")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	log.Infof("hidden %d", 1)
	log.WithField("param", "frac").Warnf("at limit")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered: %q", out)
	}
	if !strings.Contains(out, "at limit") || !strings.Contains(out, "param=frac") {
		t.Fatalf("expected warning with field: %q", out)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, "loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
