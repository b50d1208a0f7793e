package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Level: "warn", Format: FormatAuto, Out: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	log.Info().Msg("hidden")
	pluginLog := ForPlugin(log, "notes")
	pluginLog.Warn().Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	rec := gjson.Parse(lines[0])
	if rec.Get("level").String() != "warn" || rec.Get("plugin").String() != "notes" || rec.Get("message").String() != "shown" {
		t.Errorf("record = %s", lines[0])
	}
	if !rec.Get("time").Exists() {
		t.Error("record has no timestamp")
	}
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Format: FormatConsole, Out: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	log.Info().Str("plugin", "hub").Msg("activated")

	out := buf.String()
	if strings.HasPrefix(out, "{") || !strings.Contains(out, "activated") || !strings.Contains(out, "plugin=hub") {
		t.Errorf("console output = %q", out)
	}
}

func TestNewErrors(t *testing.T) {
	tests := []Options{
		{Level: "loud"},
		{Format: "xml"},
	}
	for _, opts := range tests {
		if _, err := New(opts); err == nil {
			t.Errorf("New(%+v) error = nil", opts)
		}
	}
}
