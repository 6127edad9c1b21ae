package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	log.Info().Str("batch", "20240320-abc").Msg("test message")

	output := buf.String()
	if !strings.Contains(output, "test message") {
		t.Errorf("Expected output to contain 'test message', got: %s", output)
	}
	if !strings.Contains(output, `"batch":"20240320-abc"`) {
		t.Errorf("Expected output to contain batch field, got: %s", output)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    zerolog.Level
		wantErr bool
	}{
		{"", zerolog.InfoLevel, false},
		{"debug", zerolog.DebugLevel, false},
		{" WARN ", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"loud", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"", FormatConsole, false},
		{"console", FormatConsole, false},
		{" JSON ", FormatJSON, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNew_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	log, err := New("json", zerolog.WarnLevel, buf)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	log.Info().Msg("hidden")
	log.Warn().Str("parser", "ofx").Msg("falling back")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected one line above the level, got: %q", buf.String())
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("Expected JSON log line, got %q: %v", lines[0], err)
	}
	if entry["parser"] != "ofx" || entry["level"] != "warn" {
		t.Errorf("Unexpected log entry: %v", entry)
	}
}

func TestNew_Console(t *testing.T) {
	buf := &bytes.Buffer{}
	log, err := New("", zerolog.DebugLevel, buf)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if log.GetLevel() != zerolog.DebugLevel {
		t.Errorf("Expected debug level, got %s", log.GetLevel())
	}

	log.Debug().Str("batch", "b1").Msg("statement imported")
	if !strings.Contains(buf.String(), "batch=b1") {
		t.Errorf("Expected console formatted output, got: %s", buf.String())
	}
}

func TestNew_InvalidFormat(t *testing.T) {
	if _, err := New("xml", zerolog.InfoLevel, &bytes.Buffer{}); err == nil {
		t.Error("Expected error for unknown format")
	}
}

func TestNewConsole(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewConsole(buf)

	log.Warn().Str("parser", "ofx").Msg("falling back")

	output := buf.String()
	if !strings.Contains(output, "falling back") || !strings.Contains(output, "parser=ofx") {
		t.Errorf("Expected console formatted output, got: %s", output)
	}
	if strings.Contains(output, "\x1b[") {
		t.Errorf("Expected no color codes for a buffer, got: %q", output)
	}
}
