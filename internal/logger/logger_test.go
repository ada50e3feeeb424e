package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

// TestParseLevel verifies level names, including the empty default
func TestParseLevel(t *testing.T) {
	testCases := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"", LevelInfo, false},
		{"trace", LevelTrace, false},
		{"DEBUG", LevelDebug, false},
		{"warning", LevelWarn, false},
		{" error ", LevelError, false},
		{"fatal", LevelFatal, false},
		{"loud", LevelInfo, true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseLevel(tc.input)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tc.input, err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

// TestSetupJSON verifies records are written as JSON and filtered by level
func TestSetupJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Setup(context.Background(), Options{Level: "info", Output: &buf, SampleRate: 1}); err != nil {
		t.Fatalf("Setup() failed: %v", err)
	}
	defer SetLevel(LevelInfo)

	Debug("hidden")
	Info("form created", "form_id", "f1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 record, got %d: %q", len(lines), buf.String())
	}

	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("record is not JSON: %v", err)
	}
	if record["msg"] != "form created" || record["form_id"] != "f1" {
		t.Errorf("unexpected record: %v", record)
	}
}

// TestSetupText verifies the text format
func TestSetupText(t *testing.T) {
	var buf bytes.Buffer
	if err := Setup(context.Background(), Options{Format: "text", Output: &buf}); err != nil {
		t.Fatalf("Setup() failed: %v", err)
	}

	With("component", "test").Info("hello")

	if !strings.Contains(buf.String(), "msg=hello") || !strings.Contains(buf.String(), "component=test") {
		t.Errorf("unexpected text output: %q", buf.String())
	}
}

// TestSetupRejectsUnknownLevel verifies a bad level is reported
func TestSetupRejectsUnknownLevel(t *testing.T) {
	if err := Setup(context.Background(), Options{Level: "chatty"}); err == nil {
		t.Error("Setup() should fail for an unknown level")
	}
}
