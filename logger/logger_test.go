package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"trace":   zerolog.TraceLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestComponentTagsRecords(t *testing.T) {
	var buf bytes.Buffer
	log := Component(New(&buf, zerolog.InfoLevel), "memory")
	log.Info().Str("session_id", "s1").Msg("stored turn")
	log.Debug().Msg("filtered out")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one record, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("record is not JSON: %v", err)
	}
	if rec["component"] != "memory" || rec["session_id"] != "s1" || rec["message"] != "stored turn" {
		t.Errorf("unexpected record %v", rec)
	}
	if _, ok := rec["time"]; !ok {
		t.Error("record missing timestamp")
	}
}

func TestInitWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", DefaultFile)
	log, closer, err := Init(Options{File: path, Level: "debug"})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	log.Debug().Msg("hello")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), `"message":"hello"`) {
		t.Errorf("log file missing record: %s", data)
	}
}
