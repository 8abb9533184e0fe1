package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestNewWriterEmitsFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "info").With(String("run_id", "r1"))

	l.Info("priced", String("symbol", "CFPT2401"), Float("edge", 0.25), Duration("took", 1500*time.Millisecond), Error(errors.New("boom")))

	var got map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if got["symbol"] != "CFPT2401" || got["run_id"] != "r1" {
		t.Fatalf("missing string fields: %v", got)
	}
	if got["edge"] != 0.25 {
		t.Fatalf("edge = %v", got["edge"])
	}
	if got["took"] != float64(1500) {
		t.Fatalf("took = %v, want ms", got["took"])
	}
	if got["error"] != "boom" {
		t.Fatalf("error = %v", got["error"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "warn")
	l.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %s", buf.String())
	}
	l.Warn("shown")
	if buf.Len() == 0 {
		t.Fatal("warn should be written")
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New(&Config{Level: "loud", Output: "stdout"}); err == nil {
		t.Fatal("expected error for invalid level")
	}
}
