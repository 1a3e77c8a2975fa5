package sim

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rot226/simulator-lora-sfrd-2.0/internal/config"
)

func TestNewStdoutWriterSelectsFormat(t *testing.T) {
	cfg := config.Default()
	if _, ok := newStdoutWriter(cfg, false, false).(*JSONStdoutWriter); !ok {
		t.Fatalf("expected JSON writer without a terminal")
	}
	if _, ok := newStdoutWriter(cfg, false, true).(*ColorStdoutWriter); !ok {
		t.Fatalf("expected color writer on a terminal")
	}
}

func TestJSONStdoutWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	w := &JSONStdoutWriter{out: buf}
	if err := w.Write(StepStats{Step: 3, Sent: 1}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	var got StepStats
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &got); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if got.Step != 3 || got.Sent != 1 {
		t.Fatalf("unexpected stats %+v", got)
	}
}

func TestColorStdoutWriter(t *testing.T) {
	cfg := config.Default()
	buf := &bytes.Buffer{}
	w := &ColorStdoutWriter{cfg: cfg, out: buf}
	if err := w.Write(StepStats{Step: 1, Sent: 2, Delivered: 1, Collided: 1}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	output := buf.String()
	if !strings.Contains(output, "Simulation Configuration:") {
		t.Fatalf("overview not printed: %q", output)
	}
	if !strings.Contains(output, "\x1b[") || !strings.Contains(output, "collided=1") {
		t.Fatalf("expected colored step line: %q", output)
	}

	buf.Reset()
	if err := w.Write(StepStats{Step: 2}); err != nil {
		t.Fatalf("second write failed: %v", err)
	}
	if strings.Contains(buf.String(), "Simulation Configuration:") {
		t.Fatalf("overview printed more than once")
	}

	buf.Reset()
	if err := w.WriteEvents([]Event{{NodeID: 1, Result: ResultSuccess}}); err != nil {
		t.Fatalf("events failed: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("events printed without verbose: %q", buf.String())
	}
	w.verbose = true
	if err := w.WriteEvents([]Event{{NodeID: 1, SF: 7, Result: ResultCollision, GatewayID: -1}}); err != nil {
		t.Fatalf("events failed: %v", err)
	}
	if !strings.Contains(buf.String(), "CollisionLoss") {
		t.Fatalf("expected event line, got %q", buf.String())
	}
}
