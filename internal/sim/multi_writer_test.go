package sim

import (
	"errors"
	"testing"

	"github.com/rot226/simulator-lora-sfrd-2.0/internal/lora"
)

type recordingWriter struct {
	stats      []StepStats
	events     []Event
	deliveries []lora.Delivery
	summaries  []Summary
	flushes    []StepStats
	admin      bool
	closed     bool
	err        error
}

func (r *recordingWriter) Write(st StepStats) error {
	r.stats = append(r.stats, st)
	return r.err
}

func (r *recordingWriter) WriteEvents(events []Event) error {
	r.events = append(r.events, events...)
	return nil
}

func (r *recordingWriter) WriteDeliveries(rows []lora.Delivery) error {
	r.deliveries = append(r.deliveries, rows...)
	return nil
}

func (r *recordingWriter) WriteSummary(s Summary) error {
	r.summaries = append(r.summaries, s)
	return nil
}

func (r *recordingWriter) WriteFlush(st StepStats) error {
	r.flushes = append(r.flushes, st)
	return nil
}

func (r *recordingWriter) SetAdminStatus(active bool) { r.admin = active }

func (r *recordingWriter) Close() error {
	r.closed = true
	return nil
}

type statsOnly struct{ n int }

func (s *statsOnly) Write(StepStats) error {
	s.n++
	return nil
}

func TestMultiWriterFanOut(t *testing.T) {
	a := &recordingWriter{}
	b := &statsOnly{}
	mw := NewMultiWriter(a, nil, b)

	if err := mw.Write(StepStats{Step: 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := mw.WriteEvents([]Event{{NodeID: 1}}); err != nil {
		t.Fatalf("events: %v", err)
	}
	if err := mw.WriteDeliveries([]lora.Delivery{{NodeID: 1}}); err != nil {
		t.Fatalf("deliveries: %v", err)
	}
	if err := mw.WriteSummary(Summary{Sent: 1}); err != nil {
		t.Fatalf("summary: %v", err)
	}
	if err := mw.WriteFlush(StepStats{Delivered: 1}); err != nil {
		t.Fatalf("flush: %v", err)
	}
	mw.SetAdminStatus(true)
	if err := mw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if len(a.stats) != 1 || b.n != 1 {
		t.Fatalf("stats not forwarded to every writer")
	}
	if len(a.events) != 1 || len(a.deliveries) != 1 || len(a.summaries) != 1 || len(a.flushes) != 1 {
		t.Fatalf("optional writes not forwarded: %+v", a)
	}
	if !a.admin || !a.closed {
		t.Fatalf("admin status or close not forwarded")
	}
}

func TestMultiWriterJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	a := &recordingWriter{err: boom}
	b := &recordingWriter{}
	mw := NewMultiWriter(a, b)
	err := mw.Write(StepStats{Step: 1})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(b.stats) != 1 {
		t.Fatalf("second writer skipped after first failed")
	}
}
