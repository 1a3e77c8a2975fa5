package sim

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rot226/simulator-lora-sfrd-2.0/internal/lora"
)

// JSONStdoutWriter prints step stats, events and the run summary as JSON lines.
type JSONStdoutWriter struct {
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return &JSONStdoutWriter{out: os.Stdout}
}

func (w *JSONStdoutWriter) emit(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}

// Write outputs a step in JSON format.
func (w *JSONStdoutWriter) Write(st StepStats) error {
	return w.emit(st)
}

// WriteEvents outputs finished transmissions in JSON format.
func (w *JSONStdoutWriter) WriteEvents(events []Event) error {
	for _, e := range events {
		if err := w.emit(e); err != nil {
			return err
		}
	}
	return nil
}

// WriteDeliveries outputs the delivery record in JSON format.
func (w *JSONStdoutWriter) WriteDeliveries(rows []lora.Delivery) error {
	for _, d := range rows {
		if err := w.emit(d); err != nil {
			return err
		}
	}
	return nil
}

// WriteSummary outputs the run summary in JSON format.
func (w *JSONStdoutWriter) WriteSummary(s Summary) error {
	return w.emit(s)
}
