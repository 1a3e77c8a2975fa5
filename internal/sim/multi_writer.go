package sim

import (
	"errors"
	"io"

	"github.com/rot226/simulator-lora-sfrd-2.0/internal/lora"
)

// MultiWriter fan-outs step stats, events, deliveries and the summary to
// every writer that supports them.
type MultiWriter struct {
	writers []StatsWriter
}

// NewMultiWriter creates a new MultiWriter. Nil writers are skipped.
func NewMultiWriter(ws ...StatsWriter) *MultiWriter {
	mw := &MultiWriter{}
	for _, w := range ws {
		if w != nil {
			mw.writers = append(mw.writers, w)
		}
	}
	return mw
}

// Write sends a step to all writers.
func (mw *MultiWriter) Write(st StepStats) error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.Write(st); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteEvents sends finished transmissions to all event writers.
func (mw *MultiWriter) WriteEvents(events []Event) error {
	var errs []error
	for _, w := range mw.writers {
		if ew, ok := w.(EventWriter); ok {
			if err := ew.WriteEvents(events); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// WriteDeliveries sends the delivery record to all delivery writers.
func (mw *MultiWriter) WriteDeliveries(rows []lora.Delivery) error {
	var errs []error
	for _, w := range mw.writers {
		if dw, ok := w.(DeliveryWriter); ok {
			if err := dw.WriteDeliveries(rows); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// WriteFlush sends the final flush to all flush writers.
func (mw *MultiWriter) WriteFlush(st StepStats) error {
	var errs []error
	for _, w := range mw.writers {
		if fw, ok := w.(FlushWriter); ok {
			if err := fw.WriteFlush(st); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// WriteSummary sends the run summary to all summary writers.
func (mw *MultiWriter) WriteSummary(s Summary) error {
	var errs []error
	for _, w := range mw.writers {
		if sw, ok := w.(SummaryWriter); ok {
			if err := sw.WriteSummary(s); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// SetAdminStatus forwards admin UI status to writers that support it.
func (mw *MultiWriter) SetAdminStatus(active bool) {
	for _, w := range mw.writers {
		if aw, ok := w.(AdminStatusWriter); ok {
			aw.SetAdminStatus(active)
		}
	}
}

// Close closes every writer that holds resources.
func (mw *MultiWriter) Close() error {
	var errs []error
	for _, w := range mw.writers {
		if c, ok := w.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
