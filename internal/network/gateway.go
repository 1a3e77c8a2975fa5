package network

import (
	"github.com/rot226/simulator-lora-sfrd-2.0/internal/lora"
)

// Sink receives Delivered outcomes forwarded by gateways.
type Sink interface {
	Ingest(lora.ReceptionOutcome) error
}

// Gateway is a LoRa receiver at a fixed position.
type Gateway struct {
	ID       int           `json:"id"`
	Position lora.Position `json:"position"`
	// RangeM is the maximum reception distance in metres; 0 leaves it to sensitivity alone.
	RangeM float64 `json:"range_m"`
}

// InRange reports whether a transmitter at pos may be heard. A node strictly
// farther than RangeM is out of range.
func (g *Gateway) InRange(pos lora.Position) bool {
	if g.RangeM <= 0 {
		return true
	}
	return g.Position.Distance(pos) <= g.RangeM
}

// Report forwards a Delivered outcome to sink and reports whether it did.
// Outcomes for other gateways or other verdicts are dropped.
func (g *Gateway) Report(o lora.ReceptionOutcome, sink Sink) (bool, error) {
	if o.Verdict != lora.Delivered || o.GatewayID != g.ID {
		return false, nil
	}
	if err := sink.Ingest(o); err != nil {
		return false, err
	}
	return true, nil
}
