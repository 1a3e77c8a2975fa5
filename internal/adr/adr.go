// Adaptive data rate: per-node link history driving SF and power changes
package adr

import (
	"github.com/rot226/simulator-lora-sfrd-2.0/internal/lora"
)

// RequiredSNR is the demodulation floor per spreading factor, in dB.
var RequiredSNR = map[int]float64{
	7:  -7.5,
	8:  -10,
	9:  -12.5,
	10: -15,
	11: -17.5,
	12: -20,
}

// Tuning constants.
const (
	InstallationMarginDB = 10.0
	PERThreshold         = 0.1
	HistorySize          = 20
	PowerStepDB          = 3.0
	MinTxPowerDBm        = 2.0
	MaxTxPowerDBm        = lora.DefaultTxPowerDBm
)

// Radio is the part of a node ADR can tune.
type Radio interface {
	SF() int
	TxPower() float64
	SetSF(int) error
	SetTxPower(float64)
}

type sample struct {
	snr       float64
	hasSNR    bool
	delivered bool
}

// ServerRSSIThresholdDBm splits the server rule: a stronger first delivery
// lowers the spreading factor, a weaker one raises it.
const ServerRSSIThresholdDBm = -120.0

// Controller keeps the last HistorySize uplinks of every node. Change requests
// are only carried out when the controller applies them; otherwise the
// history keeps growing up to HistorySize.
type Controller struct {
	history map[int][]sample
	apply   bool
}

// NewController creates an empty controller. apply selects whether change
// requests reach the radio.
func NewController(apply bool) *Controller {
	return &Controller{history: map[int][]sample{}, apply: apply}
}

// ServerAdjust is the network server rule run on the first delivery of a
// packet. It steps the spreading factor by one within 7..12 and reports
// whether it changed.
func ServerAdjust(r Radio, rssi float64) bool {
	switch {
	case rssi > ServerRSSIThresholdDBm && r.SF() > lora.MinSF:
		return r.SetSF(r.SF()-1) == nil
	case rssi < ServerRSSIThresholdDBm && r.SF() < lora.MaxSF:
		return r.SetSF(r.SF()+1) == nil
	}
	return false
}

// Observe records one finished uplink. bestRSSI is only read when delivered.
// It reports whether the radio settings changed, which requires apply.
func (c *Controller) Observe(nodeID int, r Radio, delivered bool, bestRSSI float64) bool {
	s := sample{delivered: delivered}
	if delivered {
		if sens, ok := lora.Sensitivity(r.SF()); ok {
			s.snr = bestRSSI - sens + RequiredSNR[r.SF()]
			s.hasSNR = true
		}
	}
	h := append(c.history[nodeID], s)
	if len(h) > HistorySize {
		h = h[len(h)-HistorySize:]
	}
	c.history[nodeID] = h

	if !c.apply {
		return false
	}
	per := packetErrorRate(h)
	margin, ok := linkMargin(h, r.SF())
	switch {
	case per > PERThreshold:
		c.history[nodeID] = nil
		return increaseRange(r)
	case ok && margin > 0:
		c.history[nodeID] = nil
		return decreaseRange(r, int(margin/PowerStepDB))
	}
	return false
}

// History returns the number of samples kept for nodeID.
func (c *Controller) History(nodeID int) int {
	return len(c.history[nodeID])
}

func packetErrorRate(h []sample) float64 {
	if len(h) == 0 {
		return 0
	}
	lost := 0
	for _, s := range h {
		if !s.delivered {
			lost++
		}
	}
	return float64(lost) / float64(len(h))
}

// linkMargin is max SNR - required SNR - installation margin.
func linkMargin(h []sample, sf int) (float64, bool) {
	found := false
	best := 0.0
	for _, s := range h {
		if s.hasSNR && (!found || s.snr > best) {
			best = s.snr
			found = true
		}
	}
	if !found {
		return 0, false
	}
	return best - RequiredSNR[sf] - InstallationMarginDB, true
}

// increaseRange raises SF first, then power.
func increaseRange(r Radio) bool {
	if r.SF() < lora.MaxSF {
		return r.SetSF(r.SF()+1) == nil
	}
	if r.TxPower() < MaxTxPowerDBm {
		r.SetTxPower(min(MaxTxPowerDBm, r.TxPower()+PowerStepDB))
		return true
	}
	return false
}

// decreaseRange spends margin in 3 dB steps: lower SF while possible, and
// lower power along the way.
func decreaseRange(r Radio, steps int) bool {
	changed := false
	for steps > 0 {
		if r.SF() > lora.MinSF {
			if err := r.SetSF(r.SF() - 1); err != nil {
				break
			}
			if r.TxPower() > MinTxPowerDBm {
				r.SetTxPower(max(MinTxPowerDBm, r.TxPower()-PowerStepDB))
			}
			changed = true
			steps--
			continue
		}
		if r.TxPower() <= MinTxPowerDBm {
			break
		}
		r.SetTxPower(max(MinTxPowerDBm, r.TxPower()-PowerStepDB))
		changed = true
		steps--
	}
	return changed
}
