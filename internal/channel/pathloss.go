package channel

import (
	"fmt"
	"math"
	"strings"
)

// DefaultFrequencyHz is the EU868 centre frequency.
const DefaultFrequencyHz = 868e6

// PathLoss maps a transmitter-receiver distance in metres to attenuation in dB.
type PathLoss interface {
	Loss(distanceM float64) float64
}

// LogDistance is PL(d) = FSPL(d0) + 10·γ·log10(d/d0), with distances below d0 clamped to d0.
type LogDistance struct {
	FrequencyHz  float64
	Exponent     float64
	RefDistanceM float64
}

// DefaultLogDistance uses 868 MHz, γ = 2.7 and d0 = 1 m.
var DefaultLogDistance = LogDistance{FrequencyHz: DefaultFrequencyHz, Exponent: 2.7, RefDistanceM: 1}

// Loss implements PathLoss.
func (l LogDistance) Loss(d float64) float64 {
	d0 := l.RefDistanceM
	if d0 <= 0 {
		d0 = 1
	}
	return freeSpaceLoss(d0, l.FrequencyHz) + 10*l.Exponent*math.Log10(math.Max(d, d0)/d0)
}

// FreeSpace is the Friis free-space loss, clamped at 1 m.
type FreeSpace struct {
	FrequencyHz float64
}

// Loss implements PathLoss.
func (f FreeSpace) Loss(d float64) float64 {
	return freeSpaceLoss(math.Max(d, 1), f.FrequencyHz)
}

// freeSpaceLoss is 20·log10(d_km) + 20·log10(f_MHz) + 32.45.
func freeSpaceLoss(dM, freqHz float64) float64 {
	return 20*math.Log10(dM/1000) + 20*math.Log10(freqHz/1e6) + 32.45
}

// NewPathLoss selects a model by name: "log_distance" (default) or "free_space".
func NewPathLoss(name string, frequencyHz, exponent float64) (PathLoss, error) {
	if frequencyHz <= 0 {
		frequencyHz = DefaultFrequencyHz
	}
	switch strings.ToLower(name) {
	case "", "log_distance", "logdistance":
		if exponent <= 0 {
			exponent = DefaultLogDistance.Exponent
		}
		return LogDistance{FrequencyHz: frequencyHz, Exponent: exponent, RefDistanceM: 1}, nil
	case "free_space", "freespace":
		return FreeSpace{FrequencyHz: frequencyHz}, nil
	default:
		return nil, fmt.Errorf("unknown path loss model: %s", name)
	}
}
