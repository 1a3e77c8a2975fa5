// Shared radio channel: received power, sensitivity and co-channel capture
package channel

import (
	"errors"
	"math"
	"math/rand"

	"github.com/rot226/simulator-lora-sfrd-2.0/internal/lora"
	"github.com/rot226/simulator-lora-sfrd-2.0/internal/network"
)

// DefaultCaptureMarginDB is the power advantage a signal needs to survive a collision.
const DefaultCaptureMarginDB = 6.0

// Config parameterises a Channel.
type Config struct {
	PathLoss        PathLoss
	CaptureMarginDB float64
	ShadowingStdDB  float64
	// Rand feeds log-normal shadowing. Required when ShadowingStdDB > 0.
	Rand *rand.Rand
}

// Channel decides reception verdicts for transmissions at gateways.
type Channel struct {
	pathLoss  PathLoss
	margin    float64
	shadowStd float64
	rand      *rand.Rand
}

// New validates cfg and builds a Channel.
func New(cfg Config) (*Channel, error) {
	if cfg.CaptureMarginDB < 0 {
		return nil, errors.New("capture margin must not be negative")
	}
	if cfg.ShadowingStdDB < 0 {
		return nil, errors.New("shadowing deviation must not be negative")
	}
	if cfg.ShadowingStdDB > 0 && cfg.Rand == nil {
		return nil, errors.New("shadowing requires a random source")
	}
	if cfg.PathLoss == nil {
		cfg.PathLoss = DefaultLogDistance
	}
	return &Channel{
		pathLoss:  cfg.PathLoss,
		margin:    cfg.CaptureMarginDB,
		shadowStd: cfg.ShadowingStdDB,
		rand:      cfg.Rand,
	}, nil
}

// CaptureMargin returns the configured capture margin in dB.
func (c *Channel) CaptureMargin() float64 { return c.margin }

// MeanRSSI is the received power without shadowing.
func (c *Channel) MeanRSSI(txPowerDBm float64, from, to lora.Position) float64 {
	return txPowerDBm - c.pathLoss.Loss(from.Distance(to))
}

// link is the state of one transmission as seen by one gateway.
type link struct {
	sf      int
	rssi    float64
	inRange bool
}

// heard reports whether the gateway could decode the signal on its own.
func (l link) heard() bool {
	if !l.inRange {
		return false
	}
	sens, ok := lora.Sensitivity(l.sf)
	return ok && l.rssi >= sens
}

// measure computes the link of tx to every gateway. Out-of-range pairs are
// not evaluated and consume no shadowing draw.
func (c *Channel) measure(tx lora.Transmission, gateways []*network.Gateway) []link {
	links := make([]link, len(gateways))
	for j, gw := range gateways {
		links[j].sf = tx.SF
		if !gw.InRange(tx.Origin) {
			continue
		}
		rssi := c.MeanRSSI(tx.TxPowerDBm, tx.Origin, gw.Position)
		if c.shadowStd > 0 {
			rssi -= c.rand.NormFloat64() * c.shadowStd
		}
		links[j].rssi = rssi
		links[j].inRange = true
	}
	return links
}

// outcome applies the reception test for one (transmission, gateway) pair.
// The target survives only if it beats every heard co-channel interferer by
// the capture margin; equal power never survives.
func (c *Channel) outcome(tx lora.Transmission, gw *network.Gateway, l link, interferers []link) lora.ReceptionOutcome {
	o := lora.ReceptionOutcome{Transmission: tx, GatewayID: gw.ID, RSSI: l.rssi, Time: tx.End()}
	if !l.heard() {
		o.Verdict = lora.OutOfRange
		return o
	}
	for _, in := range interferers {
		if in.sf != l.sf || !in.heard() {
			continue
		}
		if l.rssi <= in.rssi || l.rssi-in.rssi < c.margin {
			o.Verdict = lora.Collided
			return o
		}
	}
	o.Verdict = lora.Delivered
	return o
}

// Resolve evaluates every transmission of active at every gateway. Two
// transmissions interfere when their airtime overlaps. Outcomes are ordered by
// transmission, then by gateway as given.
func (c *Channel) Resolve(active []lora.Transmission, gateways []*network.Gateway) []lora.ReceptionOutcome {
	links := make([][]link, len(active))
	for i, tx := range active {
		links[i] = c.measure(tx, gateways)
	}
	out := make([]lora.ReceptionOutcome, 0, len(active)*len(gateways))
	for i, tx := range active {
		for j, gw := range gateways {
			var interferers []link
			for k, other := range active {
				if k != i && other.Overlaps(tx) {
					interferers = append(interferers, links[k][j])
				}
			}
			out = append(out, c.outcome(tx, gw, links[i][j], interferers))
		}
	}
	return out
}

// BestSF returns the lowest spreading factor whose sensitivity is met at the
// strongest in-range gateway, or MaxSF when none is reachable.
func (c *Channel) BestSF(txPowerDBm float64, pos lora.Position, gateways []*network.Gateway) int {
	best := math.Inf(-1)
	for _, gw := range gateways {
		if !gw.InRange(pos) {
			continue
		}
		if rssi := c.MeanRSSI(txPowerDBm, pos, gw.Position); rssi > best {
			best = rssi
		}
	}
	for sf := lora.MinSF; sf <= lora.MaxSF; sf++ {
		if sens, _ := lora.Sensitivity(sf); best >= sens {
			return sf
		}
	}
	return lora.MaxSF
}
