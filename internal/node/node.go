package node

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/rot226/simulator-lora-sfrd-2.0/internal/dutycycle"
	"github.com/rot226/simulator-lora-sfrd-2.0/internal/lora"
)

// Mode selects how a node spaces its transmissions.
type Mode string

// Traffic modes.
const (
	Periodic Mode = "periodic"
	Random   Mode = "random"
)

// ParseMode accepts "periodic" or "random" in any case.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case Periodic:
		return Periodic, nil
	case Random:
		return Random, nil
	default:
		return "", fmt.Errorf("unknown traffic mode: %q", s)
	}
}

// Attempt is the result of one MaybeTransmit call.
type Attempt int

// Attempt values.
const (
	Idle Attempt = iota
	Sent
	Deferred
)

func (a Attempt) String() string {
	switch a {
	case Sent:
		return "sent"
	case Deferred:
		return "deferred"
	default:
		return "idle"
	}
}

// Config holds per-node traffic and radio settings.
type Config struct {
	Mode         Mode
	Interval     float64 // period, or mean inter-arrival for Random
	Jitter       float64 // uniform extra delay in [0, Jitter) for Periodic
	Offset       float64 // earliest first transmission
	SF           int
	TxPowerDBm   float64
	PayloadBytes int
	Airtime      float64 // fixed time on air; 0 derives it from SF and payload
	PHY          lora.PHY
}

// Node is a LoRa end device.
type Node struct {
	ID       int
	Position lora.Position

	cfg      Config
	sf       int
	txPower  float64
	scale    float64
	seq      int
	nextFire float64
	retrying bool
	sent     int
	deferred int
	gate     dutycycle.Gate
	rand     *rand.Rand
}

// New creates a node. r may be nil only for Periodic traffic without jitter.
func New(id int, pos lora.Position, cfg Config, gate dutycycle.Gate, r *rand.Rand) (*Node, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("node %d: interval must be positive, got %v", id, cfg.Interval)
	}
	if cfg.Mode != Periodic && cfg.Mode != Random {
		return nil, fmt.Errorf("node %d: unknown traffic mode %q", id, cfg.Mode)
	}
	if !lora.ValidSF(cfg.SF) {
		return nil, fmt.Errorf("node %d: spreading factor %d outside %d..%d", id, cfg.SF, lora.MinSF, lora.MaxSF)
	}
	if r == nil && (cfg.Mode == Random || cfg.Jitter > 0) {
		return nil, fmt.Errorf("node %d: random source required", id)
	}
	if cfg.PayloadBytes <= 0 {
		cfg.PayloadBytes = lora.DefaultPayloadBytes
	}
	if cfg.PHY.BandwidthHz == 0 {
		cfg.PHY = lora.DefaultPHY
	}
	if gate == nil {
		gate = dutycycle.Unlimited{}
	}
	n := &Node{
		ID:       id,
		Position: pos,
		cfg:      cfg,
		sf:       cfg.SF,
		txPower:  cfg.TxPowerDBm,
		scale:    1,
		gate:     gate,
		rand:     r,
	}
	n.nextFire = cfg.Offset
	if cfg.Mode == Random {
		n.nextFire += n.draw()
	} else if cfg.Jitter > 0 {
		n.nextFire += n.rand.Float64() * cfg.Jitter
	}
	return n, nil
}

// MaybeTransmit fires when the scheduled time has passed and the gate allows it.
func (n *Node) MaybeTransmit(now float64) (lora.Transmission, Attempt) {
	if now < n.nextFire {
		return lora.Transmission{}, Idle
	}
	airtime := n.Airtime()
	if ok, retryAt := n.gate.Allow(n.ID, airtime, now); !ok {
		n.deferred++
		n.retrying = true
		n.advance(retryAt)
		return lora.Transmission{}, Deferred
	}
	n.seq++
	n.sent++
	tx := lora.Transmission{
		NodeID:     n.ID,
		Seq:        n.seq,
		Start:      now,
		Airtime:    airtime,
		SF:         n.sf,
		TxPowerDBm: n.txPower,
		Origin:     n.Position,
	}
	n.scheduleAfterSend(now)
	return tx, Sent
}

func (n *Node) scheduleAfterSend(now float64) {
	if n.cfg.Mode == Random {
		n.advance(now + n.draw())
		n.retrying = false
		return
	}
	base := n.nextFire
	if n.retrying {
		base = now
	}
	n.retrying = false
	next := base + n.period()
	for next <= now {
		next += n.period()
	}
	if n.cfg.Jitter > 0 {
		next += n.rand.Float64() * n.cfg.Jitter
	}
	n.advance(next)
}

func (n *Node) period() float64 {
	return n.cfg.Interval * n.scale
}

// draw returns an exponential inter-arrival time with mean period().
func (n *Node) draw() float64 {
	return n.rand.ExpFloat64() * n.period()
}

// advance keeps the next-eligible time non-decreasing.
func (n *Node) advance(t float64) {
	if t > n.nextFire {
		n.nextFire = t
	}
}

// Airtime returns the time on air of the node's next packet.
func (n *Node) Airtime() float64 {
	if n.cfg.Airtime > 0 {
		return n.cfg.Airtime
	}
	return n.cfg.PHY.Airtime(n.sf, n.cfg.PayloadBytes)
}

// NextFire returns the earliest time the node will try again.
func (n *Node) NextFire() float64 { return n.nextFire }

// Seq returns the last sequence number used.
func (n *Node) Seq() int { return n.seq }

// SentCount returns the number of transmissions made.
func (n *Node) SentCount() int { return n.sent }

// DeferredCount returns the number of duty-cycle denials.
func (n *Node) DeferredCount() int { return n.deferred }

// SF returns the current spreading factor.
func (n *Node) SF() int { return n.sf }

// TxPower returns the current transmit power in dBm.
func (n *Node) TxPower() float64 { return n.txPower }

// Mode returns the traffic mode.
func (n *Node) Mode() Mode { return n.cfg.Mode }

// SetSF changes the spreading factor used from the next packet on.
func (n *Node) SetSF(sf int) error {
	if !lora.ValidSF(sf) {
		return fmt.Errorf("node %d: spreading factor %d outside %d..%d", n.ID, sf, lora.MinSF, lora.MaxSF)
	}
	n.sf = sf
	return nil
}

// SetTxPower changes the transmit power used from the next packet on.
func (n *Node) SetTxPower(dbm float64) { n.txPower = dbm }

// SetIntervalScale multiplies the configured interval for future scheduling.
func (n *Node) SetIntervalScale(scale float64) {
	if scale > 0 {
		n.scale = scale
	}
}
