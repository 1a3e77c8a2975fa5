// Simulator orchestrating nodes, channel, gateways and the network server
package sim

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/rot226/simulator-lora-sfrd-2.0/internal/adr"
	"github.com/rot226/simulator-lora-sfrd-2.0/internal/channel"
	"github.com/rot226/simulator-lora-sfrd-2.0/internal/config"
	"github.com/rot226/simulator-lora-sfrd-2.0/internal/dutycycle"
	"github.com/rot226/simulator-lora-sfrd-2.0/internal/lora"
	"github.com/rot226/simulator-lora-sfrd-2.0/internal/mobility"
	"github.com/rot226/simulator-lora-sfrd-2.0/internal/network"
	"github.com/rot226/simulator-lora-sfrd-2.0/internal/node"
	"github.com/rot226/simulator-lora-sfrd-2.0/internal/scenario"
)

var (
	// ErrFinished is returned by Step once the terminal step has run.
	ErrFinished = errors.New("simulation finished")
	// ErrInvariant reports an outcome that references an unknown node or gateway.
	ErrInvariant = errors.New("simulation invariant violated")
)

// random stream ids fed to deriveSeed
const (
	streamPlacement uint64 = iota + 1
	streamChannel
	streamMobility
	streamNodes = 1 << 20
)

// Simulator runs one LoRa network simulation. It is not restartable.
type Simulator struct {
	runID   string
	cfg     *config.SimulationConfig
	seed    int64
	drawn   bool
	log     *slog.Logger
	writer  StatsWriter
	clock   *Clock
	pace    time.Duration
	nodes   []*node.Node
	byID    map[int]*node.Node
	gws     []*network.Gateway
	gwByID  map[int]*network.Gateway
	channel *channel.Channel
	air     *channel.Air
	server  *network.Server
	mob     mobility.Model
	adr     *adr.Controller
	phases  *scenario.Tracker
	sc      *scenario.Scenario

	totals    Totals
	latest    StepStats
	events    []Event
	finalized bool
	record    []lora.Delivery
	mu        sync.Mutex
}

// Option customises a Simulator.
type Option func(*Simulator)

// WithLogger sets the logger used during construction and finalisation.
func WithLogger(l *slog.Logger) Option {
	return func(s *Simulator) {
		if l != nil {
			s.log = l
		}
	}
}

// WithScenario drives node intervals from scenario phases.
func WithScenario(sc *scenario.Scenario) Option {
	return func(s *Simulator) { s.sc = sc }
}

// WithPace delays every step by d of wall-clock time in Run.
func WithPace(d time.Duration) Option {
	return func(s *Simulator) { s.pace = d }
}

// NewSimulator validates cfg and builds every component. writer may be nil.
func NewSimulator(runID string, cfg *config.SimulationConfig, writer StatsWriter, opts ...Option) (*Simulator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil configuration", config.ErrInvalid)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Simulator{
		runID:  runID,
		cfg:    cfg,
		log:    slog.Default(),
		writer: writer,
		clock:  NewClock(cfg.Run.StepLength, cfg.Run.Steps),
		pace:   cfg.Run.Pace,
		byID:   map[int]*node.Node{},
		gwByID: map[int]*network.Gateway{},
	}
	for _, o := range opts {
		o(s)
	}

	if cfg.Run.Seed != nil {
		s.seed = *cfg.Run.Seed
	} else {
		s.seed = time.Now().UnixNano()
		s.drawn = true
		s.log.Warn("no seed configured, run is not reproducible unless this seed is reused", "seed", s.seed, "run_id", runID)
	}

	if err := s.build(); err != nil {
		return nil, err
	}
	if s.sc != nil {
		if err := s.sc.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
		}
		s.phases = scenario.NewTracker(s.sc)
		s.applyPhase(s.phases.Current())
	}
	s.log.Info("simulator ready",
		"run_id", runID,
		"nodes", len(s.nodes),
		"gateways", len(s.gws),
		"steps", cfg.Run.Steps,
		"step_length", cfg.Run.StepLength,
		"seed", s.seed,
	)
	return s, nil
}

func (s *Simulator) build() error {
	cfg := s.cfg
	place := s.rand(streamPlacement)

	pl, err := channel.NewPathLoss(cfg.Channel.PathLoss, cfg.Channel.FrequencyHz, cfg.Channel.PathLossExponent)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	s.channel, err = channel.New(channel.Config{
		PathLoss:        pl,
		CaptureMarginDB: cfg.Channel.CaptureMarginDB,
		ShadowingStdDB:  cfg.Channel.ShadowingStdDB,
		Rand:            s.rand(streamChannel),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}

	for i, p := range gatewayPositions(cfg, place) {
		gw := &network.Gateway{ID: i, Position: p, RangeM: cfg.Gateways.RangeM}
		s.gws = append(s.gws, gw)
		s.gwByID[gw.ID] = gw
	}
	s.air = s.channel.NewAir(s.gws)
	s.server = network.NewServer(s.gws)

	s.mob, err = mobility.New(cfg.Mobility.Model, cfg.Area.SizeM, cfg.Mobility.MinSpeed, cfg.Mobility.MaxSpeed, s.rand(streamMobility))
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	gate, err := newGate(cfg.DutyCycle)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	mode, err := node.ParseMode(cfg.Nodes.TrafficMode)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	if cfg.ADR.Node {
		s.adr = adr.NewController(cfg.ADR.Server)
	}

	for i, p := range nodePositions(cfg, place) {
		r := s.rand(streamNodes + uint64(i))
		nc := node.Config{
			Mode:         mode,
			Interval:     cfg.Nodes.Interval,
			Jitter:       cfg.Nodes.Jitter,
			SF:           s.initialSF(place, p),
			TxPowerDBm:   cfg.Nodes.TxPower(),
			PayloadBytes: cfg.Nodes.PayloadBytes,
			Airtime:      cfg.Nodes.Airtime,
		}
		if cfg.Nodes.Stagger && mode == node.Periodic {
			nc.Offset = r.Float64() * cfg.Nodes.Interval
		}
		n, err := node.New(i, p, nc, gate, r)
		if err != nil {
			return fmt.Errorf("%w: %v", config.ErrInvalid, err)
		}
		s.nodes = append(s.nodes, n)
		s.byID[n.ID] = n
	}
	return nil
}

func (s *Simulator) initialSF(place *rand.Rand, p lora.Position) int {
	switch s.cfg.Nodes.SFPolicy {
	case "random":
		return lora.MinSF + place.Intn(lora.MaxSF-lora.MinSF+1)
	case "distance":
		return s.channel.BestSF(s.cfg.Nodes.TxPower(), p, s.gws)
	default:
		return s.cfg.Nodes.SF
	}
}

func newGate(dc config.DutyCycle) (dutycycle.Gate, error) {
	switch dc.Policy {
	case "bounded":
		return dutycycle.NewBounded(dc.Fraction, dc.Window, dc.Capacity)
	case "off_time":
		return dutycycle.NewOffTime(dc.Fraction)
	default:
		return dutycycle.Unlimited{}, nil
	}
}

// gatewayPositions uses explicit positions when given, the area centre for a
// single gateway, and uniform random placement otherwise.
func gatewayPositions(cfg *config.SimulationConfig, r *rand.Rand) []lora.Position {
	if len(cfg.Gateways.Positions) > 0 {
		return toPositions(cfg.Gateways.Positions)
	}
	if cfg.Gateways.Count == 1 {
		c := cfg.Area.SizeM / 2
		return []lora.Position{{X: c, Y: c}}
	}
	return randomPositions(cfg.Gateways.Count, cfg.Area.SizeM, r)
}

func nodePositions(cfg *config.SimulationConfig, r *rand.Rand) []lora.Position {
	if len(cfg.Nodes.Positions) > 0 {
		return toPositions(cfg.Nodes.Positions)
	}
	return randomPositions(cfg.Nodes.Count, cfg.Area.SizeM, r)
}

func toPositions(pts []config.Point) []lora.Position {
	out := make([]lora.Position, len(pts))
	for i, p := range pts {
		out[i] = lora.Position{X: p.X, Y: p.Y}
	}
	return out
}

func randomPositions(n int, size float64, r *rand.Rand) []lora.Position {
	out := make([]lora.Position, n)
	for i := range out {
		out[i] = lora.Position{X: r.Float64() * size, Y: r.Float64() * size}
	}
	return out
}

func (s *Simulator) rand(stream uint64) *rand.Rand {
	return rand.New(rand.NewSource(deriveSeed(s.seed, stream)))
}

// deriveSeed mixes the run seed with a stream id (splitmix64 finaliser) so
// every component gets an independent, reproducible generator.
func deriveSeed(seed int64, stream uint64) int64 {
	z := uint64(seed) + stream*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return int64(z ^ (z >> 31))
}

func (s *Simulator) applyPhase(p scenario.Phase) {
	for _, n := range s.nodes {
		n.SetIntervalScale(p.IntervalScale)
	}
}

// RunID returns the run identifier.
func (s *Simulator) RunID() string { return s.runID }

// Seed returns the seed in use and whether it was drawn from the clock.
func (s *Simulator) Seed() (int64, bool) { return s.seed, s.drawn }

// GetConfig returns the simulation configuration.
func (s *Simulator) GetConfig() *config.SimulationConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Done reports whether every configured step has run.
func (s *Simulator) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.Done()
}

// Latest returns the statistics of the last executed step.
func (s *Simulator) Latest() StepStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Totals returns the cumulative counters.
func (s *Simulator) Totals() Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals
}

// Metrics returns PDR, average delay and the current SF distribution.
func (s *Simulator) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metricsLocked()
}

func (s *Simulator) metricsLocked() Metrics {
	dist := make(map[int]int, lora.MaxSF-lora.MinSF+1)
	for sf := lora.MinSF; sf <= lora.MaxSF; sf++ {
		dist[sf] = 0
	}
	for _, n := range s.nodes {
		dist[n.SF()]++
	}
	m := Metrics{
		Totals:         s.totals,
		PDR:            s.totals.PDR(),
		AvgDelay:       s.totals.AvgDelay(),
		SFDistribution: dist,
	}
	if s.phases != nil {
		m.Phase = s.phases.Current().Name
	}
	return m
}

// Events returns a copy of the finished-transmission log.
func (s *Simulator) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// Deliveries returns the delivery record collected so far, sorted by node id and sequence number.
func (s *Simulator) Deliveries() []lora.Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return append([]lora.Delivery(nil), s.record...)
	}
	out := s.server.Deliveries()
	sort.Slice(out, func(i, j int) bool {
		if out[i].NodeID != out[j].NodeID {
			return out[i].NodeID < out[j].NodeID
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

// Nodes returns a snapshot of every node in id order.
func (s *Simulator) Nodes() []NodeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]NodeState, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, NodeState{
			ID:         n.ID,
			Position:   n.Position,
			SF:         n.SF(),
			TxPowerDBm: n.TxPower(),
			Seq:        n.Seq(),
			Sent:       n.SentCount(),
			Deferred:   n.DeferredCount(),
			NextFire:   n.NextFire(),
		})
	}
	return out
}

// Gateways returns the gateways in id order.
func (s *Simulator) Gateways() []network.Gateway {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]network.Gateway, len(s.gws))
	for i, g := range s.gws {
		out[i] = *g
	}
	return out
}

// Summary builds the run summary row.
func (s *Simulator) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaryLocked()
}

func (s *Simulator) summaryLocked() Summary {
	return Summary{
		RunID:      s.runID,
		Seed:       s.seed,
		Nodes:      len(s.nodes),
		Gateways:   len(s.gws),
		AreaM:      s.cfg.Area.SizeM,
		Mode:       s.cfg.Nodes.TrafficMode,
		Interval:   s.cfg.Nodes.Interval,
		Steps:      s.clock.Step(),
		Sent:       s.totals.Sent,
		Delivered:  s.totals.Delivered,
		Collisions: s.totals.Collided,
		NoCoverage: s.totals.NoCoverage,
		PDRPct:     s.totals.PDR() * 100,
		AvgDelay:   s.totals.AvgDelay(),
	}
}
