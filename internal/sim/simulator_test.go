package sim

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/rot226/simulator-lora-sfrd-2.0/internal/config"
	"github.com/rot226/simulator-lora-sfrd-2.0/internal/scenario"
)

// singleNodeConfig is one periodic node 50 m from a gateway in the area centre.
func singleNodeConfig() *config.SimulationConfig {
	seed := int64(42)
	cfg := &config.SimulationConfig{}
	cfg.Run.Seed = &seed
	cfg.Run.Steps = 5
	cfg.Run.StepLength = 10
	cfg.Nodes.Count = 1
	cfg.Nodes.TrafficMode = "periodic"
	cfg.Nodes.Interval = 10
	cfg.Nodes.SFPolicy = "fixed"
	cfg.Nodes.SF = 7
	cfg.Nodes.Positions = []config.Point{{X: 450, Y: 500}}
	cfg.Gateways.Count = 1
	cfg.ApplyDefaults()
	return cfg
}

func runAll(t *testing.T, s *Simulator) {
	t.Helper()
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestSimulatorPeriodicNodeDelivers(t *testing.T) {
	w := &recordingWriter{}
	s, err := NewSimulator("run-1", singleNodeConfig(), w)
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	runAll(t, s)

	tot := s.Totals()
	if tot.Sent != 5 || tot.Delivered != 5 || tot.Collided != 0 {
		t.Fatalf("unexpected totals %+v", tot)
	}
	if len(w.stats) != 5 || w.stats[4].Step != 5 || w.stats[4].Time != 40 {
		t.Fatalf("unexpected step stats %+v", w.stats)
	}
	if len(w.events) != 5 || w.events[0].Result != ResultSuccess || w.events[0].GatewayID != 0 {
		t.Fatalf("unexpected events %+v", w.events)
	}

	rec, err := s.Finalize(context.Background())
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if len(rec) != 5 {
		t.Fatalf("expected 5 deliveries, got %d", len(rec))
	}
	for i, d := range rec {
		if d.NodeID != 0 || d.Seq != i+1 || d.Time <= float64(i)*10 {
			t.Fatalf("unexpected delivery %d: %+v", i, d)
		}
	}
	if len(w.deliveries) != 5 || len(w.summaries) != 1 {
		t.Fatalf("finalize did not reach the writer: %d deliveries, %d summaries", len(w.deliveries), len(w.summaries))
	}
	if sum := w.summaries[0]; sum.PDRPct != 100 || sum.Steps != 5 || sum.Seed != 42 {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

func TestSimulatorEqualPowerCollision(t *testing.T) {
	cfg := singleNodeConfig()
	cfg.Run.Steps = 1
	cfg.Nodes.Count = 2
	cfg.Nodes.Positions = []config.Point{{X: 400, Y: 500}, {X: 600, Y: 500}}
	cfg.Channel.CaptureMarginDB = 0

	s, err := NewSimulator("collide", cfg, nil)
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	st, err := s.Step(context.Background())
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if st.Sent != 2 || st.Collided != 2 || st.Delivered != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
	for _, e := range s.Events() {
		if e.Result != ResultCollision || e.GatewayID != -1 {
			t.Fatalf("unexpected event %+v", e)
		}
	}
	rec, err := s.Finalize(context.Background())
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if len(rec) != 0 {
		t.Fatalf("expected empty record, got %+v", rec)
	}
}

func TestSimulatorDutyCycleDefers(t *testing.T) {
	cfg := singleNodeConfig()
	cfg.Run.Steps = 60
	cfg.Nodes.Airtime = 6
	cfg.DutyCycle = config.DutyCycle{Policy: "bounded", Fraction: 0.01, Window: 600}

	s, err := NewSimulator("duty", cfg, nil)
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	runAll(t, s)
	tot := s.Totals()
	if tot.Sent != 1 {
		t.Fatalf("expected a single transmission inside the window, got %d", tot.Sent)
	}
	if tot.Deferred < 1 {
		t.Fatalf("expected deferred attempts, got %+v", tot)
	}
	if n := s.Nodes()[0]; n.NextFire != 600 {
		t.Fatalf("expected retry at 600, got %v", n.NextFire)
	}
}

func TestSimulatorDuplicateAcrossGateways(t *testing.T) {
	cfg := singleNodeConfig()
	cfg.Run.Steps = 1
	cfg.Nodes.Positions = []config.Point{{X: 500, Y: 500}}
	cfg.Gateways.Count = 2
	cfg.Gateways.Positions = []config.Point{{X: 400, Y: 500}, {X: 700, Y: 500}}

	s, err := NewSimulator("dup", cfg, nil)
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	st, err := s.Step(context.Background())
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if st.Delivered != 1 {
		t.Fatalf("expected one delivery, got %+v", st)
	}
	ev := s.Events()[0]
	if ev.GatewayID != 0 {
		t.Fatalf("expected first reporting gateway 0, got %d", ev.GatewayID)
	}
	if tot := s.Totals(); tot.Duplicates != 1 {
		t.Fatalf("expected one duplicate, got %d", tot.Duplicates)
	}
	if d := s.Deliveries(); len(d) != 1 || d[0].GatewayID != 0 {
		t.Fatalf("unexpected deliveries %+v", d)
	}
}

func TestSimulatorNoCoverage(t *testing.T) {
	cfg := singleNodeConfig()
	cfg.Run.Steps = 1
	cfg.Nodes.Positions = []config.Point{{X: 950, Y: 950}}
	cfg.Gateways.RangeM = 100

	s, err := NewSimulator("far", cfg, nil)
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	st, err := s.Step(context.Background())
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if st.NoCoverage != 1 || st.Delivered != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if r := s.Events()[0].Result; r != ResultNoCoverage {
		t.Fatalf("result = %s, want %s", r, ResultNoCoverage)
	}
}

func TestSimulatorFinalizeFlushesAir(t *testing.T) {
	cfg := singleNodeConfig()
	cfg.Run.Steps = 1
	cfg.Nodes.Airtime = 15

	w := &recordingWriter{}
	s, err := NewSimulator("flush", cfg, w)
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	st, err := s.Step(context.Background())
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if st.Sent != 1 || st.Delivered != 0 {
		t.Fatalf("transmission should still be on the air: %+v", st)
	}
	rec, err := s.Finalize(context.Background())
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if len(rec) != 1 || rec[0].Time != 15 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if tot := s.Totals(); tot.Delivered != 1 {
		t.Fatalf("flushed delivery not counted: %+v", tot)
	}
	if len(w.stats) != 1 {
		t.Fatalf("flush must not add a step row, got %d", len(w.stats))
	}
	if len(w.flushes) != 1 || w.flushes[0].Delivered != 1 || w.flushes[0].Sent != 0 || w.flushes[0].Step != 1 {
		t.Fatalf("unexpected flush %+v", w.flushes)
	}
}

func TestSimulatorStepAfterEnd(t *testing.T) {
	cfg := singleNodeConfig()
	cfg.Run.Steps = 2
	s, err := NewSimulator("end", cfg, nil)
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	runAll(t, s)
	if !s.Done() {
		t.Fatalf("expected simulator to be done")
	}
	if _, err := s.Step(context.Background()); !errors.Is(err, ErrFinished) {
		t.Fatalf("expected ErrFinished, got %v", err)
	}
}

func TestSimulatorFinalizeIdempotent(t *testing.T) {
	w := &recordingWriter{}
	s, err := NewSimulator("twice", singleNodeConfig(), w)
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	runAll(t, s)
	first, err := s.Finalize(context.Background())
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	second, err := s.Finalize(context.Background())
	if err != nil {
		t.Fatalf("second finalize: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("records differ: %+v vs %+v", first, second)
	}
	if len(w.summaries) != 1 {
		t.Fatalf("summary written %d times", len(w.summaries))
	}
	if _, err := s.Step(context.Background()); !errors.Is(err, ErrFinished) {
		t.Fatalf("expected ErrFinished after finalize, got %v", err)
	}
}

func TestSimulatorDeterministic(t *testing.T) {
	build := func() *config.SimulationConfig {
		seed := int64(7)
		cfg := &config.SimulationConfig{}
		cfg.Run.Seed = &seed
		cfg.Run.Steps = 50
		cfg.Nodes.Count = 20
		cfg.Nodes.TrafficMode = "random"
		cfg.Nodes.Interval = 5
		cfg.Nodes.SFPolicy = "random"
		cfg.Gateways.Count = 2
		cfg.Channel.ShadowingStdDB = 4
		cfg.Mobility.Model = "random_walk"
		cfg.ApplyDefaults()
		return cfg
	}
	run := func() (Totals, []Event) {
		s, err := NewSimulator("det", build(), nil)
		if err != nil {
			t.Fatalf("new simulator: %v", err)
		}
		runAll(t, s)
		if _, err := s.Finalize(context.Background()); err != nil {
			t.Fatalf("finalize: %v", err)
		}
		return s.Totals(), s.Events()
	}
	t1, e1 := run()
	t2, e2 := run()
	if t1 != t2 {
		t.Fatalf("totals differ: %+v vs %+v", t1, t2)
	}
	if !reflect.DeepEqual(e1, e2) {
		t.Fatalf("event logs differ")
	}
	if t1.Sent == 0 {
		t.Fatalf("expected traffic in a 50 step run")
	}
}

func TestSimulatorSeedDrawnWhenMissing(t *testing.T) {
	cfg := singleNodeConfig()
	cfg.Run.Seed = nil
	s, err := NewSimulator("seedless", cfg, nil)
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	if _, drawn := s.Seed(); !drawn {
		t.Fatalf("expected a seed drawn from the clock")
	}
}

func TestSimulatorInvalidConfig(t *testing.T) {
	cfg := singleNodeConfig()
	cfg.Nodes.Interval = 0
	if _, err := NewSimulator("bad", cfg, nil); !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	if _, err := NewSimulator("nil", nil, nil); !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for nil config, got %v", err)
	}
}

func TestSimulatorRejectsNoGateways(t *testing.T) {
	// without a gateway no finished transmission could be classified.
	cfg := singleNodeConfig()
	cfg.Gateways.Count = 0
	if _, err := NewSimulator("no-gw", cfg, nil); !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestSimulatorRunCancelled(t *testing.T) {
	s, err := NewSimulator("cancel", singleNodeConfig(), nil)
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if s.Latest().Step != 0 {
		t.Fatalf("no step should run after cancellation")
	}
}

func TestSimulatorPacedRunStopsWhileWaiting(t *testing.T) {
	s, err := NewSimulator("paced", singleNodeConfig(), nil, WithPace(time.Hour))
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)
	if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if s.Latest().Step != 0 {
		t.Fatalf("no step should run before the first tick")
	}
}

func TestSimulatorPacketsToSendCapsWholeRun(t *testing.T) {
	cfg := singleNodeConfig()
	cfg.Nodes.Count = 3
	cfg.Nodes.Positions = []config.Point{{X: 450, Y: 500}, {X: 550, Y: 500}, {X: 500, Y: 450}}
	cfg.Run.PacketsToSend = 2
	s, err := NewSimulator("capped", cfg, nil)
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	runAll(t, s)
	if got := s.Totals().Sent; got != 2 {
		t.Fatalf("sent %d packets, want 2 for the whole run", got)
	}
	var perNode []int
	for _, n := range s.Nodes() {
		perNode = append(perNode, n.Sent)
	}
	if want := []int{1, 1, 0}; !reflect.DeepEqual(perNode, want) {
		t.Fatalf("per-node sends = %v, want %v", perNode, want)
	}
}

func TestSimulatorServerADRStepsSFDown(t *testing.T) {
	cfg := singleNodeConfig()
	cfg.Nodes.SF = 9
	cfg.ADR.Server = true
	w := &recordingWriter{}
	s, err := NewSimulator("server-adr", cfg, w)
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	runAll(t, s)
	var got []int
	for _, e := range w.events {
		got = append(got, e.SF)
	}
	if want := []int{9, 8, 7, 7, 7}; !reflect.DeepEqual(got, want) {
		t.Fatalf("event SFs = %v, want %v", got, want)
	}
	if sf := s.Nodes()[0].SF; sf != 7 {
		t.Fatalf("final sf = %d, want 7", sf)
	}
}

func TestSimulatorNodeADRNeedsServer(t *testing.T) {
	cfg := singleNodeConfig()
	cfg.Nodes.SF = 12
	cfg.ADR.Node = true
	s, err := NewSimulator("node-adr", cfg, nil)
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	runAll(t, s)
	if sf := s.Nodes()[0].SF; sf != 12 {
		t.Fatalf("sf = %d, node ADR must not act without server ADR", sf)
	}
}

func TestSimulatorScenarioPhase(t *testing.T) {
	cfg := singleNodeConfig()
	cfg.Run.Steps = 10
	cfg.Run.StepLength = 5
	sc := &scenario.Scenario{Phases: []scenario.Phase{
		{Name: "calm", IntervalScale: 1, Triggers: []scenario.Trigger{{Event: scenario.EventStep, Value: 3, Next: "busy"}}},
		{Name: "busy", IntervalScale: 0.5},
	}}
	s, err := NewSimulator("phase", cfg, nil, WithScenario(sc))
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	runAll(t, s)
	if got := s.Latest().Phase; got != "busy" {
		t.Fatalf("phase = %q, want busy", got)
	}
	if got := s.Totals().Sent; got != 8 {
		t.Fatalf("sent = %d, want 8", got)
	}
	if m := s.Metrics(); m.Phase != "busy" || m.SFDistribution[7] != 1 {
		t.Fatalf("unexpected metrics %+v", m)
	}
}

func TestClock(t *testing.T) {
	c := NewClock(10, 3)
	if c.Now() != 0 || c.Done() {
		t.Fatalf("fresh clock should be at 0 and not done")
	}
	cases := []struct {
		step    int
		now     float64
		horizon float64
	}{
		{1, 0, 10},
		{2, 10, 20},
		{3, 20, 30},
	}
	for _, tc := range cases {
		step, now := c.Advance()
		if step != tc.step || now != tc.now || c.Horizon() != tc.horizon {
			t.Fatalf("step %d: got (%d, %v, %v)", tc.step, step, now, c.Horizon())
		}
	}
	if !c.Done() {
		t.Fatalf("clock should be done after 3 steps")
	}
}

func TestDeriveSeedStreamsDiffer(t *testing.T) {
	a := deriveSeed(1, streamPlacement)
	b := deriveSeed(1, streamChannel)
	if a == b {
		t.Fatalf("streams should not collide")
	}
	if deriveSeed(1, streamPlacement) != a {
		t.Fatalf("derivation must be stable")
	}
}
