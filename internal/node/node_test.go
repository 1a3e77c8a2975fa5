package node

import (
	"math/rand"
	"testing"

	"github.com/rot226/simulator-lora-sfrd-2.0/internal/dutycycle"
	"github.com/rot226/simulator-lora-sfrd-2.0/internal/lora"
)

// denyingGate refuses every request made before until.
type denyingGate struct {
	until float64
	calls int
}

func (g *denyingGate) Allow(_ int, _ float64, now float64) (bool, float64) {
	g.calls++
	if now < g.until {
		return false, g.until
	}
	return true, now
}

func periodic(interval float64) Config {
	return Config{Mode: Periodic, Interval: interval, SF: 7, TxPowerDBm: lora.DefaultTxPowerDBm}
}

func TestPeriodicEveryInterval(t *testing.T) {
	n, err := New(1, lora.Position{}, periodic(10), nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var seqs []int
	for now := 0.0; now < 50; now += 10 {
		tx, a := n.MaybeTransmit(now)
		if a != Sent {
			t.Fatalf("at %v got %v, want sent", now, a)
		}
		if tx.Start != now || tx.NodeID != 1 {
			t.Fatalf("unexpected transmission %+v", tx)
		}
		seqs = append(seqs, tx.Seq)
	}
	for i := 1; i < len(seqs); i++ {
		if seqs[i] <= seqs[i-1] {
			t.Fatalf("sequence not increasing: %v", seqs)
		}
	}
	if n.SentCount() != 5 {
		t.Fatalf("sent %d, want 5", n.SentCount())
	}
}

func TestPeriodicIdleBetweenSlots(t *testing.T) {
	n, _ := New(1, lora.Position{}, periodic(10), nil, nil)
	sent := 0
	for now := 0.0; now < 30; now++ {
		if _, a := n.MaybeTransmit(now); a == Sent {
			sent++
		}
	}
	if sent != 3 {
		t.Fatalf("sent %d in 30 units, want 3", sent)
	}
}

func TestPeriodicDeferralSkipsMissedSlots(t *testing.T) {
	g := &denyingGate{}
	n, _ := New(1, lora.Position{}, periodic(10), g, nil)
	if _, a := n.MaybeTransmit(0); a != Sent {
		t.Fatalf("first attempt %v", a)
	}
	g.until = 25
	if _, a := n.MaybeTransmit(10); a != Deferred {
		t.Fatalf("expected deferral at 10, got %v", a)
	}
	if n.NextFire() != 25 {
		t.Fatalf("next fire = %v, want 25", n.NextFire())
	}
	for now := 11.0; now < 25; now++ {
		if _, a := n.MaybeTransmit(now); a != Idle {
			t.Fatalf("expected idle at %v, got %v", now, a)
		}
	}
	tx, a := n.MaybeTransmit(25)
	if a != Sent || tx.Seq != 2 {
		t.Fatalf("expected seq 2 at 25, got %v %+v", a, tx)
	}
	// cadence restarts from the successful send, slot 20 is dropped
	if n.NextFire() != 35 {
		t.Fatalf("next fire = %v, want 35", n.NextFire())
	}
	if n.DeferredCount() != 1 {
		t.Fatalf("deferred = %d, want 1", n.DeferredCount())
	}
}

func TestDutyCycleScenarioSixHundredWindow(t *testing.T) {
	gate, err := dutycycle.NewBounded(0.01, 600, 0)
	if err != nil {
		t.Fatalf("NewBounded: %v", err)
	}
	cfg := periodic(10)
	cfg.Airtime = 6
	n, _ := New(1, lora.Position{}, cfg, gate, nil)
	sent := 0
	for now := 0.0; now < 600; now += 10 {
		if _, a := n.MaybeTransmit(now); a == Sent {
			if now > 0 {
				t.Fatalf("transmitted at %v inside the exhausted window", now)
			}
			sent++
		}
	}
	if sent != 1 {
		t.Fatalf("sent %d in 600 units, budget allows 1", sent)
	}
	if _, a := n.MaybeTransmit(600); a != Sent {
		t.Fatalf("expected transmission when the window permits it again, got %v", a)
	}
}

func TestRandomModeDeterministic(t *testing.T) {
	cfg := Config{Mode: Random, Interval: 20, SF: 9, TxPowerDBm: 14}
	a, _ := New(3, lora.Position{}, cfg, nil, rand.New(rand.NewSource(7)))
	b, _ := New(3, lora.Position{}, cfg, nil, rand.New(rand.NewSource(7)))
	var sa, sb []float64
	for now := 0.0; now < 2000; now++ {
		if tx, ok := a.MaybeTransmit(now); ok == Sent {
			sa = append(sa, tx.Start)
		}
		if tx, ok := b.MaybeTransmit(now); ok == Sent {
			sb = append(sb, tx.Start)
		}
	}
	if len(sa) == 0 || len(sa) != len(sb) {
		t.Fatalf("runs differ: %d vs %d", len(sa), len(sb))
	}
	for i := range sa {
		if sa[i] != sb[i] {
			t.Fatalf("run diverged at %d: %v vs %v", i, sa[i], sb[i])
		}
	}
	// mean 20 over 2000 units: expect roughly 100 packets
	if len(sa) < 50 || len(sa) > 150 {
		t.Fatalf("implausible packet count %d for mean interval 20", len(sa))
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		r    *rand.Rand
	}{
		{"zero interval", Config{Mode: Periodic, Interval: 0, SF: 7}, nil},
		{"bad sf", Config{Mode: Periodic, Interval: 1, SF: 13}, nil},
		{"bad mode", Config{Mode: "bursty", Interval: 1, SF: 7}, nil},
		{"random without source", Config{Mode: Random, Interval: 1, SF: 7}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(1, lora.Position{}, tt.cfg, nil, tt.r); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestSetSFChangesAirtime(t *testing.T) {
	n, _ := New(1, lora.Position{}, periodic(10), nil, nil)
	before := n.Airtime()
	if err := n.SetSF(12); err != nil {
		t.Fatalf("SetSF: %v", err)
	}
	if n.Airtime() <= before {
		t.Fatalf("SF12 airtime %v not above SF7 %v", n.Airtime(), before)
	}
	if err := n.SetSF(6); err == nil {
		t.Fatalf("expected error for SF6")
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode("Periodic"); err != nil || m != Periodic {
		t.Fatalf("ParseMode(Periodic) = %v, %v", m, err)
	}
	if m, err := ParseMode(" random "); err != nil || m != Random {
		t.Fatalf("ParseMode(random) = %v, %v", m, err)
	}
	if _, err := ParseMode("burst"); err == nil {
		t.Fatalf("expected error")
	}
}
