package dutycycle

import (
	"errors"
	"math/rand"
	"testing"
)

func TestUnlimitedAlwaysAllows(t *testing.T) {
	var g Unlimited
	for i := 0; i < 10; i++ {
		if ok, _ := g.Allow(1, 100, float64(i)); !ok {
			t.Fatalf("unlimited gate denied at %d", i)
		}
	}
}

func TestNewBoundedRejectsInvalidLimits(t *testing.T) {
	tests := []struct {
		name     string
		fraction float64
		window   float64
	}{
		{"zero fraction", 0, 600},
		{"negative fraction", -0.1, 600},
		{"fraction above one", 1.5, 600},
		{"zero window", 0.01, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewBounded(tt.fraction, tt.window, 0); !errors.Is(err, ErrInvalidLimit) {
				t.Fatalf("expected ErrInvalidLimit, got %v", err)
			}
		})
	}
}

func TestBoundedOnePercentOfSixHundred(t *testing.T) {
	g, err := NewBounded(0.01, 600, 0)
	if err != nil {
		t.Fatalf("NewBounded: %v", err)
	}
	sent := 0
	for now := 0.0; now < 600; now += 10 {
		ok, retry := g.Allow(7, 6, now)
		if ok {
			sent++
			continue
		}
		if retry != 600 {
			t.Fatalf("retry at %v = %v, want 600", now, retry)
		}
	}
	if sent != 1 {
		t.Fatalf("sent %d transmissions in one window, want 1", sent)
	}
	if ok, _ := g.Allow(7, 6, 600); !ok {
		t.Fatalf("expected transmission once the first airtime left the window")
	}
}

func TestBoundedRetryWaitsForEnoughAirtime(t *testing.T) {
	g, _ := NewBounded(0.1, 100, 0)
	g.Allow(1, 4, 0)
	g.Allow(1, 4, 10)
	g.Allow(1, 2, 15)
	// budget exhausted; a 5 unit packet needs the first two entries gone.
	ok, retry := g.Allow(1, 5, 20)
	if ok {
		t.Fatalf("expected denial")
	}
	if retry != 110 {
		t.Fatalf("retry = %v, want 110", retry)
	}
}

func TestBoundedRingGrowsWithinBudget(t *testing.T) {
	g, _ := NewBounded(1, 100, 2)
	for i := 0; i < 5; i++ {
		if ok, _ := g.Allow(1, 1, float64(i)); !ok {
			t.Fatalf("transmission %d denied with budget left", i)
		}
	}
	if got := g.Usage(1, 4); got != 5 {
		t.Fatalf("usage = %v, want 5", got)
	}
	// entries must survive the resize in order.
	if ok, _ := g.Allow(1, 1, 100.5); !ok {
		t.Fatalf("denied after the first entry left the window")
	}
	if got := g.Usage(1, 100.5); got != 5 {
		t.Fatalf("usage after eviction = %v, want 5", got)
	}
}

func TestBoundedManyShortPacketsInHourWindow(t *testing.T) {
	// SF7 airtime every 10 s uses about 20 s of a 36 s hourly budget.
	g, _ := NewBounded(0.01, 3600, 0)
	const airtime = 0.0566
	for i := 0; i < 360; i++ {
		now := float64(i) * 10
		if ok, retry := g.Allow(1, airtime, now); !ok {
			t.Fatalf("send %d at %v denied (retry %v, usage %v)", i, now, retry, g.Usage(1, now))
		}
	}
}

func TestBoundedNodesAreIndependent(t *testing.T) {
	g, _ := NewBounded(0.01, 600, 0)
	if ok, _ := g.Allow(1, 6, 0); !ok {
		t.Fatalf("node 1 denied")
	}
	if ok, _ := g.Allow(2, 6, 0); !ok {
		t.Fatalf("node 2 denied by node 1 usage")
	}
}

func TestBoundedWindowInvariant(t *testing.T) {
	const (
		fraction = 0.05
		window   = 100.0
	)
	g, _ := NewBounded(fraction, window, 16)
	rng := rand.New(rand.NewSource(1))
	type sent struct{ start, airtime float64 }
	var log []sent
	now := 0.0
	for i := 0; i < 5000; i++ {
		now += rng.Float64() * 3
		d := 0.1 + rng.Float64()*2
		if ok, retry := g.Allow(3, d, now); ok {
			log = append(log, sent{now, d})
		} else if retry <= now {
			t.Fatalf("retry %v not after now %v", retry, now)
		}
	}
	if len(log) == 0 {
		t.Fatalf("nothing was sent")
	}
	for _, end := range log {
		sum := 0.0
		for _, s := range log {
			if s.start > end.start-window && s.start <= end.start {
				sum += s.airtime
			}
		}
		if sum > fraction*window+1e-6 {
			t.Fatalf("window ending %v holds %v airtime, budget %v", end.start, sum, fraction*window)
		}
	}
}

func TestOffTime(t *testing.T) {
	g, err := NewOffTime(0.01)
	if err != nil {
		t.Fatalf("NewOffTime: %v", err)
	}
	if ok, _ := g.Allow(1, 1, 0); !ok {
		t.Fatalf("first transmission denied")
	}
	ok, retry := g.Allow(1, 1, 50)
	if ok || retry != 100 {
		t.Fatalf("got ok=%v retry=%v, want denial until 100", ok, retry)
	}
	if ok, _ := g.Allow(1, 1, 100); !ok {
		t.Fatalf("expected transmission after the off time")
	}
}
