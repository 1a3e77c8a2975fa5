package mobility

import (
	"math/rand"
	"testing"

	"github.com/rot226/simulator-lora-sfrd-2.0/internal/lora"
)

func TestStaticIsIdentity(t *testing.T) {
	p := lora.Position{X: 12, Y: 34}
	if got := (Static{}).Update(1, p, 10); got != p {
		t.Fatalf("static moved node: %+v", got)
	}
}

func TestRandomWalkStaysInAreaAndBoundsStep(t *testing.T) {
	const (
		area = 100.0
		vmax = 3.0
		dt   = 5.0
	)
	w := NewRandomWalk(area, 1, vmax, rand.New(rand.NewSource(1)))
	p := lora.Position{X: 1, Y: 99}
	for i := 0; i < 1000; i++ {
		next := w.Update(0, p, dt)
		if next.X < 0 || next.X > area || next.Y < 0 || next.Y > area {
			t.Fatalf("step %d left the area: %+v", i, next)
		}
		if d := p.Distance(next); d > vmax*dt+1e-9 {
			t.Fatalf("step %d moved %v, more than %v", i, d, vmax*dt)
		}
		p = next
	}
}

func TestRandomWalkDeterministic(t *testing.T) {
	a := NewRandomWalk(1000, 1, 3, rand.New(rand.NewSource(42)))
	b := NewRandomWalk(1000, 1, 3, rand.New(rand.NewSource(42)))
	pa := lora.Position{X: 500, Y: 500}
	pb := pa
	for i := 0; i < 50; i++ {
		pa = a.Update(0, pa, 1)
		pb = b.Update(0, pb, 1)
	}
	if pa != pb {
		t.Fatalf("same seed diverged: %+v vs %+v", pa, pb)
	}
}

func TestReflect(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{50, 50},
		{-10, 10},
		{110, 90},
		{0, 0},
		{100, 100},
	}
	for _, tt := range tests {
		if got := reflect(tt.in, 100); got != tt.want {
			t.Errorf("reflect(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewUnknownModel(t *testing.T) {
	if _, err := New("teleport", 100, 1, 2, nil); err == nil {
		t.Fatalf("expected error for unknown model")
	}
}
