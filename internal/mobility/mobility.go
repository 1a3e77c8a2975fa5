package mobility

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/rot226/simulator-lora-sfrd-2.0/internal/lora"
)

// Model moves a node within the simulation area.
type Model interface {
	Update(nodeID int, pos lora.Position, dt float64) lora.Position
}

// Static leaves every node where it is.
type Static struct{}

// Update returns pos unchanged.
func (Static) Update(_ int, pos lora.Position, _ float64) lora.Position {
	return pos
}

// RandomWalk draws a fresh heading and speed at every update and reflects
// off the edges of a square area [0, AreaSize]².
type RandomWalk struct {
	AreaSize float64
	MinSpeed float64 // m/s
	MaxSpeed float64 // m/s
	rand     *rand.Rand
}

// NewRandomWalk builds a random walk using r for all draws.
func NewRandomWalk(areaSize, minSpeed, maxSpeed float64, r *rand.Rand) *RandomWalk {
	if maxSpeed < minSpeed {
		minSpeed, maxSpeed = maxSpeed, minSpeed
	}
	return &RandomWalk{AreaSize: areaSize, MinSpeed: minSpeed, MaxSpeed: maxSpeed, rand: r}
}

// Update moves pos by speed*dt in a random direction.
func (w *RandomWalk) Update(_ int, pos lora.Position, dt float64) lora.Position {
	if dt <= 0 {
		return pos
	}
	heading := w.rand.Float64() * 2 * math.Pi
	speed := w.rand.Float64()*(w.MaxSpeed-w.MinSpeed) + w.MinSpeed
	return lora.Position{
		X: reflect(pos.X+speed*dt*math.Cos(heading), w.AreaSize),
		Y: reflect(pos.Y+speed*dt*math.Sin(heading), w.AreaSize),
	}
}

// reflect folds v back into [0, size].
func reflect(v, size float64) float64 {
	if size <= 0 {
		return 0
	}
	period := 2 * size
	v = math.Mod(v, period)
	if v < 0 {
		v += period
	}
	if v > size {
		v = period - v
	}
	return v
}

// New selects a model by name: "static" (or "") and "random_walk".
func New(name string, areaSize, minSpeed, maxSpeed float64, r *rand.Rand) (Model, error) {
	switch strings.ToLower(name) {
	case "", "static", "none":
		return Static{}, nil
	case "random_walk", "randomwalk":
		return NewRandomWalk(areaSize, minSpeed, maxSpeed, r), nil
	default:
		return nil, fmt.Errorf("unknown mobility model: %s", name)
	}
}
