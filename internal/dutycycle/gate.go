// Transmit gates enforcing regulatory duty-cycle limits per node
package dutycycle

import (
	"errors"
	"fmt"
)

// ErrInvalidLimit is returned for a fraction outside (0,1] or a non-positive window.
var ErrInvalidLimit = errors.New("invalid duty-cycle limit")

// DefaultCapacity is the initial number of transmissions remembered per node
// by Bounded. Rings grow when more transmissions fit the budget.
const DefaultCapacity = 64

const epsilon = 1e-9

// Gate decides whether a node may start a transmission of the given duration at now.
// An allowed call commits the airtime. A denied call returns the earliest retry time.
type Gate interface {
	Allow(nodeID int, duration, now float64) (ok bool, retryAt float64)
}

// Unlimited never denies.
type Unlimited struct{}

// Allow always succeeds.
func (Unlimited) Allow(_ int, _ float64, now float64) (bool, float64) {
	return true, now
}

// Bounded limits each node to fraction*window airtime in any trailing window.
// Usage is tracked in a growable ring of (start, airtime) pairs per node, so
// only the airtime budget limits how many transmissions a window holds.
type Bounded struct {
	fraction float64
	window   float64
	capacity int
	rings    map[int]*ring
}

// NewBounded creates a trailing-window gate. capacity is the initial ring size;
// capacity <= 0 selects DefaultCapacity.
func NewBounded(fraction, window float64, capacity int) (*Bounded, error) {
	if fraction <= 0 || fraction > 1 {
		return nil, fmt.Errorf("%w: fraction %v not in (0,1]", ErrInvalidLimit, fraction)
	}
	if window <= 0 {
		return nil, fmt.Errorf("%w: window %v must be positive", ErrInvalidLimit, window)
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bounded{fraction: fraction, window: window, capacity: capacity, rings: map[int]*ring{}}, nil
}

// Budget is the airtime allowed per window.
func (b *Bounded) Budget() float64 {
	return b.fraction * b.window
}

// Allow commits duration when it fits the budget of the window ending at now.
func (b *Bounded) Allow(nodeID int, duration, now float64) (bool, float64) {
	r := b.ringFor(nodeID)
	r.evict(now - b.window)
	budget := b.Budget()
	if r.sum+duration <= budget+epsilon {
		r.push(entry{start: now, airtime: duration})
		return true, now
	}
	return false, b.retryAt(r, duration, now)
}

// Usage returns the airtime counted in the window ending at now.
func (b *Bounded) Usage(nodeID int, now float64) float64 {
	r, ok := b.rings[nodeID]
	if !ok {
		return 0
	}
	sum := 0.0
	for i := 0; i < r.n; i++ {
		if e := r.at(i); e.start > now-b.window {
			sum += e.airtime
		}
	}
	return sum
}

// retryAt walks entries oldest first until enough airtime has left the window.
func (b *Bounded) retryAt(r *ring, duration, now float64) float64 {
	if r.n == 0 {
		return now + b.window
	}
	need := r.sum + duration - b.Budget()
	freed := 0.0
	for i := 0; i < r.n; i++ {
		e := r.at(i)
		freed += e.airtime
		if freed+epsilon >= need {
			return e.start + b.window
		}
	}
	// duration alone exceeds the budget; report the instant the window is empty.
	return r.at(r.n-1).start + b.window
}

func (b *Bounded) ringFor(nodeID int) *ring {
	r, ok := b.rings[nodeID]
	if !ok {
		r = &ring{buf: make([]entry, b.capacity)}
		b.rings[nodeID] = r
	}
	return r
}

type entry struct {
	start   float64
	airtime float64
}

type ring struct {
	buf  []entry
	head int
	n    int
	sum  float64
}

func (r *ring) full() bool { return r.n == len(r.buf) }

func (r *ring) at(i int) entry { return r.buf[(r.head+i)%len(r.buf)] }

func (r *ring) push(e entry) {
	if r.full() {
		r.grow()
	}
	r.buf[(r.head+r.n)%len(r.buf)] = e
	r.n++
	r.sum += e.airtime
}

// grow doubles the buffer and moves the live entries to its front.
func (r *ring) grow() {
	buf := make([]entry, 2*len(r.buf))
	for i := 0; i < r.n; i++ {
		buf[i] = r.at(i)
	}
	r.buf = buf
	r.head = 0
}

// evict drops entries that started at or before cutoff.
func (r *ring) evict(cutoff float64) {
	for r.n > 0 && r.buf[r.head].start <= cutoff {
		r.sum -= r.buf[r.head].airtime
		r.head = (r.head + 1) % len(r.buf)
		r.n--
	}
	if r.n == 0 {
		r.sum = 0
	}
}

// OffTime enforces a silence of duration*(1/fraction - 1) after each transmission.
type OffTime struct {
	fraction float64
	next     map[int]float64
}

// NewOffTime creates an off-time gate.
func NewOffTime(fraction float64) (*OffTime, error) {
	if fraction <= 0 || fraction > 1 {
		return nil, fmt.Errorf("%w: fraction %v not in (0,1]", ErrInvalidLimit, fraction)
	}
	return &OffTime{fraction: fraction, next: map[int]float64{}}, nil
}

// Allow succeeds once the previous silence period has elapsed.
func (o *OffTime) Allow(nodeID int, duration, now float64) (bool, float64) {
	if next := o.next[nodeID]; now < next {
		return false, next
	}
	o.next[nodeID] = now + duration/o.fraction
	return true, now
}
