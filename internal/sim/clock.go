package sim

// Clock is a fixed-step simulated clock. Step k (1-based) runs at (k-1)*stepLength.
type Clock struct {
	stepLength float64
	steps      int
	step       int
}

// NewClock creates a clock that stops after steps steps.
func NewClock(stepLength float64, steps int) *Clock {
	return &Clock{stepLength: stepLength, steps: steps}
}

// Advance moves to the next step and returns its index and time.
func (c *Clock) Advance() (int, float64) {
	c.step++
	return c.step, c.Now()
}

// Now is the time of the current step, or 0 before the first one.
func (c *Clock) Now() float64 {
	if c.step == 0 {
		return 0
	}
	return float64(c.step-1) * c.stepLength
}

// Horizon is the start of the next step.
func (c *Clock) Horizon() float64 { return float64(c.step) * c.stepLength }

// Step returns the index of the last executed step.
func (c *Clock) Step() int { return c.step }

// StepLength returns the step duration in seconds.
func (c *Clock) StepLength() float64 { return c.stepLength }

// Steps returns the terminal step count.
func (c *Clock) Steps() int { return c.steps }

// Done reports whether the terminal step has been executed.
func (c *Clock) Done() bool { return c.step >= c.steps }
