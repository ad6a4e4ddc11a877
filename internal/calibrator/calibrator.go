// Package calibrator corrects the per-percent tick interval of a shade from
// the difference between expected and measured travel times.
package calibrator

import (
	"math"
	"time"
)

// DefaultDepth is the rolling window size used when none is configured.
const DefaultDepth = 5

// Elapsed returns the monotonic time since some fixed origin.
type Elapsed interface {
	Now() time.Duration
}

type Calibrator struct {
	clock      Elapsed
	fullTravel time.Duration
	depth      int
	averaged   bool

	results []float64

	started   bool
	startPos  int
	startTime time.Duration
}

// New returns a calibrator for a shade whose full travel takes fullTravel.
// With averaged set, Adjust uses the window average instead of the latest sample.
func New(clock Elapsed, fullTravel time.Duration, depth int, averaged bool) *Calibrator {
	if depth <= 0 {
		depth = DefaultDepth
	}

	return &Calibrator{
		clock:      clock,
		fullTravel: fullTravel,
		depth:      depth,
		averaged:   averaged,
	}
}

func (c *Calibrator) ReportStart(position int) {
	c.started = true
	c.startPos = position
	c.startTime = c.clock.Now()
}

// ReportEnd records the expected/actual ratio of the movement begun by the
// last ReportStart. Movements without distance or duration are not sampled.
func (c *Calibrator) ReportEnd(position int) (ratio float64, ok bool) {
	if !c.started {
		return 1, false
	}
	c.started = false

	distance := position - c.startPos
	if distance < 0 {
		distance = -distance
	}
	expected := time.Duration(float64(c.fullTravel) * float64(distance) / 100)
	actual := c.clock.Now() - c.startTime

	ratio, ok = Ratio(expected, actual)
	if !ok {
		return 1, false
	}

	c.results = append(c.results, ratio)
	for len(c.results) > c.depth {
		c.results = c.results[1:]
	}

	return ratio, true
}

// Ratio returns expected/actual, refusing degenerate measurements.
func Ratio(expected, actual time.Duration) (float64, bool) {
	if expected <= 0 || actual <= 0 {
		return 1, false
	}

	return float64(expected) / float64(actual), true
}

// Latest returns the most recent ratio, or 1 before the first sample.
func (c *Calibrator) Latest() float64 {
	if len(c.results) == 0 {
		return 1
	}

	return c.results[len(c.results)-1]
}

// Average returns the mean ratio of the window, or 1 before the first sample.
func (c *Calibrator) Average() float64 {
	if len(c.results) == 0 {
		return 1
	}

	total := 0.0
	for _, r := range c.results {
		total += r
	}

	return total / float64(len(c.results))
}

func (c *Calibrator) Samples() int {
	return len(c.results)
}

// Adjust applies the current correction factor to the previous tick interval.
func (c *Calibrator) Adjust(previous time.Duration) time.Duration {
	factor := c.Latest()
	if c.averaged {
		factor = c.Average()
	}

	return Scale(previous, factor)
}

// Scale multiplies an interval by factor, rounding to the nearest millisecond.
func Scale(interval time.Duration, factor float64) time.Duration {
	ms := math.Round(float64(interval.Milliseconds()) * factor)
	if ms < 1 {
		ms = 1
	}

	return time.Duration(ms) * time.Millisecond
}
